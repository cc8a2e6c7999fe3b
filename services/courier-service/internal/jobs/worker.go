package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hourbook/hourbook/libs/db"
	"github.com/hourbook/hourbook/libs/otelx"
	"github.com/hourbook/hourbook/services/courier-service/internal/email"
	"github.com/hourbook/hourbook/services/courier-service/internal/mail"
	"github.com/hourbook/hourbook/services/courier-service/internal/outbox"
	"github.com/hourbook/hourbook/services/courier-service/internal/storage"
)

const (
	// EventMailSent announces a delivered cancellation mail.
	EventMailSent = "courier.mail.sent.v1"
	// EventMailDLQ carries jobs that exhausted their attempts.
	EventMailDLQ = "courier.mail.dlq.v1"
)

// Worker drains due mail jobs. Jobs are claimed with SKIP LOCKED so several
// couriers can run side by side; a send failure reschedules the job with a
// fixed backoff until max_attempts, then dead-letters it.
type Worker struct {
	pool       *db.Pool
	repo       *Repository
	outbox     *outbox.Repository
	deliveries *storage.DeliveriesRepository
	sender     email.Sender
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
	backoff    time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, deliveries *storage.DeliveriesRepository, sender email.Sender, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:       pool,
		repo:       repo,
		outbox:     outboxRepo,
		deliveries: deliveries,
		sender:     sender,
		logger:     logger,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		backoff:    cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("mail batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var sent []int64
	for _, job := range jobs {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)

		var notice mail.Cancellation
		if err := json.Unmarshal(job.Payload, &notice); err != nil || !notice.Valid() {
			// A malformed payload will never send; dead-letter immediately.
			if err := w.deadLetter(jobCtx, tx, job, "invalid payload"); err != nil {
				return err
			}
			continue
		}

		subject, body := notice.Compose()
		if err := w.sender.Send(notice.ProviderEmail, subject, body); err != nil {
			w.logger.Warn("mail send failed", "appointment_id", job.AppointmentID, "attempts", job.Attempts+1, "err", err)
			if err := w.retryOrDeadLetter(jobCtx, tx, job, err.Error()); err != nil {
				return err
			}
			continue
		}

		if err := w.recordSent(jobCtx, tx, job, notice, subject); err != nil {
			return err
		}
		sent = append(sent, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, sent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (w *Worker) recordSent(ctx context.Context, tx pgx.Tx, job Job, notice mail.Cancellation, subject string) error {
	if err := w.deliveries.Insert(ctx, storage.Delivery{
		AppointmentID: job.AppointmentID,
		Recipient:     notice.ProviderEmail,
		Subject:       subject,
		Status:        storage.DeliveryStatusSent,
	}); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": job.AppointmentID,
		"recipient":      notice.ProviderEmail,
		"sent_at":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "mail_job",
		AggregateID:   job.AppointmentID,
		EventType:     EventMailSent,
		Payload:       payload,
	})
}

func (w *Worker) retryOrDeadLetter(ctx context.Context, tx pgx.Tx, job Job, reason string) error {
	attempts := job.Attempts + 1
	nextRunAt := time.Now().UTC().Add(w.backoff)
	if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, reason); err != nil {
		return err
	}
	if attempts >= job.MaxAttempts {
		return w.enqueueDLQ(ctx, tx, job, "max attempts reached: "+reason)
	}
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, tx pgx.Tx, job Job, reason string) error {
	if err := w.repo.MarkFailed(ctx, tx, job.ID, job.MaxAttempts, job.MaxAttempts, time.Now().UTC(), reason); err != nil {
		return err
	}
	return w.enqueueDLQ(ctx, tx, job, reason)
}

func (w *Worker) enqueueDLQ(ctx context.Context, tx pgx.Tx, job Job, reason string) error {
	if err := w.deliveries.Insert(ctx, storage.Delivery{
		AppointmentID: job.AppointmentID,
		Recipient:     job.Recipient,
		Status:        storage.DeliveryStatusFailed,
		ErrorReason:   reason,
	}); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": job.AppointmentID,
		"recipient":      job.Recipient,
		"payload":        json.RawMessage(job.Payload),
		"error_reason":   reason,
		"failed_at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "mail_job",
		AggregateID:   job.AppointmentID,
		EventType:     EventMailDLQ,
		Payload:       payload,
	})
}
