package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hourbook/hourbook/libs/otelx"
)

// Job is one durable mail task. Payload stays opaque JSON here; the worker
// decodes it per job kind.
type Job struct {
	ID             int64
	IdempotencyKey string
	AppointmentID  string
	Recipient      string
	Payload        []byte
	Traceparent    string
	Tracestate     string
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert stores the job. The idempotency key (the originating event id)
// makes redelivered events collapse into one job.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO mail_jobs (idempotency_key, appointment_id, recipient, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, job.IdempotencyKey, job.AppointmentID, job.Recipient, job.Payload, traceparent, tracestate)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, idempotency_key, appointment_id, recipient, payload, traceparent, tracestate, attempts, max_attempts, next_run_at
		FROM mail_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.IdempotencyKey, &j.AppointmentID, &j.Recipient, &j.Payload, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE mail_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := "pending"
	if attempts >= maxAttempts {
		status = "failed"
	}
	_, err := tx.Exec(ctx, `
		UPDATE mail_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}
