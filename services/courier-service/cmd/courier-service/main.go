package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hourbook/hourbook/libs/config"
	"github.com/hourbook/hourbook/libs/db"
	"github.com/hourbook/hourbook/libs/httpx"
	"github.com/hourbook/hourbook/libs/kafkax"
	"github.com/hourbook/hourbook/libs/otelx"
	"github.com/hourbook/hourbook/libs/runtime"
	"github.com/hourbook/hourbook/services/courier-service/internal/consumer"
	"github.com/hourbook/hourbook/services/courier-service/internal/email"
	"github.com/hourbook/hourbook/services/courier-service/internal/inbox"
	"github.com/hourbook/hourbook/services/courier-service/internal/jobs"
	"github.com/hourbook/hourbook/services/courier-service/internal/mail"
	"github.com/hourbook/hourbook/services/courier-service/internal/outbox"
	"github.com/hourbook/hourbook/services/courier-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "courier-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	jobsRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository(pool)
	deliveries := storage.NewDeliveriesRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	sender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@hourbook.local"),
	)
	worker := jobs.NewWorker(pool, jobsRepo, outboxRepo, deliveries, sender, logger, jobs.WorkerConfig{
		Interval:  config.Seconds("WORKER_INTERVAL_SECONDS", 2*time.Second),
		BatchSize: config.Int("WORKER_BATCH_SIZE", 50),
		Backoff:   config.Seconds("WORKER_BACKOFF_SECONDS", time.Minute),
	})
	go worker.Run(ctx)

	consumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "courier-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "booking.cancellation.mail.v1"),
	}
	eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
		var notice mail.Cancellation
		if err := json.Unmarshal(msg.Value, &notice); err != nil {
			logger.Error("invalid cancellation payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if !notice.Valid() {
			logger.Error("missing cancellation fields", "topic", msg.Topic)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)
		key := meta.EventID
		if key == "" {
			key = notice.AppointmentID + "/" + notice.CanceledAt.UTC().Format(time.RFC3339)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := jobsRepo.Insert(ctx, tx, jobs.Job{
			IdempotencyKey: key,
			AppointmentID:  notice.AppointmentID,
			Recipient:      notice.ProviderEmail,
			Payload:        msg.Value,
		}); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler := otelhttp.NewHandler(handler, "courier")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
