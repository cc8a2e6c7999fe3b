package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hourbook/hourbook/libs/config"
	"github.com/hourbook/hourbook/libs/db"
	"github.com/hourbook/hourbook/libs/httpx"
	"github.com/hourbook/hourbook/libs/kafkax"
	"github.com/hourbook/hourbook/libs/otelx"
	"github.com/hourbook/hourbook/libs/runtime"
	"github.com/hourbook/hourbook/services/booking-service/internal/availability"
	"github.com/hourbook/hourbook/services/booking-service/internal/directory"
	"github.com/hourbook/hourbook/services/booking-service/internal/handlers"
	"github.com/hourbook/hourbook/services/booking-service/internal/jobs"
	"github.com/hourbook/hourbook/services/booking-service/internal/notify"
	"github.com/hourbook/hourbook/services/booking-service/internal/outbox"
	"github.com/hourbook/hourbook/services/booking-service/internal/scheduling"
	"github.com/hourbook/hourbook/services/booking-service/internal/storage"
)

func rateLimitMiddleware(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		limiter := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "booking")
		return limiter.Middleware(logger, true)
	}
	logger.Info("using in-memory rate limiter (REDIS_ADDR not set)")
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8081")
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

	actors := directory.NewRepository(pool)
	appointments := storage.NewAppointmentRepository(pool)
	notifications := notify.NewSink(pool)
	outboxRepo := outbox.NewRepository(pool)
	queue := jobs.NewQueue(pool, outboxRepo)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	scheduler := scheduling.NewService(scheduling.Deps{
		Directory:    actors,
		Store:        appointments,
		Availability: availability.NewChecker(appointments),
		Sink:         notifications,
		Queue:        queue,
		Logger:       logger,
		Workday: availability.Workday{
			OpenHour:  config.Int("WORKDAY_OPEN_HOUR", 8),
			CloseHour: config.Int("WORKDAY_CLOSE_HOUR", 19),
		},
	})

	appointmentHandler := handlers.NewAppointmentHandler(scheduler, logger)
	actorHandler := handlers.NewActorHandler(actors, notifications, logger)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/actors", actorHandler.Register)
	mux.HandleFunc("/api/v1/notifications", actorHandler.Notifications)
	mux.HandleFunc("/api/v1/appointments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			appointmentHandler.Book(w, r)
			return
		}
		appointmentHandler.List(w, r)
	})
	mux.HandleFunc("/api/v1/appointments/cancel", appointmentHandler.Cancel)
	mux.HandleFunc("/api/v1/available", appointmentHandler.Available)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-User-Id", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		rateLimitMiddleware(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

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
