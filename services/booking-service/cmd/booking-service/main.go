package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/obiefoma/slotbook/libs/config"
	"github.com/obiefoma/slotbook/libs/db"
	"github.com/obiefoma/slotbook/libs/httpx"
	"github.com/obiefoma/slotbook/libs/kafkax"
	otelx "github.com/obiefoma/slotbook/libs/otel"
	"github.com/obiefoma/slotbook/libs/runtime"
	"github.com/obiefoma/slotbook/services/booking-service/internal/engine"
	"github.com/obiefoma/slotbook/services/booking-service/internal/handlers"
	"github.com/obiefoma/slotbook/services/booking-service/internal/ledger"
	"github.com/obiefoma/slotbook/services/booking-service/internal/outbox"
	"github.com/obiefoma/slotbook/services/booking-service/internal/reviews"
	"github.com/obiefoma/slotbook/services/booking-service/internal/storage"
)

func main() {
	_ = godotenv.Load()

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

	migration := config.String("MIGRATIONS_FILE", "db/migrations/booking/001_init.sql")
	if err := pool.ApplyMigration(ctx, migration); err != nil {
		logger.Warn("migration apply failed", "path", migration, "err", err)
	} else {
		logger.Info("migration applied", "path", migration)
	}

	slotLedger := ledger.NewPostgresLedger(pool)
	apptRepo := storage.NewAppointmentRepository(pool)
	directory := storage.NewDirectory(pool)
	reviewRepo := storage.NewReviewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	eng := engine.New(slotLedger, apptRepo, directory, engine.NewOutboxSink(outboxRepo, logger), logger)
	gate := reviews.NewGate(apptRepo, reviewRepo)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	sweeper := engine.NewCompletionSweeper(eng, logger, engine.SweeperConfig{
		Interval:  config.Seconds("COMPLETION_SWEEP_INTERVAL_SECONDS", 30*time.Second),
		BatchSize: config.Int("COMPLETION_SWEEP_BATCH_SIZE", 100),
	})
	go sweeper.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handlers.NewBookingHandler(eng, gate, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
