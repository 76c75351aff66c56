package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/obiefoma/slotbook/libs/config"
	"github.com/obiefoma/slotbook/libs/db"
	"github.com/obiefoma/slotbook/libs/httpx"
	"github.com/obiefoma/slotbook/libs/kafkax"
	otelx "github.com/obiefoma/slotbook/libs/otel"
	"github.com/obiefoma/slotbook/libs/runtime"
	"github.com/obiefoma/slotbook/services/notification-service/internal/consumer"
	"github.com/obiefoma/slotbook/services/notification-service/internal/dispatcher"
	"github.com/obiefoma/slotbook/services/notification-service/internal/handlers"
	"github.com/obiefoma/slotbook/services/notification-service/internal/inbox"
	"github.com/obiefoma/slotbook/services/notification-service/internal/storage"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "notification-service")
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

	migration := config.String("MIGRATIONS_FILE", "db/migrations/notifications/001_init.sql")
	if err := pool.ApplyMigration(ctx, migration); err != nil {
		logger.Warn("migration apply failed", "path", migration, "err", err)
	} else {
		logger.Info("migration applied", "path", migration)
	}

	repo := storage.NewRepository(pool, inbox.NewRepository())
	disp := dispatcher.New(repo, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	for _, topic := range dispatcher.Topics {
		c := consumer.New(logger, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			meta := kafkax.ExtractEventMeta(msg)
			return disp.HandleEvent(ctx, meta.EventType, msg.Value)
		})
		go c.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.NewNotificationHandler(repo, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
