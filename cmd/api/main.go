package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/PratikDhanave/event-counter-service/internal/cache"
	"github.com/PratikDhanave/event-counter-service/internal/config"
	"github.com/PratikDhanave/event-counter-service/internal/httpserver"
	"github.com/PratikDhanave/event-counter-service/internal/ingest"
	"github.com/PratikDhanave/event-counter-service/internal/lifecycle"
	"github.com/PratikDhanave/event-counter-service/internal/logging"
	"github.com/PratikDhanave/event-counter-service/internal/metrics"
	"github.com/PratikDhanave/event-counter-service/internal/pool"
	"github.com/PratikDhanave/event-counter-service/internal/store"
)

// main boots the service: config → logging → pools → HTTP server.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load runtime config from environment (PG_DSN, REDIS_URL, RATE_LIMIT, LOG_LEVEL).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}

	// Pools are built disconnected; the lifecycle controller connects them.
	pgPool, err := store.NewPostgresPool(cfg.PGDSN, pool.Config{
		Name:    "postgres",
		MinSize: cfg.PG.MinSize,
		MaxSize: cfg.PG.MaxSize,
		Timeout: cfg.PG.Timeout,
	}, logger.Named("pool"))
	if err != nil {
		return err
	}
	redisPool, err := cache.NewRedisPool(cfg.RedisURL, pool.Config{
		Name:    "redis",
		MinSize: cfg.Redis.MinSize,
		MaxSize: cfg.Redis.MaxSize,
		Timeout: cfg.Redis.Timeout,
	}, logger.Named("pool"))
	if err != nil {
		return err
	}

	db := store.NewPostgresStore(pgPool)
	counters := cache.NewRedisCache(redisPool, cache.WithTTL(cfg.CounterTTL))

	m := metrics.New()
	m.RegisterPool(pgPool)
	m.RegisterPool(redisPool)

	svc := ingest.NewService(db, counters,
		ingest.WithLogger(logger.Named("ingest")),
		ingest.WithMetrics(m),
		ingest.WithTimeout(cfg.IngestTimeout),
	)

	router := httpserver.NewRouter(httpserver.Deps{
		Ingest:  svc,
		Stats:   counters,
		Metrics: m,
		Logger:  logger.Named("http"),
		Ready: map[string]httpserver.Pinger{
			"postgres": db,
			"redis":    counters,
		},
		RateLimit: cfg.RateLimit,
	})

	ctrl, err := lifecycle.New(lifecycle.Options{
		Store:           pgPool,
		Cache:           redisPool,
		Schema:          db.EnsureSchema,
		Server:          httpserver.NewHTTPServer(cfg.HTTPAddr, router),
		Ingest:          svc,
		Flush:           func() error { return logging.Sync(logger) },
		Logger:          logger.Named("lifecycle"),
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting service",
		zap.String("addr", cfg.HTTPAddr),
		zap.Int("rate_limit", cfg.RateLimit),
		zap.Duration("counter_ttl", cfg.CounterTTL),
	)
	if err := ctrl.Run(ctx); err != nil {
		logger.Error("service failed", zap.Error(err))
		_ = logging.Sync(logger)
		return err
	}
	return nil
}
