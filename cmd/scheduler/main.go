package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"processhub_backend/internal/adapters"
	"processhub_backend/internal/auth"
	"processhub_backend/internal/auth/service"
	"processhub_backend/internal/email"
	"processhub_backend/internal/events"
	"processhub_backend/internal/identity/repository"
	"processhub_backend/internal/scheduler"
	"processhub_backend/platform/config"
	"processhub_backend/platform/db"
	"processhub_backend/platform/logger"
	"processhub_backend/platform/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "purgeInterval", cfg.PurgeInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg, log.Logger, "processhub-scheduler")
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		panic("failed to initialize tracing: " + err.Error())
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler")
	}
	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	var credentialRedis redis.Cmdable = rdb
	store, err := auth.NewCredentialStore(cfg, pool, credentialRedis)
	if err != nil {
		log.Error("failed to initialize credential store", "error", err)
		panic("failed to initialize credential store: " + err.Error())
	}

	// The purge job only needs the store, but the service owns the clock and
	// the purge metrics.
	directory := adapters.NewIdentityDirectoryAdapter(repository.New(pool))
	authService := service.New(store, directory, events.NewInMemoryBus(log), cfg, log)

	sender := email.NewSender(cfg, log)
	worker, err := scheduler.NewWorker(cfg, sender, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	purge := scheduler.NewCredentialPurge(authService, log, cfg.PurgeInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		purge.Run(gctx)
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	_ = g.Wait()
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
