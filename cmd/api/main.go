package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"processhub_backend/internal/adapters"
	"processhub_backend/internal/auth"
	"processhub_backend/internal/email"
	"processhub_backend/internal/events"
	apphttp "processhub_backend/internal/http"
	"processhub_backend/internal/http/router"
	"processhub_backend/internal/identity"
	"processhub_backend/internal/scheduler"
	"processhub_backend/platform/config"
	"processhub_backend/platform/db"
	"processhub_backend/platform/fieldcrypto"
	"processhub_backend/platform/logger"
	"processhub_backend/platform/tracing"
	"processhub_backend/platform/validator"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "credentialStore", cfg.CredentialStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg, log.Logger, "processhub-api")
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		panic("failed to initialize tracing: " + err.Error())
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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
	log.Info("database connection established")

	if cfg.MigrationsEnabled {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, pool, log.Logger)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	rdb, closeRedis := initRedis(ctx, cfg, log)
	if closeRedis != nil {
		defer closeRedis()
	}

	crypto, err := fieldcrypto.NewFromSecret(cfg.FieldEncryptionSecret())
	if err != nil {
		log.Error("failed to initialize field encryption", "error", err)
		panic("failed to initialize field encryption: " + err.Error())
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	identityModule := identity.NewModule(pool, crypto, val, log)

	var credentialRedis redis.Cmdable
	if rdb != nil {
		credentialRedis = rdb
	}
	store, err := auth.NewCredentialStore(cfg, pool, credentialRedis)
	if err != nil {
		log.Error("failed to initialize credential store", "error", err)
		panic("failed to initialize credential store: " + err.Error())
	}

	// Anti-Corruption Layer: auth only sees its own IdentityDirectory port
	directory := adapters.NewIdentityDirectoryAdapter(identityModule.Directory())
	authModule := auth.NewModule(store, directory, cfg, eventBus, log, val)

	delivery, closeQueue := initMagicLinkDelivery(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}
	events.Register(eventBus, delivery, auth.NewAudit(log))

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Identity: adapters.NewAuthIdentityResolver(authModule.Service()),
		Modules: []apphttp.Module{
			authModule,
			identityModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(engine, "processhub-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		eventBus.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

// initRedis connects when REDIS_URL is set. The redis credential store
// requires it; config validation enforces that.
func initRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Client, func()) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}

	client, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	if err := withRetry(ctx, log, "redis connection", 5, time.Second, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	return client, func() { _ = client.Close() }
}

// initMagicLinkDelivery queues sign-in emails through asynq when Redis is
// configured and sends them inline otherwise.
func initMagicLinkDelivery(cfg *config.Config, log *logger.Logger) (*scheduler.MagicLinkDelivery, func()) {
	sender := email.NewSender(cfg, log)

	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; magic links are sent inline")
		return scheduler.NewMagicLinkDelivery(nil, sender, log), nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client; magic links are sent inline", "error", err)
		return scheduler.NewMagicLinkDelivery(nil, sender, log), nil
	}
	return scheduler.NewMagicLinkDelivery(client, sender, log), func() { _ = client.Close() }
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
