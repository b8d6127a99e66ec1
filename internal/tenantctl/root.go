// Package tenantctl implements the operator CLI for provisioning
// organizations and users and maintaining the credential store.
package tenantctl

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"processhub_backend/internal/adapters"
	"processhub_backend/internal/auth"
	authservice "processhub_backend/internal/auth/service"
	"processhub_backend/internal/events"
	identityrepo "processhub_backend/internal/identity/repository"
	identityservice "processhub_backend/internal/identity/service"
	"processhub_backend/internal/scheduler"
	"processhub_backend/platform/config"
	"processhub_backend/platform/db"
	"processhub_backend/platform/fieldcrypto"
	"processhub_backend/platform/logger"
)

// env holds the lazily opened connections shared by subcommands.
type env struct {
	out  io.Writer
	cfg  *config.Config
	log  *logger.Logger
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewRootCommand builds the tenantctl command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	e := &env{out: out, log: logger.Nop()}

	root := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Operate ProcessHub tenants and credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}
	root.SetOut(out)

	root.AddCommand(
		newMigrateCommand(e),
		newOrgCommand(e),
		newUserCommand(e),
		newMemberCommand(e),
		newKeyCommand(e),
		newCredentialsCommand(e),
	)
	return root
}

// Execute runs the CLI against the process arguments.
func Execute(ctx context.Context, out io.Writer) error {
	return NewRootCommand(out).ExecuteContext(ctx)
}

func (e *env) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg
	e.log = logger.New(cfg.Env)
	return cfg, nil
}

func (e *env) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if e.pool != nil {
		return e.pool, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	e.pool = pool
	return pool, nil
}

func (e *env) identity(ctx context.Context) (*identityservice.Service, error) {
	pool, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	crypto, err := fieldcrypto.NewFromSecret(e.cfg.FieldEncryptionSecret())
	if err != nil {
		return nil, err
	}
	return identityservice.New(identityrepo.New(pool), crypto, e.log), nil
}

func (e *env) auth(ctx context.Context) (*authservice.Service, error) {
	pool, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}

	var rdb redis.Cmdable
	if e.cfg.CredentialStore == config.CredentialStoreRedis {
		client, err := scheduler.NewRedisClient(e.cfg)
		if err != nil {
			return nil, err
		}
		e.rdb = client
		rdb = client
	}

	store, err := auth.NewCredentialStore(e.cfg, pool, rdb)
	if err != nil {
		return nil, err
	}
	directory := adapters.NewIdentityDirectoryAdapter(identityrepo.New(pool))
	return authservice.New(store, directory, events.NewInMemoryBus(e.log), e.cfg, e.log), nil
}

func (e *env) close() {
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

func (e *env) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(e.out, format, args...)
}
