// Package auth provides the authentication bounded context module.
// This file defines the module that encapsulates all auth setup and route registration.
package auth

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"processhub_backend/internal/auth/handler"
	"processhub_backend/internal/auth/ports"
	"processhub_backend/internal/auth/repository"
	"processhub_backend/internal/auth/service"
	"processhub_backend/internal/events"
	apphttp "processhub_backend/internal/http"
	"processhub_backend/platform/config"
	"processhub_backend/platform/logger"
	"processhub_backend/platform/tenant"
	"processhub_backend/platform/validator"
)

// Module is the auth bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	store   repository.CredentialStore
}

// NewModule creates and initializes the auth module with all its dependencies.
func NewModule(store repository.CredentialStore, directory ports.IdentityDirectory, cfg config.AuthServiceConfig, eventBus events.Bus, log *logger.Logger, val *validator.Validator) *Module {
	svc := service.New(store, directory, eventBus, cfg, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		store:   store,
	}
}

// StoreConfig is what NewCredentialStore reads.
type StoreConfig interface {
	config.CredentialStoreConfig
	config.AuthServiceConfig
}

// NewCredentialStore returns the store selected by CREDENTIAL_STORE. The
// redis client may be nil when Postgres is selected.
func NewCredentialStore(cfg StoreConfig, conn tenant.DBTX, rdb redis.Cmdable) (repository.CredentialStore, error) {
	switch kind := cfg.GetCredentialStore(); kind {
	case config.CredentialStorePostgres:
		return repository.NewPostgresStore(conn), nil
	case config.CredentialStoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("credential store %q needs a redis client", kind)
		}
		return repository.NewRedisStore(rdb, repository.RedisStoreOptions{
			RevokedMarkerTTL: cfg.GetRefreshTokenTTL(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown credential store %q", kind)
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "auth"
}

// Service returns the auth service for use by adapters (e.g., the HTTP
// identity resolver).
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts auth routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public credential routes with stricter rate limiting
	authGroup := ctx.V1.Group("/auth")
	authGroup.Use(ctx.AuthRateLimiter.RateLimit())
	m.handler.RegisterRoutes(authGroup)

	ctx.Protected.POST("/auth/switch-organization", m.handler.SwitchOrganization)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
