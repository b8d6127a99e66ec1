// Package identity provides the identity bounded context module.
package identity

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "processhub_backend/internal/http"
	"processhub_backend/internal/identity/handler"
	"processhub_backend/internal/identity/repository"
	"processhub_backend/internal/identity/service"
	"processhub_backend/platform/fieldcrypto"
	"processhub_backend/platform/logger"
	"processhub_backend/platform/validator"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

func NewModule(pool *pgxpool.Pool, crypto *fieldcrypto.Service, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, crypto, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc, repo: repo}
}

func (m *Module) Name() string {
	return "identity"
}

func (m *Module) Service() *service.Service {
	return m.service
}

// Directory exposes membership lookups to the auth context.
func (m *Module) Directory() Directory {
	return m.repo
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
	m.handler.RegisterAdminRoutes(ctx.Admin)
}

var _ apphttp.Module = (*Module)(nil)
