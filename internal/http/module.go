// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"github.com/gin-gonic/gin"

	"processhub_backend/platform/httpkit"
)

// Module represents a bounded context that can register its HTTP routes.
// Each domain module implements this interface to encapsulate its own
// route setup, keeping the main router decoupled from specific endpoints.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access.
	Engine *gin.Engine
	// V1 is the /api/v1 route group.
	V1 *gin.RouterGroup
	// Protected is the /api/v1 group behind AuthRequired. Every request
	// reaching it has a tenant bound on its context.
	Protected *gin.RouterGroup
	// Admin is Protected restricted to owners and admins.
	Admin *gin.RouterGroup
	// AuthMiddleware resolves the bearer token and binds the tenant.
	AuthMiddleware gin.HandlerFunc
	// AuthRateLimiter is the stricter per-IP limiter for credential routes.
	AuthRateLimiter *httpkit.IPRateLimiter
}
