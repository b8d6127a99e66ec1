// Package httpkit provides HTTP middleware infrastructure.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"processhub_backend/platform/apperr"
	"processhub_backend/platform/logger"
	"processhub_backend/platform/metrics"
	"processhub_backend/platform/tenant"
)

const (
	// ContextPrincipalKey is the gin context key for the resolved Principal.
	ContextPrincipalKey = "principal"
	// ContextUserIDKey is the gin context key for the authenticated user ID.
	ContextUserIDKey = "userID"
	// ContextTenantIDKey is the gin context key for the tenant (organization) ID.
	ContextTenantIDKey = "tenantID"
	// ContextRequestIDKey is the gin context key for the request ID.
	ContextRequestIDKey = "requestID"

	// HeaderRequestID carries the request ID in and out.
	HeaderRequestID = "X-Request-ID"

	errMissingToken = "missing token"
	errInvalidToken = "invalid or expired token"
)

// RequestID assigns every request an ID, reusing a well-formed inbound one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, requestID)
		c.Header(HeaderRequestID, requestID)

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs HTTP requests with timing and records request metrics
// under the route template, not the raw path.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		metrics.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(status), latency)

		reqLog := log.WithContext(c.Request.Context())
		if len(c.Errors) > 0 && status >= http.StatusInternalServerError {
			reqLog.HTTPError(c.Request.Method, route, status, c.Errors.Last().Err, c.ClientIP())
			return
		}
		reqLog.HTTPRequest(c.Request.Method, route, status, float64(latency.Milliseconds()), c.ClientIP())
	}
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Cache-Control", "no-store")

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// IPRateLimiter manages per-IP rate limiters.
type IPRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewIPRateLimiter creates a new IP-based rate limiter.
func NewIPRateLimiter(r rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		rate:  r,
		burst: burst,
		log:   log,
	}
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	limiter, _ := i.limiters.LoadOrStore(ip, rate.NewLimiter(i.rate, i.burst))
	return limiter.(*rate.Limiter)
}

// RateLimit returns a middleware that rate limits by IP.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		if !i.getLimiter(ip).Allow() {
			if i.log != nil {
				i.log.RateLimitExceeded(ip, c.Request.URL.Path)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// NewAuthRateLimiter creates a rate limiter for the unauthenticated login
// endpoints: 5 requests per minute per IP, burst of 5.
func NewAuthRateLimiter(log *logger.Logger) *IPRateLimiter {
	return NewIPRateLimiter(rate.Limit(5.0/60.0), 5, log)
}

// AuthRequired resolves the bearer token and binds the caller's organization
// to the request context before any handler runs. Token problems are always
// reported with the same message.
func AuthRequired(resolver IdentityResolver, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, errMissingToken)
			return
		}

		principal, err := resolver.ResolveIdentity(c.Request.Context(), rawToken)
		if err != nil {
			if apperr.Is(err, apperr.KindInternal) {
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "authentication unavailable"})
				return
			}
			abortUnauthorized(c, errInvalidToken)
			return
		}

		ctx, err := tenant.Bind(c.Request.Context(), principal.OrganizationID)
		if err != nil {
			metrics.ObserveTenantScope("denied")
			if log != nil {
				log.TenantEvent("bind_failed", principal.OrganizationID.String(), false)
			}
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: msgMissingTenant})
			return
		}
		metrics.ObserveTenantScope("bound")

		ctx = context.WithValue(ctx, logger.UserIDKey, principal.UserID.String())
		ctx = context.WithValue(ctx, logger.TenantIDKey, principal.OrganizationID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Set(ContextPrincipalKey, principal)
		c.Set(ContextUserIDKey, principal.UserID)
		c.Set(ContextTenantIDKey, principal.OrganizationID)
		c.Next()
	}
}

// RequireRole returns middleware that checks the caller's membership role is
// at least role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		c.Next()
	}
}

func extractBearerToken(authHeader string) (string, bool) {
	const prefix = "bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	rawToken := strings.TrimSpace(authHeader[len(prefix):])
	if rawToken == "" {
		return "", false
	}

	return rawToken, true
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: message})
}
