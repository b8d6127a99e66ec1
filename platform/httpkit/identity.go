// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Principal is what a verified bearer token resolves to.
type Principal struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
}

// IdentityResolver verifies a bearer token and returns the caller's current
// identity. Implementations must check the membership is still live.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, bearerToken string) (Principal, error)
}

// IdentityResolverFunc adapts a function to IdentityResolver.
type IdentityResolverFunc func(ctx context.Context, bearerToken string) (Principal, error)

func (f IdentityResolverFunc) ResolveIdentity(ctx context.Context, bearerToken string) (Principal, error) {
	return f(ctx, bearerToken)
}

// Identity represents the authenticated user's identity.
// This interface abstracts identity extraction from the web framework,
// allowing handlers to access user information without depending on Gin.
type Identity interface {
	UserID() uuid.UUID
	// OrganizationID is the tenant the request is scoped to.
	OrganizationID() uuid.UUID
	Role() string
	HasRole(role string) bool
	IsAuthenticated() bool
}

type identity struct {
	principal     Principal
	authenticated bool
}

func (i *identity) UserID() uuid.UUID         { return i.principal.UserID }
func (i *identity) OrganizationID() uuid.UUID { return i.principal.OrganizationID }
func (i *identity) Role() string              { return i.principal.Role }
func (i *identity) IsAuthenticated() bool     { return i.authenticated }

// HasRole reports whether the membership role is at least role.
// Roles rank owner > admin > member.
func (i *identity) HasRole(role string) bool {
	return i.authenticated && roleRank(i.principal.Role) >= roleRank(role) && roleRank(role) > 0
}

func roleRank(role string) int {
	switch role {
	case "owner":
		return 3
	case "admin":
		return 2
	case "member":
		return 1
	default:
		return 0
	}
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if user info is not present.
func GetIdentity(c *gin.Context) Identity {
	value, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return &identity{}
	}
	principal, ok := value.(Principal)
	if !ok || principal.UserID == uuid.Nil {
		return &identity{}
	}
	return &identity{principal: principal, authenticated: true}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the user is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil
	}
	return id
}
