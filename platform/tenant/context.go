// Package tenant carries the resolved organization through a request and
// enforces it on every data access, both in Postgres (row-level security
// activated per transaction) and in application queries (explicit predicate).
// This is part of the platform layer and contains no business logic.
package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrMissingTenantContext is returned when tenant-scoped data is accessed
	// without a resolved organization. It is an authorization defect and must
	// never be treated as "no filter".
	ErrMissingTenantContext = errors.New("missing tenant context")
	// ErrTenantAlreadyBound is returned by Bind when the context already
	// carries a different organization.
	ErrTenantAlreadyBound = errors.New("tenant already bound to a different organization")
)

type contextKey struct{}

// WithOrganization returns a copy of ctx bound to orgID.
func WithOrganization(ctx context.Context, orgID uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKey{}, orgID)
}

// Bind is WithOrganization for the authorization boundary: binding the same
// organization twice is a no-op, binding a different one is an error.
func Bind(ctx context.Context, orgID uuid.UUID) (context.Context, error) {
	if orgID == uuid.Nil {
		return ctx, ErrMissingTenantContext
	}
	if existing, ok := OrganizationID(ctx); ok {
		if existing != orgID {
			return ctx, ErrTenantAlreadyBound
		}
		return ctx, nil
	}
	return WithOrganization(ctx, orgID), nil
}

// OrganizationID returns the organization bound to ctx. The boolean is false
// when no tenant has been resolved, which is not an error by itself.
func OrganizationID(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	orgID, ok := ctx.Value(contextKey{}).(uuid.UUID)
	if !ok || orgID == uuid.Nil {
		return uuid.Nil, false
	}
	return orgID, true
}

// MustOrganizationID is OrganizationID for callers that require a tenant.
func MustOrganizationID(ctx context.Context) (uuid.UUID, error) {
	orgID, ok := OrganizationID(ctx)
	if !ok {
		return uuid.Nil, ErrMissingTenantContext
	}
	return orgID, nil
}
