package adapters

import (
	"context"

	authsvc "processhub_backend/internal/auth/service"
	"processhub_backend/platform/httpkit"
)

// AccessTokenResolver is the narrow surface of the auth service the HTTP
// middleware needs.
type AccessTokenResolver interface {
	ResolveIdentity(ctx context.Context, bearer string) (authsvc.Identity, error)
}

// AuthIdentityResolver implements httpkit.IdentityResolver with the auth
// service's access token verification.
type AuthIdentityResolver struct {
	svc AccessTokenResolver
}

// NewAuthIdentityResolver creates a new adapter.
func NewAuthIdentityResolver(svc AccessTokenResolver) *AuthIdentityResolver {
	return &AuthIdentityResolver{svc: svc}
}

func (a *AuthIdentityResolver) ResolveIdentity(ctx context.Context, bearer string) (httpkit.Principal, error) {
	identity, err := a.svc.ResolveIdentity(ctx, bearer)
	if err != nil {
		return httpkit.Principal{}, err
	}
	return httpkit.Principal{
		UserID:         identity.UserID,
		OrganizationID: identity.OrganizationID,
		Role:           identity.Role,
	}, nil
}

// Compile-time check.
var _ httpkit.IdentityResolver = (*AuthIdentityResolver)(nil)
