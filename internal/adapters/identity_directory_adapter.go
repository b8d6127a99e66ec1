package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"processhub_backend/internal/auth/ports"
	"processhub_backend/internal/identity"
	identityrepo "processhub_backend/internal/identity/repository"
)

// IdentityDirectoryAdapter implements auth/ports.IdentityDirectory on top of
// the identity context's repository.
type IdentityDirectoryAdapter struct {
	dir identity.Directory
}

// NewIdentityDirectoryAdapter creates a new adapter.
func NewIdentityDirectoryAdapter(dir identity.Directory) *IdentityDirectoryAdapter {
	return &IdentityDirectoryAdapter{dir: dir}
}

func (a *IdentityDirectoryAdapter) FindUserByEmail(ctx context.Context, email string) (ports.DirectoryUser, error) {
	u, err := a.dir.FindUserByEmail(ctx, email)
	if err != nil {
		return ports.DirectoryUser{}, translate("find user", err)
	}
	return toDirectoryUser(u), nil
}

func (a *IdentityDirectoryAdapter) GetUser(ctx context.Context, userID uuid.UUID) (ports.DirectoryUser, error) {
	u, err := a.dir.GetUser(ctx, userID)
	if err != nil {
		return ports.DirectoryUser{}, translate("get user", err)
	}
	return toDirectoryUser(u), nil
}

func (a *IdentityDirectoryAdapter) GetDefaultMembership(ctx context.Context, userID uuid.UUID) (ports.Membership, error) {
	m, err := a.dir.GetDefaultMembership(ctx, userID)
	if err != nil {
		return ports.Membership{}, translate("get default membership", err)
	}
	return toMembership(m), nil
}

func (a *IdentityDirectoryAdapter) GetMembership(ctx context.Context, userID, organizationID uuid.UUID) (ports.Membership, error) {
	m, err := a.dir.GetMembership(ctx, userID, organizationID)
	if err != nil {
		return ports.Membership{}, translate("get membership", err)
	}
	return toMembership(m), nil
}

func (a *IdentityDirectoryAdapter) GetOrganization(ctx context.Context, userID, organizationID uuid.UUID) (ports.OrganizationSummary, error) {
	org, err := a.dir.GetOrganizationForUser(ctx, userID, organizationID)
	if err != nil {
		return ports.OrganizationSummary{}, translate("get organization", err)
	}
	return ports.OrganizationSummary{ID: org.ID, Name: org.Name, Slug: org.Slug}, nil
}

func translate(op string, err error) error {
	if errors.Is(err, identityrepo.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ports.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toDirectoryUser(u identityrepo.User) ports.DirectoryUser {
	return ports.DirectoryUser{
		ID:                    u.ID,
		Email:                 u.Email,
		DisplayName:           u.DisplayName,
		DefaultOrganizationID: u.DefaultOrganizationID,
		Active:                u.DeactivatedAt == nil,
	}
}

func toMembership(m identityrepo.Member) ports.Membership {
	return ports.Membership{OrganizationID: m.OrganizationID, UserID: m.UserID, Role: m.Role}
}

// Compile-time check.
var _ ports.IdentityDirectory = (*IdentityDirectoryAdapter)(nil)
