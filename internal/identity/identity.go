// Package identity provides the users, organizations and memberships
// bounded context API.
package identity

import (
	"context"

	"github.com/google/uuid"

	"processhub_backend/internal/identity/repository"
)

// Directory is the read surface other domains use to resolve users and
// memberships. Membership reads only ever see rows of the given user.
type Directory interface {
	FindUserByEmail(ctx context.Context, email string) (repository.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (repository.User, error)
	GetMembership(ctx context.Context, userID, organizationID uuid.UUID) (repository.Member, error)
	GetDefaultMembership(ctx context.Context, userID uuid.UUID) (repository.Member, error)
	GetOrganizationForUser(ctx context.Context, userID, organizationID uuid.UUID) (repository.Organization, error)
}

var _ Directory = (*repository.Repository)(nil)
