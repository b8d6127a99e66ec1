// Package ports defines the interfaces the auth context consumes from other
// bounded contexts. Implementations live in internal/adapters.
package ports

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by directory lookups that match nothing.
var ErrNotFound = errors.New("not found")

// DirectoryUser is the slice of a user the auth context needs.
type DirectoryUser struct {
	ID                    uuid.UUID
	Email                 string
	DisplayName           string
	DefaultOrganizationID *uuid.UUID
	Active                bool
}

// Membership is a user's role in one organization.
type Membership struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           string
}

// OrganizationSummary is the public face of an organization.
type OrganizationSummary struct {
	ID   uuid.UUID
	Name string
	Slug string
}

// IdentityDirectory resolves users, organizations and memberships.
// Every lookup returns ErrNotFound (possibly wrapped) when nothing matches.
type IdentityDirectory interface {
	FindUserByEmail(ctx context.Context, email string) (DirectoryUser, error)
	GetUser(ctx context.Context, userID uuid.UUID) (DirectoryUser, error)
	// GetDefaultMembership returns the membership of the user's default
	// organization, falling back to the oldest membership.
	GetDefaultMembership(ctx context.Context, userID uuid.UUID) (Membership, error)
	// GetMembership must read live state: a removed member yields ErrNotFound.
	GetMembership(ctx context.Context, userID, organizationID uuid.UUID) (Membership, error)
	// GetOrganization returns an organization userID belongs to.
	GetOrganization(ctx context.Context, userID, organizationID uuid.UUID) (OrganizationSummary, error)
}
