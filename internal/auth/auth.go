// Package auth provides passwordless authentication and tenant-scoped
// sessions. This file defines the public API of the auth bounded context.
// Only types and interfaces defined here should be imported by other domains.
package auth

import (
	"context"

	"processhub_backend/internal/auth/repository"
	"processhub_backend/internal/auth/service"
)

// Identity is the verified caller behind an access token.
type Identity = service.Identity

// Purger deletes expired and consumed credentials. The scheduler depends on
// this rather than on the whole service.
type Purger interface {
	PurgeExpired(ctx context.Context) (repository.PurgeResult, error)
}

var _ Purger = (*service.Service)(nil)
