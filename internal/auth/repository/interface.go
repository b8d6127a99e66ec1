package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record matches, including when a
	// conditional consume or rotate loses the race.
	ErrNotFound = errors.New("not found")
	// ErrFamilyRevoked is returned when a token is added to a revoked family.
	ErrFamilyRevoked = errors.New("refresh token family revoked")
)

// MagicLinkToken is a stored single-use sign-in credential. Only the hash of
// the secret is kept.
type MagicLinkToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// RefreshToken is a stored refresh credential. FamilyRevokedAt reflects the
// state of the whole family.
type RefreshToken struct {
	ID              uuid.UUID
	FamilyID        uuid.UUID
	UserID          uuid.UUID
	OrganizationID  uuid.UUID
	TokenHash       string
	ExpiresAt       time.Time
	RotatedAt       *time.Time
	FamilyRevokedAt *time.Time
	CreatedAt       time.Time
}

// PurgeResult counts deleted records.
type PurgeResult struct {
	MagicLinks    int64
	RefreshTokens int64
}

// CredentialStore persists magic-link and refresh credentials. Every state
// transition is a single atomic operation; concurrent callers racing on the
// same record see exactly one winner.
type CredentialStore interface {
	// ReplaceMagicLinkToken discards the user's unconsumed tokens and stores
	// a new one.
	ReplaceMagicLinkToken(ctx context.Context, token MagicLinkToken) error
	// ConsumeMagicLinkToken marks the token consumed if it is unconsumed and
	// unexpired at now. Losers and misses get ErrNotFound.
	ConsumeMagicLinkToken(ctx context.Context, tokenHash string, now time.Time) (MagicLinkToken, error)
	// LookupMagicLinkToken returns the token in any state, for classification.
	LookupMagicLinkToken(ctx context.Context, tokenHash string) (MagicLinkToken, error)

	// CreateRefreshToken stores a token, creating its family on first use.
	// Fails with ErrFamilyRevoked when the family has been revoked.
	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	// RotateRefreshToken marks the token rotated if it is unrotated,
	// unexpired and its family is live, and stores successor in the same
	// step. The successor inherits the family, user and organization of the
	// rotated token. Losers and misses get ErrNotFound and nothing is stored.
	RotateRefreshToken(ctx context.Context, tokenHash string, successor RefreshToken, now time.Time) (RefreshToken, error)
	// LookupRefreshToken returns the token in any state, for classification.
	LookupRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error)
	RevokeRefreshFamily(ctx context.Context, familyID uuid.UUID, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) error

	// PurgeExpired deletes records whose expiry is before cutoff.
	PurgeExpired(ctx context.Context, cutoff time.Time) (PurgeResult, error)
}
