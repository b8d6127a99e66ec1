package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"processhub_backend/platform/db"
	"processhub_backend/platform/tenant"
)

// Deletes the user's outstanding tokens and inserts the new one in one
// statement. The INSERT reads from the DELETE so the delete runs first.
const replaceMagicLinkQuery = `
	WITH invalidated AS (
		DELETE FROM magic_link_tokens
		WHERE user_id = $2 AND consumed_at IS NULL
		RETURNING id
	)
	INSERT INTO magic_link_tokens (id, user_id, token_hash, expires_at, created_at)
	SELECT $1, $2, $3, $4, $5
	FROM (SELECT count(*) FROM invalidated) AS invalidated_count
`

const consumeMagicLinkQuery = `
	UPDATE magic_link_tokens
	SET consumed_at = $2
	WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > $2
	RETURNING id, user_id, token_hash, expires_at, consumed_at, created_at
`

const lookupMagicLinkQuery = `
	SELECT id, user_id, token_hash, expires_at, consumed_at, created_at
	FROM magic_link_tokens
	WHERE token_hash = $1
`

const ensureRefreshFamilyQuery = `
	INSERT INTO refresh_token_families (id, user_id, organization_id, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO NOTHING
`

// Inserts only while the family is live.
const insertRefreshTokenQuery = `
	INSERT INTO refresh_tokens (id, family_id, user_id, organization_id, token_hash, expires_at, created_at)
	SELECT $1, f.id, $3, $4, $5, $6, $7
	FROM refresh_token_families f
	WHERE f.id = $2 AND f.revoked_at IS NULL
`

// Rotates the presented token and inserts its successor in one statement.
// The INSERT reads from the UPDATE, so a losing rotation inserts nothing.
const rotateRefreshTokenQuery = `
	WITH rotated AS (
		UPDATE refresh_tokens t
		SET rotated_at = $2
		FROM refresh_token_families f
		WHERE t.token_hash = $1
			AND f.id = t.family_id
			AND t.rotated_at IS NULL
			AND f.revoked_at IS NULL
			AND t.expires_at > $2
		RETURNING t.id, t.family_id, t.user_id, t.organization_id, t.token_hash, t.expires_at, t.rotated_at, f.revoked_at, t.created_at
	), successor AS (
		INSERT INTO refresh_tokens (id, family_id, user_id, organization_id, token_hash, expires_at, created_at)
		SELECT $3, family_id, user_id, organization_id, $4, $5, $6
		FROM rotated
	)
	SELECT id, family_id, user_id, organization_id, token_hash, expires_at, rotated_at, revoked_at, created_at
	FROM rotated
`

const lookupRefreshTokenQuery = `
	SELECT t.id, t.family_id, t.user_id, t.organization_id, t.token_hash, t.expires_at, t.rotated_at, f.revoked_at, t.created_at
	FROM refresh_tokens t
	JOIN refresh_token_families f ON f.id = t.family_id
	WHERE t.token_hash = $1
`

const revokeRefreshFamilyQuery = `
	UPDATE refresh_token_families
	SET revoked_at = $2
	WHERE id = $1 AND revoked_at IS NULL
`

const revokeAllForUserQuery = `
	UPDATE refresh_token_families
	SET revoked_at = $2
	WHERE user_id = $1 AND revoked_at IS NULL
`

const purgeMagicLinksQuery = `DELETE FROM magic_link_tokens WHERE expires_at < $1`

// A family goes once none of its tokens can still be presented.
const purgeRefreshTokensQuery = `
	WITH expired AS (
		DELETE FROM refresh_tokens WHERE expires_at < $1
		RETURNING family_id
	), emptied AS (
		DELETE FROM refresh_token_families f
		WHERE f.id IN (SELECT family_id FROM expired)
			AND NOT EXISTS (
				SELECT 1 FROM refresh_tokens t
				WHERE t.family_id = f.id AND t.expires_at >= $1
			)
	)
	SELECT count(*) FROM expired
`

// replaceAttempts bounds retries when two requests for the same user race on
// the outstanding-token unique index.
const replaceAttempts = 3

// PostgresStore is the CredentialStore backed by Postgres.
type PostgresStore struct {
	db tenant.DBTX
}

var _ CredentialStore = (*PostgresStore)(nil)

// NewPostgresStore creates a store on a pool or transaction.
func NewPostgresStore(conn tenant.DBTX) *PostgresStore {
	return &PostgresStore{db: conn}
}

func (s *PostgresStore) ReplaceMagicLinkToken(ctx context.Context, token MagicLinkToken) error {
	var err error
	for attempt := 0; attempt < replaceAttempts; attempt++ {
		_, err = s.db.Exec(ctx, replaceMagicLinkQuery,
			token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt)
		if err == nil || !db.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("replace magic link token: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConsumeMagicLinkToken(ctx context.Context, tokenHash string, now time.Time) (MagicLinkToken, error) {
	token, err := scanMagicLink(s.db.QueryRow(ctx, consumeMagicLinkQuery, tokenHash, now))
	if err != nil {
		return MagicLinkToken{}, wrapQueryErr("consume magic link token", err)
	}
	return token, nil
}

func (s *PostgresStore) LookupMagicLinkToken(ctx context.Context, tokenHash string) (MagicLinkToken, error) {
	token, err := scanMagicLink(s.db.QueryRow(ctx, lookupMagicLinkQuery, tokenHash))
	if err != nil {
		return MagicLinkToken{}, wrapQueryErr("lookup magic link token", err)
	}
	return token, nil
}

func (s *PostgresStore) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	if _, err := s.db.Exec(ctx, ensureRefreshFamilyQuery,
		token.FamilyID, token.UserID, token.OrganizationID, token.CreatedAt); err != nil {
		return fmt.Errorf("ensure refresh family: %w", err)
	}

	tag, err := s.db.Exec(ctx, insertRefreshTokenQuery,
		token.ID, token.FamilyID, token.UserID, token.OrganizationID,
		token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFamilyRevoked
	}
	return nil
}

func (s *PostgresStore) RotateRefreshToken(ctx context.Context, tokenHash string, successor RefreshToken, now time.Time) (RefreshToken, error) {
	token, err := scanRefresh(s.db.QueryRow(ctx, rotateRefreshTokenQuery,
		tokenHash, now,
		successor.ID, successor.TokenHash, successor.ExpiresAt, successor.CreatedAt))
	if err != nil {
		return RefreshToken{}, wrapQueryErr("rotate refresh token", err)
	}
	return token, nil
}

func (s *PostgresStore) LookupRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error) {
	token, err := scanRefresh(s.db.QueryRow(ctx, lookupRefreshTokenQuery, tokenHash))
	if err != nil {
		return RefreshToken{}, wrapQueryErr("lookup refresh token", err)
	}
	return token, nil
}

func (s *PostgresStore) RevokeRefreshFamily(ctx context.Context, familyID uuid.UUID, now time.Time) error {
	if _, err := s.db.Exec(ctx, revokeRefreshFamilyQuery, familyID, now); err != nil {
		return fmt.Errorf("revoke refresh family: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) error {
	if _, err := s.db.Exec(ctx, revokeAllForUserQuery, userID, now); err != nil {
		return fmt.Errorf("revoke user refresh families: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	var result PurgeResult

	tag, err := s.db.Exec(ctx, purgeMagicLinksQuery, cutoff)
	if err != nil {
		return result, fmt.Errorf("purge magic links: %w", err)
	}
	result.MagicLinks = tag.RowsAffected()

	if err := s.db.QueryRow(ctx, purgeRefreshTokensQuery, cutoff).Scan(&result.RefreshTokens); err != nil {
		return result, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return result, nil
}

func scanMagicLink(row pgx.Row) (MagicLinkToken, error) {
	var t MagicLinkToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.ConsumedAt, &t.CreatedAt)
	return t, err
}

func scanRefresh(row pgx.Row) (RefreshToken, error) {
	var t RefreshToken
	err := row.Scan(&t.ID, &t.FamilyID, &t.UserID, &t.OrganizationID, &t.TokenHash,
		&t.ExpiresAt, &t.RotatedAt, &t.FamilyRevokedAt, &t.CreatedAt)
	return t, err
}

func wrapQueryErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
