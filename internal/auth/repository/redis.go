package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisRetention keeps spent records around long enough to classify
// late presentations (consumed, expired, reused) before Redis drops them.
const DefaultRedisRetention = 24 * time.Hour

// Scripts address sibling keys by prefix, so the store assumes a single
// Redis node rather than a cluster.
var (
	replaceMagicLinkScript = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old then
  local oldKey = ARGV[6] .. old
  if redis.call('HEXISTS', oldKey, 'consumed_at') == 0 then
    redis.call('DEL', oldKey)
  end
end
redis.call('HSET', KEYS[2], 'id', ARGV[2], 'user_id', ARGV[3], 'token_hash', ARGV[1], 'expires_at', ARGV[4], 'created_at', ARGV[5])
redis.call('PEXPIRE', KEYS[2], ARGV[7])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[7])
return 1
`)

	consumeMagicLinkScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return false end
if redis.call('HEXISTS', KEYS[1], 'consumed_at') == 1 then return false end
if tonumber(redis.call('HGET', KEYS[1], 'expires_at')) <= tonumber(ARGV[1]) then return false end
redis.call('HSET', KEYS[1], 'consumed_at', ARGV[1])
local userKey = ARGV[2] .. redis.call('HGET', KEYS[1], 'user_id')
if redis.call('GET', userKey) == ARGV[3] then
  redis.call('DEL', userKey)
end
return redis.call('HGETALL', KEYS[1])
`)

	createRefreshScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], 'revoked_at') == 1 then return -1 end
redis.call('HSETNX', KEYS[1], 'user_id', ARGV[2])
redis.call('HSETNX', KEYS[1], 'organization_id', ARGV[3])
redis.call('HSET', KEYS[2], 'id', ARGV[4], 'family_id', ARGV[1], 'user_id', ARGV[2], 'organization_id', ARGV[3], 'token_hash', ARGV[5], 'expires_at', ARGV[6], 'created_at', ARGV[7])
redis.call('PEXPIRE', KEYS[2], ARGV[8])
local ttl = tonumber(ARGV[8])
if redis.call('PTTL', KEYS[1]) < ttl then redis.call('PEXPIRE', KEYS[1], ttl) end
redis.call('SADD', KEYS[3], ARGV[1])
if redis.call('PTTL', KEYS[3]) < ttl then redis.call('PEXPIRE', KEYS[3], ttl) end
return 1
`)

	rotateRefreshScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return false end
if redis.call('HEXISTS', KEYS[1], 'rotated_at') == 1 then return false end
if tonumber(redis.call('HGET', KEYS[1], 'expires_at')) <= tonumber(ARGV[1]) then return false end
local familyID = redis.call('HGET', KEYS[1], 'family_id')
local fam = ARGV[2] .. familyID
if redis.call('HEXISTS', fam, 'revoked_at') == 1 then return false end
redis.call('HSET', KEYS[1], 'rotated_at', ARGV[1])
local userID = redis.call('HGET', KEYS[1], 'user_id')
local orgID = redis.call('HGET', KEYS[1], 'organization_id')
redis.call('HSET', KEYS[2], 'id', ARGV[3], 'family_id', familyID, 'user_id', userID, 'organization_id', orgID, 'token_hash', ARGV[4], 'expires_at', ARGV[5], 'created_at', ARGV[6])
local ttl = tonumber(ARGV[7])
redis.call('PEXPIRE', KEYS[2], ttl)
if redis.call('PTTL', fam) < ttl then redis.call('PEXPIRE', fam, ttl) end
local userKey = ARGV[8] .. userID
redis.call('SADD', userKey, familyID)
if redis.call('PTTL', userKey) < ttl then redis.call('PEXPIRE', userKey, ttl) end
return redis.call('HGETALL', KEYS[1])
`)

	revokeFamilyScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], 'revoked_at') == 0 then
  redis.call('HSET', KEYS[1], 'revoked_at', ARGV[1])
end
if redis.call('PTTL', KEYS[1]) < 0 then redis.call('PEXPIRE', KEYS[1], ARGV[2]) end
return 1
`)

	revokeUserScript = redis.NewScript(`
local families = redis.call('SMEMBERS', KEYS[1])
for _, id in ipairs(families) do
  local fam = ARGV[2] .. id
  if redis.call('HEXISTS', fam, 'revoked_at') == 0 then
    redis.call('HSET', fam, 'revoked_at', ARGV[1])
  end
  if redis.call('PTTL', fam) < 0 then redis.call('PEXPIRE', fam, ARGV[3]) end
end
return #families
`)
)

// RedisStoreOptions tune key naming and retention.
type RedisStoreOptions struct {
	Prefix string
	// Retention is added to every record's own expiry before Redis evicts it.
	Retention time.Duration
	// RevokedMarkerTTL bounds how long a revoked family is remembered. It
	// must cover the refresh token lifetime.
	RevokedMarkerTTL time.Duration
}

// RedisStore is the CredentialStore backed by Redis. Every transition is a
// single Lua script, which Redis runs atomically.
type RedisStore struct {
	client redis.Cmdable
	opts   RedisStoreOptions
}

var _ CredentialStore = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable, opts RedisStoreOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = "processhub:cred:"
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRedisRetention
	}
	if opts.RevokedMarkerTTL <= 0 {
		opts.RevokedMarkerTTL = 30 * 24 * time.Hour
	}
	return &RedisStore{client: client, opts: opts}
}

func (s *RedisStore) magicKeyPrefix() string     { return s.opts.Prefix + "ml:tok:" }
func (s *RedisStore) magicUserPrefix() string    { return s.opts.Prefix + "ml:user:" }
func (s *RedisStore) refreshPrefix() string      { return s.opts.Prefix + "rt:tok:" }
func (s *RedisStore) familyPrefix() string       { return s.opts.Prefix + "rt:fam:" }
func (s *RedisStore) userFamiliesPrefix() string { return s.opts.Prefix + "rt:user:" }
func (s *RedisStore) userFamiliesKey(userID uuid.UUID) string {
	return s.userFamiliesPrefix() + userID.String()
}

// ttlFor keeps a record until its expiry plus retention, measured from the
// caller's clock, never less than a second.
func (s *RedisStore) ttlFor(expiresAt, now time.Time) int64 {
	ttl := expiresAt.Sub(now) + s.opts.Retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl.Milliseconds()
}

func (s *RedisStore) ReplaceMagicLinkToken(ctx context.Context, token MagicLinkToken) error {
	keys := []string{
		s.magicUserPrefix() + token.UserID.String(),
		s.magicKeyPrefix() + token.TokenHash,
	}
	err := replaceMagicLinkScript.Run(ctx, s.client, keys,
		token.TokenHash,
		token.ID.String(),
		token.UserID.String(),
		token.ExpiresAt.UnixMilli(),
		token.CreatedAt.UnixMilli(),
		s.magicKeyPrefix(),
		s.ttlFor(token.ExpiresAt, token.CreatedAt),
	).Err()
	if err != nil {
		return fmt.Errorf("replace magic link token: %w", err)
	}
	return nil
}

func (s *RedisStore) ConsumeMagicLinkToken(ctx context.Context, tokenHash string, now time.Time) (MagicLinkToken, error) {
	values, err := consumeMagicLinkScript.Run(ctx, s.client,
		[]string{s.magicKeyPrefix() + tokenHash},
		now.UnixMilli(), s.magicUserPrefix(), tokenHash,
	).StringSlice()
	if err != nil {
		return MagicLinkToken{}, wrapRedisErr("consume magic link token", err)
	}
	return parseMagicLink(pairs(values))
}

func (s *RedisStore) LookupMagicLinkToken(ctx context.Context, tokenHash string) (MagicLinkToken, error) {
	fields, err := s.client.HGetAll(ctx, s.magicKeyPrefix()+tokenHash).Result()
	if err != nil {
		return MagicLinkToken{}, fmt.Errorf("lookup magic link token: %w", err)
	}
	if len(fields) == 0 {
		return MagicLinkToken{}, ErrNotFound
	}
	return parseMagicLink(fields)
}

func (s *RedisStore) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	keys := []string{
		s.familyPrefix() + token.FamilyID.String(),
		s.refreshPrefix() + token.TokenHash,
		s.userFamiliesKey(token.UserID),
	}
	res, err := createRefreshScript.Run(ctx, s.client, keys,
		token.FamilyID.String(),
		token.UserID.String(),
		token.OrganizationID.String(),
		token.ID.String(),
		token.TokenHash,
		token.ExpiresAt.UnixMilli(),
		token.CreatedAt.UnixMilli(),
		s.ttlFor(token.ExpiresAt, token.CreatedAt),
	).Int64()
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	if res < 0 {
		return ErrFamilyRevoked
	}
	return nil
}

func (s *RedisStore) RotateRefreshToken(ctx context.Context, tokenHash string, successor RefreshToken, now time.Time) (RefreshToken, error) {
	keys := []string{
		s.refreshPrefix() + tokenHash,
		s.refreshPrefix() + successor.TokenHash,
	}
	values, err := rotateRefreshScript.Run(ctx, s.client, keys,
		now.UnixMilli(),
		s.familyPrefix(),
		successor.ID.String(),
		successor.TokenHash,
		successor.ExpiresAt.UnixMilli(),
		successor.CreatedAt.UnixMilli(),
		s.ttlFor(successor.ExpiresAt, now),
		s.userFamiliesPrefix(),
	).StringSlice()
	if err != nil {
		return RefreshToken{}, wrapRedisErr("rotate refresh token", err)
	}
	return parseRefresh(pairs(values), nil)
}

func (s *RedisStore) LookupRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error) {
	fields, err := s.client.HGetAll(ctx, s.refreshPrefix()+tokenHash).Result()
	if err != nil {
		return RefreshToken{}, fmt.Errorf("lookup refresh token: %w", err)
	}
	if len(fields) == 0 {
		return RefreshToken{}, ErrNotFound
	}

	revoked, err := s.client.HGet(ctx, s.familyPrefix()+fields["family_id"], "revoked_at").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return RefreshToken{}, fmt.Errorf("lookup refresh family: %w", err)
	}
	var revokedAt *time.Time
	if revoked != "" {
		t, err := parseMillis(revoked)
		if err != nil {
			return RefreshToken{}, err
		}
		revokedAt = &t
	}
	return parseRefresh(fields, revokedAt)
}

func (s *RedisStore) RevokeRefreshFamily(ctx context.Context, familyID uuid.UUID, now time.Time) error {
	err := revokeFamilyScript.Run(ctx, s.client,
		[]string{s.familyPrefix() + familyID.String()},
		now.UnixMilli(), s.opts.RevokedMarkerTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("revoke refresh family: %w", err)
	}
	return nil
}

func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) error {
	err := revokeUserScript.Run(ctx, s.client,
		[]string{s.userFamiliesKey(userID)},
		now.UnixMilli(), s.familyPrefix(), s.opts.RevokedMarkerTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("revoke user refresh families: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op: every key carries its own TTL.
func (s *RedisStore) PurgeExpired(context.Context, time.Time) (PurgeResult, error) {
	return PurgeResult{}, nil
}

func wrapRedisErr(op string, err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func pairs(values []string) map[string]string {
	out := make(map[string]string, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		out[values[i]] = values[i+1]
	}
	return out
}

func parseMillis(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func parseOptionalMillis(fields map[string]string, key string) (*time.Time, error) {
	value, ok := fields[key]
	if !ok || value == "" {
		return nil, nil
	}
	t, err := parseMillis(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseMagicLink(fields map[string]string) (MagicLinkToken, error) {
	var (
		t   MagicLinkToken
		err error
	)
	if t.ID, err = uuid.Parse(fields["id"]); err != nil {
		return MagicLinkToken{}, fmt.Errorf("parse magic link id: %w", err)
	}
	if t.UserID, err = uuid.Parse(fields["user_id"]); err != nil {
		return MagicLinkToken{}, fmt.Errorf("parse magic link user: %w", err)
	}
	t.TokenHash = fields["token_hash"]
	if t.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return MagicLinkToken{}, err
	}
	if t.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return MagicLinkToken{}, err
	}
	if t.ConsumedAt, err = parseOptionalMillis(fields, "consumed_at"); err != nil {
		return MagicLinkToken{}, err
	}
	return t, nil
}

func parseRefresh(fields map[string]string, familyRevokedAt *time.Time) (RefreshToken, error) {
	var (
		t   RefreshToken
		err error
	)
	if t.ID, err = uuid.Parse(fields["id"]); err != nil {
		return RefreshToken{}, fmt.Errorf("parse refresh id: %w", err)
	}
	if t.FamilyID, err = uuid.Parse(fields["family_id"]); err != nil {
		return RefreshToken{}, fmt.Errorf("parse refresh family: %w", err)
	}
	if t.UserID, err = uuid.Parse(fields["user_id"]); err != nil {
		return RefreshToken{}, fmt.Errorf("parse refresh user: %w", err)
	}
	if t.OrganizationID, err = uuid.Parse(fields["organization_id"]); err != nil {
		return RefreshToken{}, fmt.Errorf("parse refresh organization: %w", err)
	}
	t.TokenHash = fields["token_hash"]
	if t.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return RefreshToken{}, err
	}
	if t.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return RefreshToken{}, err
	}
	if t.RotatedAt, err = parseOptionalMillis(fields, "rotated_at"); err != nil {
		return RefreshToken{}, err
	}
	t.FamilyRevokedAt = familyRevokedAt
	return t, nil
}
