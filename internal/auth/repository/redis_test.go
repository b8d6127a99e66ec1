package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, RedisStoreOptions{Prefix: "test:", Retention: time.Hour}), mr
}

func TestRedisTTLMeasuredFromRecordClock(t *testing.T) {
	store, _ := newTestRedisStore(t)
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, (3 * time.Hour).Milliseconds(), store.ttlFor(created.Add(2*time.Hour), created))
	assert.Equal(t, time.Second.Milliseconds(), store.ttlFor(created.Add(-2*time.Hour), created))
}

func TestRedisKeysExpireRelativeToCreation(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	rt := RefreshToken{
		ID:             uuid.New(),
		FamilyID:       uuid.New(),
		UserID:         uuid.New(),
		OrganizationID: uuid.New(),
		TokenHash:      "hash-created",
		ExpiresAt:      created.Add(time.Hour),
		CreatedAt:      created,
	}
	require.NoError(t, store.CreateRefreshToken(ctx, rt))
	assert.Equal(t, 2*time.Hour, mr.TTL(store.refreshPrefix()+rt.TokenHash))

	link := MagicLinkToken{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		TokenHash: "hash-link",
		ExpiresAt: created.Add(15 * time.Minute),
		CreatedAt: created,
	}
	require.NoError(t, store.ReplaceMagicLinkToken(ctx, link))
	assert.Equal(t, 75*time.Minute, mr.TTL(store.magicKeyPrefix()+link.TokenHash))
}

func TestRedisRotationExpiresSuccessorFromNow(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	rt := RefreshToken{
		ID:             uuid.New(),
		FamilyID:       uuid.New(),
		UserID:         uuid.New(),
		OrganizationID: uuid.New(),
		TokenHash:      "hash-old",
		ExpiresAt:      now.Add(time.Hour),
		CreatedAt:      now,
	}
	require.NoError(t, store.CreateRefreshToken(ctx, rt))

	successor := RefreshToken{
		ID:        uuid.New(),
		TokenHash: "hash-new",
		ExpiresAt: now.Add(4 * time.Hour),
		CreatedAt: now,
	}
	_, err := store.RotateRefreshToken(ctx, rt.TokenHash, successor, now)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Hour, mr.TTL(store.refreshPrefix()+successor.TokenHash))
	assert.GreaterOrEqual(t, mr.TTL(store.familyPrefix()+rt.FamilyID.String()), 5*time.Hour)
	assert.True(t, mr.Exists(store.userFamiliesKey(rt.UserID)))
}
