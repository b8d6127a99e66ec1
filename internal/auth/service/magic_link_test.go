package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processhub_backend/internal/auth/repository"
	"processhub_backend/internal/auth/token"
	"processhub_backend/internal/events"
)

func TestRequestMagicLinkAckDoesNotRevealAccountExistence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	known, err := f.svc.RequestMagicLink(ctx, f.user.Email)
	require.NoError(t, err)
	unknown, err := f.svc.RequestMagicLink(ctx, "nobody@example.test")
	require.NoError(t, err)

	assert.Equal(t, known, unknown)
	assert.Equal(t, 15, known.ExpiresInMinutes)
	assert.Len(t, f.bus.magicLinks(), 1)
}

func TestRequestMagicLinkNormalizesEmail(t *testing.T) {
	f := newFixture(t)

	raw := f.requestToken(t, "  ADA@Example.TEST ")
	assert.True(t, token.WellFormed(raw))

	link := f.bus.magicLinks()[0]
	assert.Equal(t, f.user.ID, link.UserID)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), link.ExpiresAt)
}

func TestRequestMagicLinkIgnoresDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	f.directory.deactivate(f.user.ID)

	ack, err := f.svc.RequestMagicLink(context.Background(), f.user.Email)
	require.NoError(t, err)
	assert.Equal(t, magicLinkAckText, ack.Message)
	assert.Empty(t, f.bus.magicLinks())
}

func TestRequestMagicLinkStoresOnlyTheHash(t *testing.T) {
	f := newFixture(t)
	raw := f.requestToken(t, f.user.Email)

	_, err := f.store.LookupMagicLinkToken(context.Background(), raw)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	stored, err := f.store.LookupMagicLinkToken(context.Background(), token.HashSHA256(raw))
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, stored.UserID)
}

func TestRequestMagicLinkPadsToMinimumDuration(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg = testConfig{minResponse: 40 * time.Millisecond}
	f.svc.now = func() time.Time { return time.Now().UTC() }

	started := time.Now()
	_, err := f.svc.RequestMagicLink(context.Background(), "nobody@example.test")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 40*time.Millisecond)
}

func TestRequestMagicLinkPropagatesDirectoryOutage(t *testing.T) {
	f := newFixture(t)
	f.directory.err = errors.New("connection refused")

	_, err := f.svc.RequestMagicLink(context.Background(), f.user.Email)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMagicLinkStartsSessionInDefaultOrganization(t *testing.T) {
	f := newFixture(t)
	session := f.signIn(t)

	assert.Equal(t, f.user.ID, session.User.ID)
	assert.Equal(t, f.org, session.Organization)
	assert.Equal(t, "admin", session.Role)
	assert.Equal(t, "bearer", session.TokenType)
	assert.Equal(t, 900, session.ExpiresIn)
	assert.NotEmpty(t, session.AccessToken)
	assert.True(t, token.WellFormed(session.RefreshToken))
	assert.Equal(t, 1, f.bus.count(events.SessionStarted{}.EventName()))
}

func TestVerifyMagicLinkIsSingleUse(t *testing.T) {
	f := newFixture(t)
	raw := f.requestToken(t, f.user.Email)

	_, err := f.svc.VerifyMagicLink(context.Background(), raw)
	require.NoError(t, err)

	_, err = f.svc.VerifyMagicLink(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMagicLinkConcurrentPresentationsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	raw := f.requestToken(t, f.user.Email)

	var wins, rejections atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyMagicLink(context.Background(), raw)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrInvalidToken):
				rejections.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(19), rejections.Load())
}

func TestSecondMagicLinkInvalidatesFirst(t *testing.T) {
	f := newFixture(t)
	first := f.requestToken(t, f.user.Email)
	second := f.requestToken(t, f.user.Email)

	_, err := f.svc.VerifyMagicLink(context.Background(), first)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.VerifyMagicLink(context.Background(), second)
	assert.NoError(t, err)
}

func TestVerifyMagicLinkRejectsExpiredToken(t *testing.T) {
	f := newFixture(t)
	raw := f.requestToken(t, f.user.Email)

	f.clock.Advance(15 * time.Minute)

	_, err := f.svc.VerifyMagicLink(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMagicLinkRejectsMalformedAndUnknownTokens(t *testing.T) {
	f := newFixture(t)
	unknown, err := token.GenerateRandomToken(token.SecretBytes)
	require.NoError(t, err)

	for _, raw := range []string{"", "short", "not base64 at all but long enough to pass a length check", unknown} {
		_, err := f.svc.VerifyMagicLink(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidToken, raw)
		assert.Equal(t, "invalid or expired token", err.Error())
	}
}

func TestVerifyMagicLinkRequiresMembership(t *testing.T) {
	f := newFixture(t)
	raw := f.requestToken(t, f.user.Email)
	f.directory.removeMembership(f.user.ID, f.org.ID)

	_, err := f.svc.VerifyMagicLink(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
