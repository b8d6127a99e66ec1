package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processhub_backend/internal/auth/ports"
	"processhub_backend/internal/auth/token"
	"processhub_backend/internal/events"
	"processhub_backend/platform/apperr"
	"processhub_backend/platform/tenant"
)

func TestRefreshRotatesWithinFamilyAndOrganization(t *testing.T) {
	f := newFixture(t)
	session := f.signIn(t)
	ctx := context.Background()

	pair, err := f.svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, pair.RefreshToken)

	first, err := f.store.LookupRefreshToken(ctx, token.HashSHA256(session.RefreshToken))
	require.NoError(t, err)
	second, err := f.store.LookupRefreshToken(ctx, token.HashSHA256(pair.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, first.FamilyID, second.FamilyID)
	assert.Equal(t, f.org.ID, second.OrganizationID)
	assert.NotNil(t, first.RotatedAt)

	identity, err := f.svc.ResolveIdentity(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, identity.OrganizationID)
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	f := newFixture(t)
	session := f.signIn(t)
	ctx := context.Background()

	next, err := f.svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 1, f.bus.count(events.RefreshTokenReuseDetected{}.EventName()))

	// The legitimate holder's newer token dies with the family.
	_, err = f.svc.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	stored, err := f.store.LookupRefreshToken(ctx, token.HashSHA256(next.RefreshToken))
	require.NoError(t, err)
	assert.NotNil(t, stored.FamilyRevokedAt)
}

func TestRefreshReuseLeavesOtherSessionsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stolen := f.signIn(t)
	other := f.signIn(t)

	_, err := f.svc.Refresh(ctx, stolen.RefreshToken)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, stolen.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, other.RefreshToken)
	assert.NoError(t, err)
}

// slowDirectory holds every membership lookup long enough for a competing
// refresh to rotate, be rejected and revoke the family in between.
type slowDirectory struct {
	*fakeDirectory
	delay time.Duration
}

func (d slowDirectory) GetMembership(ctx context.Context, userID, organizationID uuid.UUID) (ports.Membership, error) {
	time.Sleep(d.delay)
	return d.fakeDirectory.GetMembership(ctx, userID, organizationID)
}

func TestConcurrentRefreshOfSameTokenHasOneWinner(t *testing.T) {
	for run := 0; run < 10; run++ {
		f := newFixture(t)
		session := f.signIn(t)
		f.svc.directory = slowDirectory{fakeDirectory: f.directory, delay: 20 * time.Millisecond}
		ctx := context.Background()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			pairs   []TokenPair
			invalid int
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pair, err := f.svc.Refresh(ctx, session.RefreshToken)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					pairs = append(pairs, pair)
				case errors.Is(err, ErrInvalidToken):
					invalid++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		require.Len(t, pairs, 1, "run %d", run)
		assert.Equal(t, 1, invalid, "run %d", run)

		stored, err := f.store.LookupRefreshToken(ctx, token.HashSHA256(session.RefreshToken))
		require.NoError(t, err)
		assert.NotNil(t, stored.FamilyRevokedAt, "run %d", run)

		_, err = f.svc.Refresh(ctx, pairs[0].RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidToken, "run %d", run)
	}
}

func TestRefreshMembershipLossRevokesFamily(t *testing.T) {
	f := newFixture(t)
	session := f.signIn(t)
	ctx := context.Background()
	f.directory.removeMembership(f.user.ID, f.org.ID)

	_, err := f.svc.Refresh(ctx, session.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	stored, err := f.store.LookupRefreshToken(ctx, token.HashSHA256(session.RefreshToken))
	require.NoError(t, err)
	assert.NotNil(t, stored.RotatedAt)
	assert.NotNil(t, stored.FamilyRevokedAt)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	f := newFixture(t)
	session := f.signIn(t)

	f.clock.Advance(24 * time.Hour)

	_, err := f.svc.Refresh(context.Background(), session.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshRevalidatesMembership(t *testing.T) {
	f := newFixture(t)
	session := f.signIn(t)
	f.directory.removeMembership(f.user.ID, f.org.ID)

	_, err := f.svc.Refresh(context.Background(), session.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	f.directory.setMembership(f.user.ID, f.org.ID, "member")
	_, err = f.svc.Refresh(context.Background(), session.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignOutRevokesFamily(t *testing.T) {
	f := newFixture(t)
	session := f.signIn(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SignOut(ctx, session.RefreshToken))
	require.NoError(t, f.svc.SignOut(ctx, session.RefreshToken))
	require.NoError(t, f.svc.SignOut(ctx, "garbage"))

	_, err := f.svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokeAllSessionsEndsEveryFamily(t *testing.T) {
	f := newFixture(t)
	first := f.signIn(t)
	second := f.signIn(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RevokeAllSessions(ctx, f.user.ID))

	for _, session := range []Session{first, second} {
		_, err := f.svc.Refresh(ctx, session.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestSwitchOrganization(t *testing.T) {
	f := newFixture(t)
	session := f.signIn(t)
	ctx := context.Background()

	other := f.directory.addOrganization("Globex")
	current := Identity{UserID: f.user.ID, OrganizationID: f.org.ID, Role: session.Role}

	_, err := f.svc.SwitchOrganization(ctx, current, other.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	f.directory.setMembership(f.user.ID, other.ID, "member")
	switched, err := f.svc.SwitchOrganization(ctx, current, other.ID)
	require.NoError(t, err)
	assert.Equal(t, other, switched.Organization)
	assert.Equal(t, "member", switched.Role)

	identity, err := f.svc.ResolveIdentity(ctx, switched.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, other.ID, identity.OrganizationID)
	assert.Equal(t, 1, f.bus.count(events.OrganizationSwitched{}.EventName()))

	_, err = f.svc.SwitchOrganization(ctx, current, uuid.Nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestPurgeExpired(t *testing.T) {
	f := newFixture(t)
	f.requestToken(t, f.user.Email)
	f.signIn(t)

	f.clock.Advance(48 * time.Hour)

	result, err := f.svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.MagicLinks)
	assert.Equal(t, int64(1), result.RefreshTokens)
}

func TestEndToEndSignInFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ack, err := f.svc.RequestMagicLink(ctx, f.user.Email)
	require.NoError(t, err)
	assert.Equal(t, 15, ack.ExpiresInMinutes)
	links := f.bus.magicLinks()
	require.Len(t, links, 1)

	raw := f.requestToken(t, f.user.Email)
	session, err := f.svc.VerifyMagicLink(ctx, raw)
	require.NoError(t, err)

	identity, err := f.svc.ResolveIdentity(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, identity.UserID)

	scoped, err := tenant.Bind(ctx, identity.OrganizationID)
	require.NoError(t, err)
	orgID, ok := tenant.OrganizationID(scoped)
	require.True(t, ok)
	assert.Equal(t, f.org.ID, orgID)

	pair, err := f.svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	refreshed, err := f.svc.ResolveIdentity(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, identity, refreshed)

	require.NoError(t, f.svc.SignOut(ctx, pair.RefreshToken))
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
