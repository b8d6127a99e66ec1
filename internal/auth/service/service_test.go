package service

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"processhub_backend/internal/auth/ports"
	"processhub_backend/internal/auth/repository"
	"processhub_backend/internal/events"
)

type testConfig struct {
	minResponse time.Duration
}

func (testConfig) GetJWTAccessSecret() string               { return "test-access-secret" }
func (testConfig) GetJWTIssuer() string                     { return "processhub" }
func (testConfig) GetAccessTokenTTL() time.Duration         { return 15 * time.Minute }
func (testConfig) GetRefreshTokenTTL() time.Duration        { return 24 * time.Hour }
func (testConfig) GetMagicLinkTTL() time.Duration           { return 15 * time.Minute }
func (c testConfig) GetMagicLinkMinResponse() time.Duration { return c.minResponse }
func (testConfig) GetAppBaseURL() string                    { return "https://app.example.test/" }

type fakeDirectory struct {
	mu            sync.Mutex
	users         map[uuid.UUID]ports.DirectoryUser
	organizations map[uuid.UUID]ports.OrganizationSummary
	memberships   map[[2]uuid.UUID]ports.Membership
	err           error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:         make(map[uuid.UUID]ports.DirectoryUser),
		organizations: make(map[uuid.UUID]ports.OrganizationSummary),
		memberships:   make(map[[2]uuid.UUID]ports.Membership),
	}
}

func (d *fakeDirectory) addOrganization(name string) ports.OrganizationSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	org := ports.OrganizationSummary{ID: uuid.New(), Name: name, Slug: strings.ToLower(name)}
	d.organizations[org.ID] = org
	return org
}

func (d *fakeDirectory) addUser(email string, defaultOrg uuid.UUID, role string) ports.DirectoryUser {
	d.mu.Lock()
	defer d.mu.Unlock()
	user := ports.DirectoryUser{ID: uuid.New(), Email: email, DisplayName: "Test User", DefaultOrganizationID: &defaultOrg, Active: true}
	d.users[user.ID] = user
	d.memberships[[2]uuid.UUID{user.ID, defaultOrg}] = ports.Membership{OrganizationID: defaultOrg, UserID: user.ID, Role: role}
	return user
}

func (d *fakeDirectory) setMembership(userID, orgID uuid.UUID, role string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memberships[[2]uuid.UUID{userID, orgID}] = ports.Membership{OrganizationID: orgID, UserID: userID, Role: role}
}

func (d *fakeDirectory) removeMembership(userID, orgID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.memberships, [2]uuid.UUID{userID, orgID})
}

func (d *fakeDirectory) deactivate(userID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user := d.users[userID]
	user.Active = false
	d.users[userID] = user
}

func (d *fakeDirectory) FindUserByEmail(_ context.Context, email string) (ports.DirectoryUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return ports.DirectoryUser{}, d.err
	}
	for _, user := range d.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return ports.DirectoryUser{}, ports.ErrNotFound
}

func (d *fakeDirectory) GetUser(_ context.Context, userID uuid.UUID) (ports.DirectoryUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[userID]
	if !ok {
		return ports.DirectoryUser{}, ports.ErrNotFound
	}
	return user, nil
}

func (d *fakeDirectory) GetDefaultMembership(_ context.Context, userID uuid.UUID) (ports.Membership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[userID]
	if !ok || user.DefaultOrganizationID == nil {
		return ports.Membership{}, ports.ErrNotFound
	}
	membership, ok := d.memberships[[2]uuid.UUID{userID, *user.DefaultOrganizationID}]
	if !ok {
		return ports.Membership{}, ports.ErrNotFound
	}
	return membership, nil
}

func (d *fakeDirectory) GetMembership(_ context.Context, userID, organizationID uuid.UUID) (ports.Membership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return ports.Membership{}, d.err
	}
	membership, ok := d.memberships[[2]uuid.UUID{userID, organizationID}]
	if !ok {
		return ports.Membership{}, ports.ErrNotFound
	}
	return membership, nil
}

func (d *fakeDirectory) GetOrganization(_ context.Context, _, organizationID uuid.UUID) (ports.OrganizationSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	org, ok := d.organizations[organizationID]
	if !ok {
		return ports.OrganizationSummary{}, ports.ErrNotFound
	}
	return org, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) magicLinks() []events.MagicLinkRequested {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.MagicLinkRequested
	for _, e := range b.events {
		if ml, ok := e.(events.MagicLinkRequested); ok {
			out = append(out, ml)
		}
	}
	return out
}

func (b *recordingBus) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc       *Service
	store     *repository.MemoryStore
	directory *fakeDirectory
	bus       *recordingBus
	clock     *testClock
	org       ports.OrganizationSummary
	user      ports.DirectoryUser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	directory := newFakeDirectory()
	bus := &recordingBus{}
	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	svc := New(store, directory, bus, testConfig{}, nil)
	svc.now = clock.Now

	org := directory.addOrganization("Acme")
	user := directory.addUser("ada@example.test", org.ID, "admin")

	return &fixture{svc: svc, store: store, directory: directory, bus: bus, clock: clock, org: org, user: user}
}

// requestToken asks for a magic link and returns the raw token from the
// delivered sign-in URL.
func (f *fixture) requestToken(t *testing.T, email string) string {
	t.Helper()
	before := len(f.bus.magicLinks())
	_, err := f.svc.RequestMagicLink(context.Background(), email)
	require.NoError(t, err)

	links := f.bus.magicLinks()
	require.Len(t, links, before+1)
	parsed, err := url.Parse(links[len(links)-1].SignInURL)
	require.NoError(t, err)
	raw := parsed.Query().Get("token")
	require.NotEmpty(t, raw)
	return raw
}

func (f *fixture) signIn(t *testing.T) Session {
	t.Helper()
	session, err := f.svc.VerifyMagicLink(context.Background(), f.requestToken(t, f.user.Email))
	require.NoError(t, err)
	return session
}
