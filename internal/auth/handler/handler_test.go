package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processhub_backend/internal/auth/ports"
	"processhub_backend/internal/auth/repository"
	"processhub_backend/internal/auth/service"
	"processhub_backend/internal/auth/transport"
	"processhub_backend/internal/events"
	"processhub_backend/platform/httpkit"
	"processhub_backend/platform/logger"
	"processhub_backend/platform/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubConfig struct{}

func (stubConfig) GetJWTAccessSecret() string             { return "handler-test-secret" }
func (stubConfig) GetJWTIssuer() string                   { return "processhub" }
func (stubConfig) GetAccessTokenTTL() time.Duration       { return 15 * time.Minute }
func (stubConfig) GetRefreshTokenTTL() time.Duration      { return time.Hour }
func (stubConfig) GetMagicLinkTTL() time.Duration         { return 15 * time.Minute }
func (stubConfig) GetMagicLinkMinResponse() time.Duration { return 0 }
func (stubConfig) GetAppBaseURL() string                  { return "https://app.example.test" }

// singleUserDirectory knows one user who belongs to one organization.
type singleUserDirectory struct {
	user ports.DirectoryUser
	org  ports.OrganizationSummary
}

func (d singleUserDirectory) FindUserByEmail(_ context.Context, email string) (ports.DirectoryUser, error) {
	if strings.EqualFold(email, d.user.Email) {
		return d.user, nil
	}
	return ports.DirectoryUser{}, ports.ErrNotFound
}

func (d singleUserDirectory) GetUser(_ context.Context, id uuid.UUID) (ports.DirectoryUser, error) {
	if id == d.user.ID {
		return d.user, nil
	}
	return ports.DirectoryUser{}, ports.ErrNotFound
}

func (d singleUserDirectory) GetDefaultMembership(ctx context.Context, userID uuid.UUID) (ports.Membership, error) {
	return d.GetMembership(ctx, userID, d.org.ID)
}

func (d singleUserDirectory) GetMembership(_ context.Context, userID, orgID uuid.UUID) (ports.Membership, error) {
	if userID == d.user.ID && orgID == d.org.ID {
		return ports.Membership{UserID: userID, OrganizationID: orgID, Role: "owner"}, nil
	}
	return ports.Membership{}, ports.ErrNotFound
}

func (d singleUserDirectory) GetOrganization(_ context.Context, _, id uuid.UUID) (ports.OrganizationSummary, error) {
	if id == d.org.ID {
		return d.org, nil
	}
	return ports.OrganizationSummary{}, ports.ErrNotFound
}

type linkRecorder struct {
	mu   sync.Mutex
	urls []string
}

func (r *linkRecorder) Publish(_ context.Context, event events.Event) {
	if e, ok := event.(events.MagicLinkRequested); ok {
		r.mu.Lock()
		r.urls = append(r.urls, e.SignInURL)
		r.mu.Unlock()
	}
}

func (r *linkRecorder) PublishSync(ctx context.Context, event events.Event) error {
	r.Publish(ctx, event)
	return nil
}

func (r *linkRecorder) Subscribe(string, events.Handler) {}

func (r *linkRecorder) lastToken(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.urls)
	parsed, err := url.Parse(r.urls[len(r.urls)-1])
	require.NoError(t, err)
	return parsed.Query().Get("token")
}

type testServer struct {
	router    *gin.Engine
	links     *linkRecorder
	directory singleUserDirectory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	directory := singleUserDirectory{
		user: ports.DirectoryUser{ID: uuid.New(), Email: "grace@example.test", DisplayName: "Grace", Active: true},
		org:  ports.OrganizationSummary{ID: uuid.New(), Name: "Acme", Slug: "acme"},
	}
	links := &linkRecorder{}
	svc := service.New(repository.NewMemoryStore(), directory, links, stubConfig{}, logger.Nop())
	h := New(svc, validator.New())

	r := gin.New()
	group := r.Group("/api/v1/auth")
	h.RegisterRoutes(group)

	resolver := httpkit.IdentityResolverFunc(func(ctx context.Context, bearer string) (httpkit.Principal, error) {
		identity, err := svc.ResolveIdentity(ctx, bearer)
		if err != nil {
			return httpkit.Principal{}, err
		}
		return httpkit.Principal{UserID: identity.UserID, OrganizationID: identity.OrganizationID, Role: identity.Role}, nil
	})
	group.POST("/switch-organization", httpkit.AuthRequired(resolver, logger.Nop()), h.SwitchOrganization)

	return &testServer{router: r, links: links, directory: directory}
}

func (s *testServer) post(t *testing.T, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth"+path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signIn(t *testing.T) transport.SessionResponse {
	t.Helper()
	rec := s.post(t, "/magic-link", gin.H{"email": s.directory.user.Email}, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.post(t, "/magic-link/verify", gin.H{"token": s.links.lastToken(t)}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session transport.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session
}

func TestMagicLinkResponseIsIdenticalForKnownAndUnknownEmails(t *testing.T) {
	s := newTestServer(t)

	known := s.post(t, "/magic-link", gin.H{"email": s.directory.user.Email}, "")
	unknown := s.post(t, "/magic-link", gin.H{"email": "stranger@example.test"}, "")

	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.Bytes(), unknown.Body.Bytes())
	assert.JSONEq(t, `{"message":"If an account exists for this email, a sign-in link has been sent.","expires_in_minutes":15}`, known.Body.String())
}

func TestMagicLinkRejectsInvalidEmail(t *testing.T) {
	s := newTestServer(t)

	rec := s.post(t, "/magic-link", gin.H{"email": "not-an-email"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation failed")
}

func TestVerifyMagicLinkReturnsSession(t *testing.T) {
	s := newTestServer(t)
	session := s.signIn(t)

	assert.Equal(t, "bearer", session.TokenType)
	assert.Equal(t, 900, session.ExpiresIn)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, s.directory.user.ID.String(), session.User.ID)
	assert.Equal(t, "acme", session.Organization.Slug)
	assert.Equal(t, "owner", session.Organization.Role)
}

func TestCredentialFailuresShareOneMessage(t *testing.T) {
	s := newTestServer(t)
	session := s.signIn(t)

	reused := s.post(t, "/magic-link/verify", gin.H{"token": s.links.lastToken(t)}, "")
	garbage := s.post(t, "/magic-link/verify", gin.H{"token": "garbage"}, "")
	badRefresh := s.post(t, "/refresh", gin.H{"refresh_token": "garbage"}, "")

	rotated := s.post(t, "/refresh", gin.H{"refresh_token": session.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rotated.Code)
	replayed := s.post(t, "/refresh", gin.H{"refresh_token": session.RefreshToken}, "")

	for _, rec := range []*httptest.ResponseRecorder{reused, garbage, badRefresh, replayed} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"invalid or expired token"}`, rec.Body.String())
	}
}

func TestSignOutThenRefreshFails(t *testing.T) {
	s := newTestServer(t)
	session := s.signIn(t)

	rec := s.post(t, "/sign-out", gin.H{"refresh_token": session.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.post(t, "/refresh", gin.H{"refresh_token": session.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSwitchOrganizationRequiresMembership(t *testing.T) {
	s := newTestServer(t)
	session := s.signIn(t)

	rec := s.post(t, "/switch-organization", gin.H{"organization_id": uuid.NewString()}, session.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.post(t, "/switch-organization", gin.H{"organization_id": s.directory.org.ID.String()}, session.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.post(t, "/switch-organization", gin.H{"organization_id": s.directory.org.ID.String()}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
