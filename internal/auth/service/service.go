package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"processhub_backend/internal/auth/ports"
	"processhub_backend/internal/auth/repository"
	"processhub_backend/internal/events"
	"processhub_backend/platform/config"
	"processhub_backend/platform/logger"
	"processhub_backend/platform/metrics"
)

// ErrInvalidToken is the only credential failure callers ever see. The
// precise reason goes to logs and metrics.
var ErrInvalidToken = errors.New("invalid or expired token")

const (
	accessTokenType  = "access"
	tokenTypeBearer  = "bearer"
	kindMagicLink    = "magic_link"
	kindRefresh      = "refresh"
	kindAccess       = "access"
	kindSession      = "session"
	magicLinkAckText = "If an account exists for this email, a sign-in link has been sent."
)

// MagicLinkAck is returned for every magic-link request, whether or not the
// email belongs to a user.
type MagicLinkAck struct {
	Message          string
	ExpiresInMinutes int
}

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	TokenType       string
	ExpiresIn       int
	AccessExpiresAt time.Time
}

// Session is the result of a successful sign-in or organization switch.
type Session struct {
	TokenPair
	User         ports.DirectoryUser
	Organization ports.OrganizationSummary
	Role         string
}

// Identity is what a verified access token resolves to.
type Identity struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
}

type Service struct {
	store     repository.CredentialStore
	directory ports.IdentityDirectory
	bus       events.Bus
	cfg       config.AuthServiceConfig
	log       *logger.Logger
	now       func() time.Time
}

func New(store repository.CredentialStore, directory ports.IdentityDirectory, bus events.Bus, cfg config.AuthServiceConfig, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:     store,
		directory: directory,
		bus:       bus,
		cfg:       cfg,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PurgeExpired deletes credentials whose expiry has passed.
func (s *Service) PurgeExpired(ctx context.Context) (repository.PurgeResult, error) {
	result, err := s.store.PurgeExpired(ctx, s.now())
	if err != nil {
		return repository.PurgeResult{}, fmt.Errorf("purge expired credentials: %w", err)
	}
	metrics.ObservePurged(kindMagicLink, result.MagicLinks)
	metrics.ObservePurged(kindRefresh, result.RefreshTokens)
	return result, nil
}

func (s *Service) reject(ctx context.Context, kind, reason string) error {
	metrics.ObserveRejection(kind, reason)
	s.log.WithContext(ctx).TokenRejected(kind, reason)
	return ErrInvalidToken
}

func (s *Service) buildURL(path, tokenValue string) string {
	base := strings.TrimRight(s.cfg.GetAppBaseURL(), "/")
	return base + path + "?token=" + tokenValue
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isNotFound(err error) bool {
	return errors.Is(err, ports.ErrNotFound)
}
