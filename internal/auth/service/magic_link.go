package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"processhub_backend/internal/auth/repository"
	"processhub_backend/internal/auth/token"
	"processhub_backend/internal/events"
	"processhub_backend/platform/metrics"
	"processhub_backend/platform/tracing"
)

// RequestMagicLink issues a sign-in link for a known, active user. Unknown
// and deactivated users get the same acknowledgement after the same amount
// of work, padded to the configured minimum duration.
func (s *Service) RequestMagicLink(ctx context.Context, email string) (MagicLinkAck, error) {
	start := s.now()
	defer s.padResponse(ctx, start)

	ttl := s.cfg.GetMagicLinkTTL()
	ack := MagicLinkAck{Message: magicLinkAckText, ExpiresInMinutes: int(ttl / time.Minute)}
	normalized := normalizeEmail(email)
	log := s.log.WithContext(ctx)

	rawToken, err := token.GenerateRandomToken(token.SecretBytes)
	if err != nil {
		return MagicLinkAck{}, fmt.Errorf("generate magic link token: %w", err)
	}
	tokenHash := token.HashSHA256(rawToken)

	user, err := s.directory.FindUserByEmail(ctx, normalized)
	if err != nil {
		if isNotFound(err) {
			log.AuthEvent("magic_link_requested", normalized, false, "unknown_user")
			return ack, nil
		}
		return MagicLinkAck{}, fmt.Errorf("find user: %w", err)
	}
	if !user.Active {
		log.AuthEvent("magic_link_requested", normalized, false, "inactive_user")
		return ack, nil
	}

	expiresAt := start.Add(ttl)
	err = s.store.ReplaceMagicLinkToken(ctx, repository.MagicLinkToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: start,
	})
	if err != nil {
		// The caller still gets the acknowledgement so a failing store does
		// not distinguish known from unknown emails.
		log.DatabaseError("replace_magic_link_token", err)
		return ack, nil
	}
	metrics.ObserveIssued(kindMagicLink)

	s.bus.Publish(ctx, events.MagicLinkRequested{
		BaseEvent: events.NewBaseEvent(start),
		UserID:    user.ID,
		Email:     user.Email,
		SignInURL: s.buildURL("/auth/magic-link", rawToken),
		ExpiresAt: expiresAt,
	})
	log.AuthEvent("magic_link_requested", normalized, true, "")
	return ack, nil
}

// VerifyMagicLink consumes the token and starts a session in the user's
// default organization. Only one of any number of concurrent presentations
// of the same token succeeds.
func (s *Service) VerifyMagicLink(ctx context.Context, rawToken string) (Session, error) {
	ctx, span := tracing.Start(ctx, "auth.VerifyMagicLink")
	defer span.End()

	if !token.WellFormed(rawToken) {
		return Session{}, s.reject(ctx, kindMagicLink, metrics.ReasonMalformed)
	}
	tokenHash := token.HashSHA256(rawToken)
	now := s.now()

	consumed, err := s.store.ConsumeMagicLinkToken(ctx, tokenHash, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, s.reject(ctx, kindMagicLink, s.magicLinkReason(ctx, tokenHash, now))
		}
		return Session{}, fmt.Errorf("consume magic link: %w", err)
	}

	user, err := s.directory.GetUser(ctx, consumed.UserID)
	if err != nil {
		if isNotFound(err) {
			return Session{}, s.reject(ctx, kindMagicLink, metrics.ReasonNotFound)
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return Session{}, s.reject(ctx, kindMagicLink, metrics.ReasonMembership)
	}

	membership, err := s.directory.GetDefaultMembership(ctx, user.ID)
	if err != nil {
		if isNotFound(err) {
			return Session{}, s.reject(ctx, kindMagicLink, metrics.ReasonMembership)
		}
		return Session{}, fmt.Errorf("load default membership: %w", err)
	}

	session, err := s.startSession(ctx, user.ID, membership.OrganizationID, membership.Role, now)
	if err != nil {
		return Session{}, err
	}

	s.bus.Publish(ctx, events.SessionStarted{
		BaseEvent:      events.NewBaseEvent(now),
		UserID:         user.ID,
		OrganizationID: membership.OrganizationID,
	})
	s.log.WithContext(ctx).AuthEvent("magic_link_verified", user.Email, true, "")
	return session, nil
}

// magicLinkReason classifies a failed consume for telemetry.
func (s *Service) magicLinkReason(ctx context.Context, tokenHash string, now time.Time) string {
	existing, err := s.store.LookupMagicLinkToken(ctx, tokenHash)
	switch {
	case err != nil:
		return metrics.ReasonNotFound
	case existing.ConsumedAt != nil:
		return metrics.ReasonConsumed
	case !existing.ExpiresAt.After(now):
		return metrics.ReasonExpired
	default:
		return metrics.ReasonNotFound
	}
}

func (s *Service) padResponse(ctx context.Context, start time.Time) {
	remaining := s.cfg.GetMagicLinkMinResponse() - s.now().Sub(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
