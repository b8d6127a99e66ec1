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
	"processhub_backend/platform/apperr"
	"processhub_backend/platform/metrics"
	"processhub_backend/platform/tracing"
)

// Refresh rotates a refresh token into a new pair in the same family and
// organization. The successor is stored by the rotation itself, so a
// concurrent reuse revocation cannot strand the winner. Presenting a token
// that was already rotated revokes the whole family.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (TokenPair, error) {
	ctx, span := tracing.Start(ctx, "auth.Refresh")
	defer span.End()

	if !token.WellFormed(rawRefresh) {
		return TokenPair{}, s.reject(ctx, kindRefresh, metrics.ReasonMalformed)
	}
	tokenHash := token.HashSHA256(rawRefresh)
	now := s.now()

	rawSuccessor, successor, err := s.newRefreshToken(now)
	if err != nil {
		return TokenPair{}, err
	}
	rotated, err := s.store.RotateRefreshToken(ctx, tokenHash, successor, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, s.rejectRefresh(ctx, tokenHash, now)
		}
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	membership, found, err := s.liveMembership(ctx, rotated.UserID, rotated.OrganizationID)
	if err != nil {
		return TokenPair{}, err
	}
	if !found {
		if err := s.store.RevokeRefreshFamily(ctx, rotated.FamilyID, now); err != nil {
			s.log.WithContext(ctx).DatabaseError("revoke_refresh_family", err)
		}
		return TokenPair{}, s.reject(ctx, kindRefresh, metrics.ReasonMembership)
	}

	metrics.ObserveIssued(kindRefresh)
	return s.tokenPair(rotated.UserID, rotated.OrganizationID, membership.Role, rawSuccessor, now)
}

// rejectRefresh classifies a failed rotation. A token that was already
// rotated is treated as stolen and its family is revoked.
func (s *Service) rejectRefresh(ctx context.Context, tokenHash string, now time.Time) error {
	existing, err := s.store.LookupRefreshToken(ctx, tokenHash)
	switch {
	case err != nil:
		return s.reject(ctx, kindRefresh, metrics.ReasonNotFound)
	case existing.FamilyRevokedAt != nil:
		return s.reject(ctx, kindRefresh, metrics.ReasonRevoked)
	case existing.RotatedAt != nil:
		s.revokeReusedFamily(ctx, existing, now)
		return s.reject(ctx, kindRefresh, metrics.ReasonReused)
	case !existing.ExpiresAt.After(now):
		return s.reject(ctx, kindRefresh, metrics.ReasonExpired)
	default:
		return s.reject(ctx, kindRefresh, metrics.ReasonNotFound)
	}
}

func (s *Service) revokeReusedFamily(ctx context.Context, reused repository.RefreshToken, now time.Time) {
	log := s.log.WithContext(ctx)
	if err := s.store.RevokeRefreshFamily(ctx, reused.FamilyID, now); err != nil {
		log.DatabaseError("revoke_refresh_family", err)
		return
	}
	metrics.ObserveFamilyRevoked("reuse")
	s.bus.Publish(ctx, events.RefreshTokenReuseDetected{
		BaseEvent:      events.NewBaseEvent(now),
		UserID:         reused.UserID,
		OrganizationID: reused.OrganizationID,
		FamilyID:       reused.FamilyID,
	})
}

// SignOut revokes the family of the presented refresh token. Unknown tokens
// are ignored so the call is idempotent.
func (s *Service) SignOut(ctx context.Context, rawRefresh string) error {
	if !token.WellFormed(rawRefresh) {
		return nil
	}
	existing, err := s.store.LookupRefreshToken(ctx, token.HashSHA256(rawRefresh))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	if existing.FamilyRevokedAt != nil {
		return nil
	}
	if err := s.store.RevokeRefreshFamily(ctx, existing.FamilyID, s.now()); err != nil {
		return fmt.Errorf("revoke refresh family: %w", err)
	}
	metrics.ObserveFamilyRevoked("sign_out")
	s.log.WithContext(ctx).Info("signed_out", "user_id", existing.UserID.String())
	return nil
}

// RevokeAllSessions ends every refresh family of userID. Access tokens
// already issued stop resolving once the membership check fails or expire
// on their own.
func (s *Service) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.RevokeAllForUser(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	metrics.ObserveFamilyRevoked("revoke_all")
	s.log.WithContext(ctx).SecurityEvent("sessions_revoked", userID.String(), "all refresh families revoked")
	return nil
}

// SwitchOrganization starts a new session for the caller in another
// organization they belong to.
func (s *Service) SwitchOrganization(ctx context.Context, identity Identity, organizationID uuid.UUID) (Session, error) {
	if organizationID == uuid.Nil {
		return Session{}, apperr.Validation("organization id is required")
	}
	membership, err := s.directory.GetMembership(ctx, identity.UserID, organizationID)
	if err != nil {
		if isNotFound(err) {
			return Session{}, apperr.Forbidden("not a member of this organization")
		}
		return Session{}, fmt.Errorf("load membership: %w", err)
	}

	now := s.now()
	session, err := s.startSession(ctx, identity.UserID, organizationID, membership.Role, now)
	if err != nil {
		return Session{}, err
	}

	s.bus.Publish(ctx, events.OrganizationSwitched{
		BaseEvent: events.NewBaseEvent(now),
		UserID:    identity.UserID,
		FromID:    identity.OrganizationID,
		ToID:      organizationID,
	})
	return session, nil
}

// startSession opens a new refresh family and loads what the client shows
// about the user and organization.
func (s *Service) startSession(ctx context.Context, userID, organizationID uuid.UUID, role string, now time.Time) (Session, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	org, err := s.directory.GetOrganization(ctx, userID, organizationID)
	if err != nil {
		return Session{}, fmt.Errorf("load organization: %w", err)
	}

	pair, err := s.issuePair(ctx, userID, organizationID, role, uuid.New(), now)
	if err != nil {
		return Session{}, err
	}
	metrics.ObserveIssued(kindSession)

	return Session{
		TokenPair:    pair,
		User:         user,
		Organization: org,
		Role:         role,
	}, nil
}

// issuePair opens a refresh family with its first token.
func (s *Service) issuePair(ctx context.Context, userID, organizationID uuid.UUID, role string, familyID uuid.UUID, now time.Time) (TokenPair, error) {
	rawRefresh, refresh, err := s.newRefreshToken(now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh.FamilyID = familyID
	refresh.UserID = userID
	refresh.OrganizationID = organizationID
	if err := s.store.CreateRefreshToken(ctx, refresh); err != nil {
		if errors.Is(err, repository.ErrFamilyRevoked) {
			return TokenPair{}, s.reject(ctx, kindRefresh, metrics.ReasonRevoked)
		}
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	metrics.ObserveIssued(kindRefresh)

	return s.tokenPair(userID, organizationID, role, rawRefresh, now)
}

// newRefreshToken returns a raw refresh secret and the record holding its
// hash. Family, user and organization are left to the caller.
func (s *Service) newRefreshToken(now time.Time) (string, repository.RefreshToken, error) {
	raw, err := token.GenerateRandomToken(token.SecretBytes)
	if err != nil {
		return "", repository.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}
	return raw, repository.RefreshToken{
		ID:        uuid.New(),
		TokenHash: token.HashSHA256(raw),
		ExpiresAt: now.Add(s.cfg.GetRefreshTokenTTL()),
		CreatedAt: now,
	}, nil
}

func (s *Service) tokenPair(userID, organizationID uuid.UUID, role, rawRefresh string, now time.Time) (TokenPair, error) {
	accessToken, accessExpiresAt, err := s.signAccessToken(userID, organizationID, role, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    rawRefresh,
		TokenType:       tokenTypeBearer,
		ExpiresIn:       int(s.cfg.GetAccessTokenTTL().Seconds()),
		AccessExpiresAt: accessExpiresAt,
	}, nil
}
