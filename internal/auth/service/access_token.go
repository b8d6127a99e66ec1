package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"processhub_backend/internal/auth/ports"
	"processhub_backend/platform/apperr"
	"processhub_backend/platform/metrics"
)

// Claims is the access token payload.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

func (s *Service) signAccessToken(userID, organizationID uuid.UUID, role string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.cfg.GetAccessTokenTTL())
	claims := Claims{
		TenantID: organizationID.String(),
		Role:     role,
		Type:     accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.cfg.GetJWTIssuer(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.GetJWTAccessSecret()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ResolveIdentity verifies an access token and confirms the membership it
// names still exists. The returned role is the live membership role, not the
// one recorded in the token.
func (s *Service) ResolveIdentity(ctx context.Context, bearer string) (Identity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.GetJWTIssuer()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(bearer, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.GetJWTAccessSecret()), nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, s.reject(ctx, kindAccess, accessReason(err))
	}
	if claims.Type != accessTokenType {
		return Identity{}, s.reject(ctx, kindAccess, metrics.ReasonMalformed)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, s.reject(ctx, kindAccess, metrics.ReasonMalformed)
	}
	organizationID, err := uuid.Parse(claims.TenantID)
	if err != nil || organizationID == uuid.Nil {
		return Identity{}, s.reject(ctx, kindAccess, metrics.ReasonMalformed)
	}

	membership, found, err := s.liveMembership(ctx, userID, organizationID)
	if err != nil {
		return Identity{}, err
	}
	if !found {
		return Identity{}, s.reject(ctx, kindAccess, metrics.ReasonMembership)
	}

	return Identity{
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           membership.Role,
	}, nil
}

// liveMembership reports found=false when the membership is gone. Directory
// outages come back as internal errors so they are not mistaken for a bad
// token.
func (s *Service) liveMembership(ctx context.Context, userID, organizationID uuid.UUID) (ports.Membership, bool, error) {
	membership, err := s.directory.GetMembership(ctx, userID, organizationID)
	if err != nil {
		if isNotFound(err) {
			return ports.Membership{}, false, nil
		}
		return ports.Membership{}, false, apperr.Wrap(apperr.KindInternal, "identity lookup failed", err)
	}
	return membership, true, nil
}

func accessReason(err error) string {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return metrics.ReasonExpired
	}
	return metrics.ReasonMalformed
}
