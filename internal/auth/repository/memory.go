package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryFamily struct {
	userID    uuid.UUID
	revokedAt *time.Time
}

// MemoryStore is an in-process CredentialStore. A single mutex makes every
// operation atomic. Used by tests and single-node development setups.
type MemoryStore struct {
	mu         sync.Mutex
	magicLinks map[string]MagicLinkToken
	refresh    map[string]RefreshToken
	families   map[uuid.UUID]*memoryFamily
}

var _ CredentialStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		magicLinks: make(map[string]MagicLinkToken),
		refresh:    make(map[string]RefreshToken),
		families:   make(map[uuid.UUID]*memoryFamily),
	}
}

func (s *MemoryStore) ReplaceMagicLinkToken(_ context.Context, token MagicLinkToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, existing := range s.magicLinks {
		if existing.UserID == token.UserID && existing.ConsumedAt == nil {
			delete(s.magicLinks, hash)
		}
	}
	s.magicLinks[token.TokenHash] = token
	return nil
}

func (s *MemoryStore) ConsumeMagicLinkToken(_ context.Context, tokenHash string, now time.Time) (MagicLinkToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.magicLinks[tokenHash]
	if !ok || token.ConsumedAt != nil || !token.ExpiresAt.After(now) {
		return MagicLinkToken{}, ErrNotFound
	}
	consumedAt := now
	token.ConsumedAt = &consumedAt
	s.magicLinks[tokenHash] = token
	return token, nil
}

func (s *MemoryStore) LookupMagicLinkToken(_ context.Context, tokenHash string) (MagicLinkToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.magicLinks[tokenHash]
	if !ok {
		return MagicLinkToken{}, ErrNotFound
	}
	return token, nil
}

func (s *MemoryStore) CreateRefreshToken(_ context.Context, token RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	family, ok := s.families[token.FamilyID]
	if !ok {
		family = &memoryFamily{userID: token.UserID}
		s.families[token.FamilyID] = family
	}
	if family.revokedAt != nil {
		return ErrFamilyRevoked
	}
	token.RotatedAt = nil
	token.FamilyRevokedAt = nil
	s.refresh[token.TokenHash] = token
	return nil
}

func (s *MemoryStore) RotateRefreshToken(_ context.Context, tokenHash string, successor RefreshToken, now time.Time) (RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refresh[tokenHash]
	if !ok || token.RotatedAt != nil || !token.ExpiresAt.After(now) {
		return RefreshToken{}, ErrNotFound
	}
	if family := s.families[token.FamilyID]; family == nil || family.revokedAt != nil {
		return RefreshToken{}, ErrNotFound
	}
	rotatedAt := now
	token.RotatedAt = &rotatedAt
	s.refresh[tokenHash] = token

	successor.FamilyID = token.FamilyID
	successor.UserID = token.UserID
	successor.OrganizationID = token.OrganizationID
	successor.RotatedAt = nil
	successor.FamilyRevokedAt = nil
	s.refresh[successor.TokenHash] = successor
	return token, nil
}

func (s *MemoryStore) LookupRefreshToken(_ context.Context, tokenHash string) (RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refresh[tokenHash]
	if !ok {
		return RefreshToken{}, ErrNotFound
	}
	if family := s.families[token.FamilyID]; family != nil {
		token.FamilyRevokedAt = family.revokedAt
	}
	return token, nil
}

func (s *MemoryStore) RevokeRefreshFamily(_ context.Context, familyID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokeLocked(familyID, now)
	return nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, family := range s.families {
		if family.userID == userID {
			s.revokeLocked(id, now)
		}
	}
	return nil
}

// revokeLocked also records families that have no token yet, so a token
// created after revocation is refused.
func (s *MemoryStore) revokeLocked(familyID uuid.UUID, now time.Time) {
	family, ok := s.families[familyID]
	if !ok {
		family = &memoryFamily{}
		s.families[familyID] = family
	}
	if family.revokedAt == nil {
		revokedAt := now
		family.revokedAt = &revokedAt
	}
}

func (s *MemoryStore) PurgeExpired(_ context.Context, cutoff time.Time) (PurgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result PurgeResult
	for hash, token := range s.magicLinks {
		if token.ExpiresAt.Before(cutoff) {
			delete(s.magicLinks, hash)
			result.MagicLinks++
		}
	}

	live := make(map[uuid.UUID]bool)
	for hash, token := range s.refresh {
		if token.ExpiresAt.Before(cutoff) {
			delete(s.refresh, hash)
			result.RefreshTokens++
			continue
		}
		live[token.FamilyID] = true
	}
	for id := range s.families {
		if !live[id] {
			delete(s.families, id)
		}
	}
	return result, nil
}
