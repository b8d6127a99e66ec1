// Package token generates opaque credential secrets and the hashes that are
// stored in their place.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// SecretBytes is the entropy of magic-link and refresh secrets.
const SecretBytes = 32

func GenerateRandomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSHA256 returns the hex digest persisted instead of the raw secret.
func HashSHA256(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// WellFormed reports whether raw could have come from GenerateRandomToken
// with SecretBytes of entropy. Lookups skip malformed input.
func WellFormed(raw string) bool {
	if len(raw) != base64.RawURLEncoding.EncodedLen(SecretBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(raw)
	return err == nil
}
