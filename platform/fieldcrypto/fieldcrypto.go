// Package fieldcrypto encrypts individual sensitive column values with
// AES-256-GCM. The key is derived from an operator secret by DeriveKey.
// This is part of the platform layer and contains no business logic.
//
// There is no key rotation: changing the secret makes every previously
// encrypted value undecryptable.
package fieldcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

const hkdfInfo = "processhub field encryption v1"

// ErrDecryption is returned when a ciphertext cannot be authenticated.
var ErrDecryption = errors.New("field decryption failed")

// DecryptionError carries the underlying cause of a failed decryption.
// errors.Is(err, ErrDecryption) holds for every DecryptionError.
type DecryptionError struct {
	Cause error
}

func (e *DecryptionError) Error() string {
	if e.Cause == nil {
		return ErrDecryption.Error()
	}
	return fmt.Sprintf("%s: %v", ErrDecryption.Error(), e.Cause)
}

func (e *DecryptionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrDecryption}
	}
	return []error{ErrDecryption, e.Cause}
}

// DeriveKey turns an operator secret into a 32-byte key.
// A secret that already decodes (base64 or hex) to exactly 32 bytes is used
// verbatim. Anything else goes through HKDF-SHA256. Surrounding whitespace
// is ignored on both paths. Never fails.
func DeriveKey(secret string) []byte {
	secret = strings.TrimSpace(secret)
	if key, ok := decodeRawKey(secret); ok {
		return key
	}

	key := make([]byte, KeySize)
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		// HKDF-SHA256 can produce up to 255*32 bytes; 32 never fails.
		panic(fmt.Sprintf("fieldcrypto: hkdf: %v", err))
	}
	return key
}

// Fingerprint identifies the key derived from secret without revealing it.
// Two hosts with the same fingerprint decrypt each other's data.
func Fingerprint(secret string) string {
	sum := sha256.Sum256(DeriveKey(secret))
	return hex.EncodeToString(sum[:8])
}

func decodeRawKey(secret string) ([]byte, bool) {
	if secret == "" {
		return nil, false
	}
	decoders := []func(string) ([]byte, error){
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
		base64.URLEncoding.DecodeString,
		base64.RawURLEncoding.DecodeString,
		hex.DecodeString,
	}
	for _, decode := range decoders {
		if b, err := decode(secret); err == nil && len(b) == KeySize {
			return b, true
		}
	}
	return nil, false
}

// Service encrypts and decrypts field values. Safe for concurrent use.
type Service struct {
	aead cipher.AEAD
}

// New creates a Service from a 32-byte key.
func New(key []byte) (*Service, error) {
	if len(key) != KeySize {
		return nil, errors.New("encryption key must be 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Service{aead: aead}, nil
}

// NewFromSecret derives the key from secret and creates a Service.
func NewFromSecret(secret string) (*Service, error) {
	return New(DeriveKey(secret))
}

// Encrypt returns base64url(nonce || ciphertext || tag). Empty input yields
// empty output.
func (s *Service) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any failure is a *DecryptionError.
func (s *Service) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &DecryptionError{Cause: fmt.Errorf("decode: %w", err)}
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize+s.aead.Overhead() {
		return "", &DecryptionError{Cause: errors.New("ciphertext too short")}
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &DecryptionError{Cause: err}
	}

	return string(plaintext), nil
}

// EncryptPtr encrypts a nullable value. nil stays nil.
func (s *Service) EncryptPtr(plaintext *string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}
	out, err := s.Encrypt(*plaintext)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DecryptPtr decrypts a nullable value. nil stays nil.
func (s *Service) DecryptPtr(ciphertext *string) (*string, error) {
	if ciphertext == nil {
		return nil, nil
	}
	out, err := s.Decrypt(*ciphertext)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
