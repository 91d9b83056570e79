package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Share keys are derived with PBKDF2-HMAC-SHA256. The parameters are fixed
// so every build of the service derives the same key for the same share:
// 100,000 iterations over a 16-byte per-share salt, producing a 32-byte
// AES-256 key.
const (
	// KDFIterations is the PBKDF2 iteration count.
	KDFIterations = 100_000

	// SaltSize is the length in bytes of a share salt.
	SaltSize = 16

	// KeySize is the length in bytes of a derived key.
	KeySize = 32
)

// ErrEmptySalt is returned when key derivation is attempted without a salt.
var ErrEmptySalt = errors.New("salt must not be empty")

// DeriveKey derives the symmetric key for a share from its code and salt.
// Deterministic: the same (code, salt) pair always yields the same key, so
// anyone holding both can reproduce it.
func DeriveKey(code string, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, ErrEmptySalt
	}
	return pbkdf2.Key([]byte(code), salt, KDFIterations, KeySize, sha256.New), nil
}

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt(length int) ([]byte, error) {
	salt := make([]byte, length)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
