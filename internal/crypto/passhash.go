// Package crypto implements password hashing and device fingerprint derivation.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	// SaltLen is the per-user salt size.
	SaltLen = 16
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// NewCredential draws a fresh salt and hashes password with it.
func NewCredential(password string) (hash, salt []byte, err error) {
	salt, err = RandBytes(SaltLen)
	if err != nil {
		return nil, nil, err
	}
	return HashPassword([]byte(password), salt), salt, nil
}

// VerifyPassword verifies password against expected Argon2id hash and salt.
func VerifyPassword(password, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
