// Package crypto implements password salting, hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters.
const (
	DefaultIterations = 100_000
	DefaultSaltLen    = 16
	keyLen            = 32
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// GenerateSalt returns length random bytes encoded as hex.
func GenerateSalt(length int) (string, error) {
	b, err := RandBytes(length)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashPassword derives a hex PBKDF2-HMAC-SHA256 digest of password.
// The salt is given hex encoded; a salt that is not valid hex is used as raw bytes.
func HashPassword(password, saltHex string, iterations int) string {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		salt = []byte(saltHex)
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	dk := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	return hex.EncodeToString(dk)
}

// VerifyPassword re-derives the digest with the stored parameters and compares in constant time.
func VerifyPassword(password, saltHex string, iterations int, expectedHex string) bool {
	got := HashPassword(password, saltHex, iterations)
	return subtle.ConstantTimeCompare([]byte(got), []byte(expectedHex)) == 1
}
