// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts per (username, origin).
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string, originHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, originHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, originHash []byte) (bool, time.Duration, error)
}

// Settings are shared by all implementations.
type Settings struct {
	Window   time.Duration // failures older than this start a new count
	MaxFails int           // failures within Window that trigger a block
	BlockFor time.Duration
}

// HashOrigin returns a stable hash for an origin (peer address, "local") to avoid storing raw addresses.
func HashOrigin(origin string) []byte {
	h := sha256.Sum256([]byte(origin))
	return h[:]
}
