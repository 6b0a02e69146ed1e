// Package limiter throttles login attempts per (username, client address).
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
}

// Policy configures the lockout rule: MaxFails failures inside Window block
// the pair for BlockFor.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy is used by the server unless overridden.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}

// Nop allows everything. It is used when the store is not configured.
type Nop struct{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) { return true, 0, nil }
func (Nop) Success(context.Context, string, []byte) error                      { return nil }
func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
