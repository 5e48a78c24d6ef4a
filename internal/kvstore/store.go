// Package kvstore defines the shared keyed store used for coordination state:
// circuit breaker entries, rate windows, and dedup keys. It is never the
// system of record.
package kvstore

import (
	"context"
	"time"
)

// Store is a minimal keyed store with per-key expiry. All middleware that
// depends on it must fail open when it returns an error.
type Store interface {
	// Get returns the value and whether the key exists and has not expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes the value. A ttl of zero means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes the value only if the key is absent. Returns true when the
	// write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr increments the integer counter at key and returns the new value.
	// The ttl is applied only when the key is created by this call.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Delete removes the key if present.
	Delete(ctx context.Context, key string) error
}
