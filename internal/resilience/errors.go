// Package resilience guards every outbound fetch with a keyed circuit breaker
// and a windowed rate limiter, and every produced record with a dedup filter.
// Both breaker and limiter fail open when the shared keyed store is
// unreachable: crawl progress outranks strict enforcement.
package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel targets for errors.Is checks on admission rejections.
var (
	ErrCircuitOpen = errors.New("circuit open")
	ErrRateLimited = errors.New("rate limited")
)

// CircuitOpenError rejects a fetch whose circuit key is open.
type CircuitOpenError struct {
	Key string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s", e.Key)
}

// Is lets errors.Is(err, ErrCircuitOpen) match.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// RateLimitedError rejects a fetch that would exceed its window ceiling.
// The request is rejected, never queued or delayed.
type RateLimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Key, e.RetryAfter)
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// HTTPStatusError reports a fetch that reached the server but came back with
// an error status. The body may still be present; callers decide whether the
// status is worth a retry.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
}

// Temporary reports whether the status indicates a server-side condition
// that may clear on its own.
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// IsAdmissionRejection reports whether err is a middleware rejection rather
// than a real fetch failure. Rejections are never auto-retried within a pass.
func IsAdmissionRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited)
}
