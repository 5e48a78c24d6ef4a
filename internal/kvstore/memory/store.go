// Package memory provides an in-process Store for single-node runs and tests.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Clock returns the current time; injectable so TTL behavior is testable.
type Clock interface {
	Now() time.Time
}

// Store is a mutex-guarded map with per-key expiry. Expired keys are dropped
// lazily on access and swept opportunistically on writes.
type Store struct {
	mu    sync.Mutex
	items map[string]entry
	clock Clock
	ops   int
}

// Option customizes the store.
type Option func(*Store)

// WithClock injects a clock, letting tests advance time without sleeping.
func WithClock(c Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		items: make(map[string]entry),
		clock: systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live value for key.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok {
		return "", false, nil
	}
	if e.expired(s.clock.Now()) {
		delete(s.items, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set writes value under key with the given ttl.
func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = entry{value: value, expiresAt: s.deadline(ttl)}
	s.maybeSweep()
	return nil
}

// SetNX writes value only when key is absent or expired.
func (s *Store) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[key]; ok && !e.expired(s.clock.Now()) {
		return false, nil
	}
	s.items[key] = entry{value: value, expiresAt: s.deadline(ttl)}
	s.maybeSweep()
	return true, nil
}

// Incr bumps the counter at key, creating it with ttl when absent.
func (s *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	e, ok := s.items[key]
	if !ok || e.expired(now) {
		s.items[key] = entry{value: "1", expiresAt: s.deadline(ttl)}
		s.maybeSweep()
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("incr non-numeric key %q: %w", key, err)
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.items[key] = e
	return n, nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Len reports the number of stored keys, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

// maybeSweep drops expired entries every sweepEvery mutations. Caller must
// hold s.mu.
func (s *Store) maybeSweep() {
	const sweepEvery = 512
	s.ops++
	if s.ops%sweepEvery != 0 {
		return
	}
	now := s.clock.Now()
	for k, e := range s.items {
		if e.expired(now) {
			delete(s.items, k)
		}
	}
}
