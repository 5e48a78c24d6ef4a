package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestStore_SetGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestStore_Expiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := New(WithClock(clock))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	clock.Advance(59 * time.Second)
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_SetNX(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := New(WithClock(clock))
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "k", "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.SetNX(ctx, "k", "b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "a", v)

	// A fresh write is allowed once the key expires.
	clock.Advance(2 * time.Minute)
	ok, err = s.SetNX(ctx, "k", "b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStore_IncrTTLOnlyOnCreate(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := New(WithClock(clock))
	ctx := context.Background()

	n, err := s.Incr(ctx, "rate:host", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	clock.Advance(30 * time.Second)
	n, err = s.Incr(ctx, "rate:host", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	// The window anchors at creation: 31s later the key is gone and the
	// counter restarts, it does not slide.
	clock.Advance(31 * time.Second)
	n, err = s.Incr(ctx, "rate:host", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestStore_IncrNonNumeric(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", "text", 0))

	_, err := s.Incr(ctx, "k", 0)
	require.Error(t, err)
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", "v", 0))
	require.NoError(t, s.Delete(ctx, "k"))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}
