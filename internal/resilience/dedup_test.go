package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
	"github.com/conocermx/renec-harvester/internal/kvstore/memory"
)

func TestDedup_SecondSightDiscarded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := NewDedup(memory.New(), time.Hour, zap.NewNop())

	require.True(t, f.Admit(ctx, harvester.EntityStandard, "hash-a"))
	require.False(t, f.Admit(ctx, harvester.EntityStandard, "hash-a"))

	// Same hash under a different entity type is a different key.
	require.True(t, f.Admit(ctx, harvester.EntityCertifier, "hash-a"))
	require.True(t, f.Admit(ctx, harvester.EntityStandard, "hash-b"))
}

func TestDedup_TTLExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(10_000, 0)}
	f := NewDedup(memory.New(memory.WithClock(clock)), time.Hour, zap.NewNop())

	require.True(t, f.Admit(ctx, harvester.EntityStandard, "hash-a"))
	clock.Advance(59 * time.Minute)
	require.False(t, f.Admit(ctx, harvester.EntityStandard, "hash-a"))
	clock.Advance(2 * time.Minute)
	require.True(t, f.Admit(ctx, harvester.EntityStandard, "hash-a"))
}

func TestDedup_FailsOpenOnStoreError(t *testing.T) {
	t.Parallel()

	f := NewDedup(brokenStore{}, time.Hour, zap.NewNop())
	require.True(t, f.Admit(context.Background(), harvester.EntityStandard, "hash-a"))
	require.True(t, f.Admit(context.Background(), harvester.EntityStandard, "hash-a"))
}
