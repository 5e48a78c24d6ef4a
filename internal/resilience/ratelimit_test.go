package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/kvstore/memory"
)

func TestRateLimiter_CeilingWithinWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(10_000, 0)}
	store := memory.New(memory.WithClock(clock))
	l := NewRateLimiter(store, RateConfig{Ceiling: 5, Window: time.Minute}, zap.NewNop())

	url := "https://conocer.gob.mx/RENEC/controlador.do"
	rejected := 0
	for i := 0; i < 6; i++ {
		if err := l.Allow(ctx, url); err != nil {
			rejected++
			require.ErrorIs(t, err, ErrRateLimited)
			var rle *RateLimitedError
			require.ErrorAs(t, err, &rle)
			require.Equal(t, time.Minute, rle.RetryAfter)
		}
	}
	require.Equal(t, 1, rejected)

	// After the window elapses, a full ceiling of requests is admitted again.
	clock.Advance(time.Minute + time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(ctx, url))
	}
	require.Error(t, l.Allow(ctx, url))
}

func TestRateLimiter_APITierIsLooser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(10_000, 0)}
	store := memory.New(memory.WithClock(clock))
	l := NewRateLimiter(store, RateConfig{Ceiling: 2, APICeiling: 10, Window: time.Minute}, zap.NewNop())

	htmlURL := "https://conocer.gob.mx/RENEC/listado"
	apiURL := "https://conocer.gob.mx/api/estandares"

	require.NoError(t, l.Allow(ctx, htmlURL))
	require.NoError(t, l.Allow(ctx, htmlURL))
	require.Error(t, l.Allow(ctx, htmlURL))

	// The API tier has its own key and a higher ceiling.
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Allow(ctx, apiURL))
	}
	require.Error(t, l.Allow(ctx, apiURL))
}

func TestRateLimiter_KeysIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	l := NewRateLimiter(store, RateConfig{Ceiling: 1, Window: time.Minute}, zap.NewNop())

	require.NoError(t, l.Allow(ctx, "https://a.gob.mx/x"))
	require.Error(t, l.Allow(ctx, "https://a.gob.mx/y"))
	require.NoError(t, l.Allow(ctx, "https://b.gob.mx/x"))
}

func TestRateLimiter_FailsOpenOnStoreError(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(brokenStore{}, RateConfig{Ceiling: 1, Window: time.Minute}, zap.NewNop())
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(context.Background(), "https://conocer.gob.mx/"))
	}
}
