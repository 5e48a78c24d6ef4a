package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
	"github.com/conocermx/renec-harvester/internal/kvstore/memory"
)

type scriptedFetcher struct {
	calls  atomic.Int64
	status int
	err    error
}

func (f *scriptedFetcher) Fetch(_ context.Context, rawURL string) (harvester.Page, error) {
	f.calls.Add(1)
	if f.err != nil {
		return harvester.Page{}, f.err
	}
	return harvester.Page{URL: rawURL, StatusCode: f.status, Body: []byte("<html></html>")}, nil
}

func newTestChain(t *testing.T, next harvester.Fetcher, breakerCfg BreakerConfig, rateCfg RateConfig) (*GuardedFetcher, *CircuitBreaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(10_000, 0)}
	store := memory.New(memory.WithClock(clock))
	breaker := NewBreaker(store, breakerCfg, clock, zap.NewNop())
	limiter := NewRateLimiter(store, rateCfg, zap.NewNop())
	return NewGuardedFetcher(next, breaker, limiter, zap.NewNop()), breaker, clock
}

func TestGuardedFetcher_OpenCircuitSkipsNetworkCall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := &scriptedFetcher{err: errors.New("connection refused")}
	g, _, _ := newTestChain(t, inner,
		BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute},
		RateConfig{Ceiling: 100, Window: time.Minute},
	)

	url := "https://conocer.gob.mx/RENEC/controlador.do"
	for i := 0; i < 2; i++ {
		_, err := g.Fetch(ctx, url)
		require.Error(t, err)
	}
	require.EqualValues(t, 2, inner.calls.Load())

	_, err := g.Fetch(ctx, url)
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.EqualValues(t, 2, inner.calls.Load(), "rejected fetch must not reach the network")
}

func TestGuardedFetcher_ServerErrorCountsAsFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := &scriptedFetcher{status: 503}
	g, _, _ := newTestChain(t, inner,
		BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute},
		RateConfig{Ceiling: 100, Window: time.Minute},
	)

	url := "https://conocer.gob.mx/RENEC/controlador.do"
	for i := 0; i < 3; i++ {
		page, err := g.Fetch(ctx, url)
		require.NoError(t, err)
		require.Equal(t, 503, page.StatusCode)
	}
	_, err := g.Fetch(ctx, url)
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestGuardedFetcher_RateRejectionNotReportedToBreaker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := &scriptedFetcher{status: 200}
	g, breaker, _ := newTestChain(t, inner,
		BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute},
		RateConfig{Ceiling: 1, Window: time.Minute},
	)

	url := "https://conocer.gob.mx/RENEC/controlador.do"
	_, err := g.Fetch(ctx, url)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = g.Fetch(ctx, url)
		require.ErrorIs(t, err, ErrRateLimited)
	}
	require.EqualValues(t, 1, inner.calls.Load())

	// Rate rejections are self-imposed: the circuit stays closed.
	require.Empty(t, breaker.OpenKeys(ctx))
}

func TestGuardedFetcher_SuccessClosesHalfOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := &scriptedFetcher{err: errors.New("timeout")}
	g, _, clock := newTestChain(t, inner,
		BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute, HalfOpenProbes: 1},
		RateConfig{Ceiling: 100, Window: time.Second},
	)

	url := "https://conocer.gob.mx/RENEC/controlador.do"
	_, err := g.Fetch(ctx, url)
	require.Error(t, err)
	_, err = g.Fetch(ctx, url)
	require.ErrorIs(t, err, ErrCircuitOpen)

	clock.Advance(2 * time.Minute)
	inner.err = nil
	inner.status = 200

	_, err = g.Fetch(ctx, url)
	require.NoError(t, err)
	_, err = g.Fetch(ctx, url)
	require.NoError(t, err)
}
