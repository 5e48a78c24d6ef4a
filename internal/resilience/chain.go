package resilience

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// GuardedFetcher is the middleware chain every outbound fetch passes through:
// circuit breaker, then rate limiter, then the network call, with the result
// recorded back into the breaker.
type GuardedFetcher struct {
	next    harvester.Fetcher
	breaker *CircuitBreaker
	limiter *RateLimiter
	logger  *zap.Logger
}

// NewGuardedFetcher wraps next with the breaker and limiter.
func NewGuardedFetcher(next harvester.Fetcher, breaker *CircuitBreaker, limiter *RateLimiter, logger *zap.Logger) *GuardedFetcher {
	return &GuardedFetcher{
		next:    next,
		breaker: breaker,
		limiter: limiter,
		logger:  logger,
	}
}

// Fetch admits the request through both guards, performs the fetch, and
// reports the outcome to the breaker. Rate rejections are self-imposed and
// deliberately not reported to the breaker.
func (g *GuardedFetcher) Fetch(ctx context.Context, rawURL string) (harvester.Page, error) {
	if err := g.breaker.Allow(ctx, rawURL); err != nil {
		return harvester.Page{}, err
	}
	if err := g.limiter.Allow(ctx, rawURL); err != nil {
		return harvester.Page{}, err
	}

	page, err := g.next.Fetch(ctx, rawURL)
	if err != nil {
		g.breaker.ReportFailure(ctx, rawURL)
		return page, err
	}
	if page.StatusCode >= http.StatusInternalServerError {
		g.breaker.ReportFailure(ctx, rawURL)
	} else {
		g.breaker.ReportSuccess(ctx, rawURL)
	}
	return page, nil
}
