package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/kvstore"
)

const rateKeyPrefix = "rw:"

// RateConfig tunes the windowed rate limiter. APICeiling is the looser tier
// applied to API-shaped paths.
type RateConfig struct {
	Ceiling    int
	APICeiling int
	Window     time.Duration
}

func (c RateConfig) withDefaults() RateConfig {
	if c.Ceiling <= 0 {
		c.Ceiling = 30
	}
	if c.APICeiling <= 0 {
		c.APICeiling = c.Ceiling * 4
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	return c
}

// RateLimiter admits a request only while the key's count within the current
// window stays below its ceiling. Excess requests are rejected with a
// suggested retry-after, never queued. The window counter lives in the shared
// store with the window length as its TTL, so windows are fixed rather than
// sliding: a burst straddling a window boundary can admit up to twice the
// ceiling across a trailing window-length span.
type RateLimiter struct {
	store  kvstore.Store
	cfg    RateConfig
	logger *zap.Logger
}

// NewRateLimiter constructs a RateLimiter over the given store.
func NewRateLimiter(store kvstore.Store, cfg RateConfig, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Allow admits or rejects a request for rawURL. Rejections are self-imposed
// and must not be reported to the circuit breaker.
func (l *RateLimiter) Allow(ctx context.Context, rawURL string) error {
	key, api := RateKey(rawURL)
	ceiling := l.cfg.Ceiling
	if api {
		ceiling = l.cfg.APICeiling
	}

	n, err := l.store.Incr(ctx, rateKeyPrefix+key, l.cfg.Window)
	if err != nil {
		l.logger.Warn("rate store unreachable, failing open", zap.String("key", key), zap.Error(err))
		return nil
	}
	if n > int64(ceiling) {
		return &RateLimitedError{Key: key, RetryAfter: l.cfg.Window}
	}
	return nil
}
