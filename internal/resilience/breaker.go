package resilience

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
	"github.com/conocermx/renec-harvester/internal/kvstore"
)

// CircuitState is the lifecycle state of one circuit key.
type CircuitState string

// Circuit states. The only legal transitions are Closed→Open (threshold
// breach), Open→HalfOpen (recovery timeout elapsed), HalfOpen→Closed (probe
// success) and HalfOpen→Open (probe failure).
const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half_open"
)

const breakerKeyPrefix = "cb:"

// circuitEntry is the per-key coordination record kept in the shared store.
type circuitEntry struct {
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastFailureUnix     int64        `json:"last_failure_unix"`
	ProbesUsed          int          `json:"probes_used"`
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenProbes   int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = time.Minute
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 1
	}
	return c
}

// CircuitBreaker stops calling a failing key until it shows signs of
// recovery. State is kept in the injected store; per-key mutations are
// serialized through striped in-process locks.
type CircuitBreaker struct {
	store  kvstore.Store
	cfg    BreakerConfig
	clock  harvester.Clock
	logger *zap.Logger

	locks [64]sync.Mutex
	seen  sync.Map // key -> struct{}
}

// NewBreaker constructs a CircuitBreaker over the given store.
func NewBreaker(store kvstore.Store, cfg BreakerConfig, clock harvester.Clock, logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		store:  store,
		cfg:    cfg.withDefaults(),
		clock:  clock,
		logger: logger,
	}
}

// Allow admits or rejects a request for rawURL without any network call.
// A nil return admits the request.
func (b *CircuitBreaker) Allow(ctx context.Context, rawURL string) error {
	key := BreakerKey(rawURL)
	unlock := b.lock(key)
	defer unlock()

	entry, ok := b.load(ctx, key)
	if !ok {
		// Store unreachable: fail open.
		return nil
	}

	switch entry.State {
	case StateOpen:
		last := time.Unix(entry.LastFailureUnix, 0)
		if b.clock.Now().Sub(last) < b.cfg.RecoveryTimeout {
			return &CircuitOpenError{Key: key}
		}
		entry.State = StateHalfOpen
		entry.ProbesUsed = 1
		b.save(ctx, key, entry)
		b.logger.Info("circuit half-open, admitting probe", zap.String("key", key))
		return nil
	case StateHalfOpen:
		if entry.ProbesUsed >= b.cfg.HalfOpenProbes {
			return &CircuitOpenError{Key: key}
		}
		entry.ProbesUsed++
		b.save(ctx, key, entry)
		return nil
	default:
		return nil
	}
}

// ReportSuccess records a successful fetch for rawURL. A half-open probe
// success fully closes the circuit.
func (b *CircuitBreaker) ReportSuccess(ctx context.Context, rawURL string) {
	key := BreakerKey(rawURL)
	unlock := b.lock(key)
	defer unlock()

	entry, ok := b.load(ctx, key)
	if !ok {
		return
	}
	if entry.State == StateHalfOpen {
		b.logger.Info("circuit closed after probe success", zap.String("key", key))
	}
	if entry.State == StateClosed && entry.ConsecutiveFailures == 0 {
		return
	}
	b.save(ctx, key, circuitEntry{State: StateClosed})
}

// ReportFailure records a failed fetch (network error or HTTP server error)
// for rawURL, opening the circuit on threshold breach or probe failure.
func (b *CircuitBreaker) ReportFailure(ctx context.Context, rawURL string) {
	key := BreakerKey(rawURL)
	unlock := b.lock(key)
	defer unlock()

	entry, ok := b.load(ctx, key)
	if !ok {
		return
	}
	now := b.clock.Now()

	switch entry.State {
	case StateHalfOpen:
		entry = circuitEntry{State: StateOpen, LastFailureUnix: now.Unix()}
		b.logger.Warn("circuit re-opened after probe failure", zap.String("key", key))
	case StateOpen:
		entry.LastFailureUnix = now.Unix()
	default:
		entry.ConsecutiveFailures++
		entry.LastFailureUnix = now.Unix()
		if entry.ConsecutiveFailures >= b.cfg.FailureThreshold {
			entry.State = StateOpen
			b.logger.Warn("circuit opened",
				zap.String("key", key),
				zap.Int("consecutive_failures", entry.ConsecutiveFailures),
			)
		}
	}
	b.save(ctx, key, entry)
}

// OpenKeys returns the sorted circuit keys currently open or half-open,
// for the end-of-run summary.
func (b *CircuitBreaker) OpenKeys(ctx context.Context) []string {
	var open []string
	b.seen.Range(func(k, _ any) bool {
		key := k.(string)
		entry, ok := b.load(ctx, key)
		if ok && entry.State != StateClosed {
			open = append(open, key)
		}
		return true
	})
	sort.Strings(open)
	return open
}

// load reads the entry for key; ok is false only when the store errored, in
// which case callers must fail open.
func (b *CircuitBreaker) load(ctx context.Context, key string) (circuitEntry, bool) {
	b.seen.LoadOrStore(key, struct{}{})
	raw, found, err := b.store.Get(ctx, breakerKeyPrefix+key)
	if err != nil {
		b.logger.Warn("breaker store unreachable, failing open", zap.String("key", key), zap.Error(err))
		return circuitEntry{}, false
	}
	if !found {
		return circuitEntry{State: StateClosed}, true
	}
	var entry circuitEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		b.logger.Warn("breaker entry corrupt, resetting", zap.String("key", key), zap.Error(err))
		return circuitEntry{State: StateClosed}, true
	}
	return entry, true
}

func (b *CircuitBreaker) save(ctx context.Context, key string, entry circuitEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := b.store.Set(ctx, breakerKeyPrefix+key, string(raw), 0); err != nil {
		b.logger.Warn("breaker state write failed", zap.String("key", key), zap.Error(err))
	}
}

func (b *CircuitBreaker) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &b.locks[h.Sum32()%uint32(len(b.locks))]
	m.Lock()
	return m.Unlock
}
