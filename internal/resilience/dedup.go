package resilience

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
	"github.com/conocermx/renec-harvester/internal/kvstore"
)

const dedupKeyPrefix = "dedup:"

// DedupFilter discards records whose (entityType, contentHash) pair was seen
// within the TTL, protecting against re-harvesting unchanged content across
// overlapping runs. It fails open on store errors.
type DedupFilter struct {
	store  kvstore.Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewDedup constructs a DedupFilter. A non-positive ttl defaults to 24h.
func NewDedup(store kvstore.Store, ttl time.Duration, logger *zap.Logger) *DedupFilter {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupFilter{store: store, ttl: ttl, logger: logger}
}

// Admit records the key and returns true on first sight; a repeat within the
// TTL returns false and the record should be discarded.
func (f *DedupFilter) Admit(ctx context.Context, entityType harvester.EntityType, contentHash string) bool {
	key := fmt.Sprintf("%s%s:%s", dedupKeyPrefix, entityType, contentHash)
	ok, err := f.store.SetNX(ctx, key, "1", f.ttl)
	if err != nil {
		f.logger.Warn("dedup store unreachable, forwarding record",
			zap.String("entity_type", string(entityType)),
			zap.Error(err),
		)
		return true
	}
	return ok
}
