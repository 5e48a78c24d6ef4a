// Package memory provides an in-process event publisher that records harvest
// events for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Publisher collects published payloads in memory, grouped by topic. The
// zero value is not usable; construct with New.
type Publisher struct {
	mu      sync.RWMutex
	seq     int
	byTopic map[string][]any
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{byTopic: make(map[string][]any)}
}

// Publish records the payload under the topic and returns a local sequence
// ID in place of a broker message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.byTopic[topic] = append(p.byTopic[topic], payload)
	return fmt.Sprintf("local-%d", p.seq), nil
}

// Topics returns the names of topics that have received at least one event,
// sorted for stable assertions.
func (p *Publisher) Topics() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.byTopic))
	for name := range p.byTopic {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Events returns the payloads recorded for the topic in publish order.
func (p *Publisher) Events(topic string) []any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]any, len(p.byTopic[topic]))
	copy(out, p.byTopic[topic])
	return out
}
