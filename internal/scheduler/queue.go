package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

var (
	errQueueFull   = errors.New("frontier queue full")
	errQueueClosed = errors.New("frontier queue closed")
)

// frontier is the bounded in-memory work queue. Enqueue never blocks:
// workers feed the queue from inside their own dequeue loop, so a blocking
// send could deadlock the pool once the channel fills.
type frontier struct {
	ch      chan harvester.CrawlTarget
	closeMu sync.Mutex
	closed  bool
}

func newFrontier(capacity int) *frontier {
	return &frontier{ch: make(chan harvester.CrawlTarget, capacity)}
}

// TryEnqueue pushes a target or reports a full or closed queue.
func (f *frontier) TryEnqueue(t harvester.CrawlTarget) error {
	f.closeMu.Lock()
	defer f.closeMu.Unlock()
	if f.closed {
		return errQueueClosed
	}
	select {
	case f.ch <- t:
		return nil
	default:
		return errQueueFull
	}
}

// Dequeue pops the next target, respecting context cancellation.
func (f *frontier) Dequeue(ctx context.Context) (harvester.CrawlTarget, error) {
	select {
	case <-ctx.Done():
		return harvester.CrawlTarget{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case t, ok := <-f.ch:
		if !ok {
			return harvester.CrawlTarget{}, errQueueClosed
		}
		return t, nil
	}
}

// Close closes the underlying channel for shutdown.
func (f *frontier) Close() {
	f.closeMu.Lock()
	defer f.closeMu.Unlock()
	if f.closed {
		return
	}
	close(f.ch)
	f.closed = true
}

// Len reports the current queue depth.
func (f *frontier) Len() int {
	return len(f.ch)
}
