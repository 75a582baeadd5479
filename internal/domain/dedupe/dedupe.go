// Package dedupe defines the interface for idempotency tracking.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Deduper records seen event IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen list, allowing it to be retried.
	// Used when an event was recorded but could not be queued.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps the most recently seen ids in a bounded LRU.
type inMemoryDeduper struct {
	mu      sync.Mutex
	cache   *lru.Cache
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(d)
	}
	// lru.New only fails for non-positive sizes, which options rule out.
	d.cache, _ = lru.New(d.maxSize)
	return d
}

// SeenAndRecord atomically checks if id was seen and records it if not.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cache.Contains(id) {
		// Refresh recency.
		d.cache.Get(id)
		return true
	}
	d.cache.Add(id, struct{}{})
	return false
}

// Unrecord removes an ID from the seen list, allowing it to be retried.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Remove(id)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return int64(d.cache.Len())
}
