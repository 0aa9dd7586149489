package match

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CacheEntry pairs an item with its embedding.
type CacheEntry struct {
	ID     string
	Text   string
	Vector []float32
}

// Loader builds a full replacement set of cache entries.
type Loader func(ctx context.Context) ([]CacheEntry, error)

// Cache holds embedding entries for a bounded time. Readers always see a
// complete snapshot: a rebuild replaces the entry slice wholesale.
type Cache struct {
	ttl  time.Duration
	now  Clock
	load Loader

	mu          sync.RWMutex
	entries     []CacheEntry
	lastRefresh time.Time
	generation  uint64

	group singleflight.Group
}

// NewCache returns an empty cache that builds itself on first use.
func NewCache(ttl time.Duration, load Loader, now Clock) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now, load: load}
}

// Stale reports whether more than the TTL has passed since the last refresh.
// A never-built or invalidated cache is always stale.
func (c *Cache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staleLocked()
}

func (c *Cache) staleLocked() bool {
	return c.lastRefresh.IsZero() || c.now().Sub(c.lastRefresh) > c.ttl
}

// LastRefresh returns when the current snapshot was built (zero if none).
func (c *Cache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// Entries returns the current snapshot, rebuilding it first if stale.
// The returned slice must not be modified.
func (c *Cache) Entries(ctx context.Context) ([]CacheEntry, error) {
	c.mu.RLock()
	if !c.staleLocked() {
		entries := c.entries
		c.mu.RUnlock()
		return entries, nil
	}
	c.mu.RUnlock()

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries, nil
}

// Refresh rebuilds the snapshot. Concurrent callers share one load.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		c.mu.RLock()
		gen := c.generation
		c.mu.RUnlock()

		entries, err := c.load(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		c.entries = entries
		// An Invalidate during the load leaves the snapshot stale so the next
		// reader rebuilds with the write visible.
		if c.generation == gen {
			c.lastRefresh = c.now()
		}
		return nil, nil
	})
	return err
}

// Invalidate forces a rebuild on next access. A reader already holding a
// snapshot keeps using it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRefresh = time.Time{}
	c.generation++
}

// Len returns the number of entries in the current snapshot.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
