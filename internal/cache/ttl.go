package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/railfield/tracksync/internal/events"
)

// ttlEntry is one memoized value with its freshness bookkeeping.
type ttlEntry struct {
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

func (e ttlEntry) fresh(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// TTLCache memoizes expensive aggregate computations for a bounded time.
// Concurrent callers for the same key share a single in-flight compute.
type TTLCache struct {
	logger *events.Logger

	mu      sync.RWMutex
	entries map[string]ttlEntry
	group   singleflight.Group

	// now is swapped in tests to control the clock.
	now func() time.Time
}

// NewTTLCache creates an empty TTL cache.
func NewTTLCache(logger *events.Logger) *TTLCache {
	return &TTLCache{
		logger:  logger.WithField("component", "ttl_cache"),
		entries: make(map[string]ttlEntry),
		now:     time.Now,
	}
}

// GetOrCompute returns the cached value when it is younger than ttl,
// otherwise invokes compute once (duplicate concurrent callers wait for
// the first result) and stores the fresh value. A compute failure leaves
// the previous entry untouched and is returned only to callers of that
// invocation.
func (c *TTLCache) GetOrCompute(
	ctx context.Context,
	key string,
	ttl time.Duration,
	compute func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && entry.fresh(c.now()) {
		return entry.value, nil
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have refreshed while this one waited.
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && entry.fresh(c.now()) {
			return entry.value, nil
		}

		value, err := compute(ctx)
		if err != nil {
			c.logger.WithError(err).WithField("key", key).Debug("Compute failed, cache left untouched")
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = ttlEntry{value: value, storedAt: c.now(), ttl: ttl}
		c.mu.Unlock()

		return value, nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Peek returns the cached value regardless of freshness.
func (c *TTLCache) Peek(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

// Invalidate drops a key so the next read recomputes.
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// SetClock replaces the time source. Test hook.
func (c *TTLCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
