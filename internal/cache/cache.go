// Package cache provides a small in-process TTL cache with request
// coalescing, used to absorb bursts on the expensive live-status path.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	value   any
	expires time.Time
}

// Cache stores computed values for a short TTL. Concurrent callers asking for
// the same missing key share a single computation; a failed computation is
// never cached, so the next caller retries.
type Cache struct {
	clock clockwork.Clock
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

func New(clock clockwork.Clock) *Cache {
	return &Cache{
		clock:   clock,
		entries: make(map[string]entry),
	}
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expires: c.clock.Now().Add(ttl)}
}

// GetOrCompute returns the cached value for key, or runs fn once across all
// concurrent callers and caches its result for ttl. The second result is true
// on a cache hit.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, fn func() (any, error)) (any, bool, error) {
	if v, ok := c.get(key); ok {
		return v, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent flight may have populated the entry between the
		// miss above and acquiring the flight.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

// Invalidate drops one key, forcing the next read to recompute.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
