// Package ttlcache implements the short-lived read cache that sits in front of the
// study-assistant API.
//
// Design Choices:
//   - One fixed TTL per cache instance. All cached endpoints (course lists, user profile,
//     analytics snapshots, course configuration) tolerate the same staleness.
//   - Expiration is checked lazily on Get. There is no background sweep: a session only ever
//     touches a small number of (endpoint, parameters) combinations.
//   - Entries are stored and returned as-is. Callers treat returned values as read-only.
//   - Time comes from an injected clockwork.Clock so tests can move past the TTL without sleeping.
package ttlcache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTTL is the maximum age of a cached entry.
const DefaultTTL = 5 * time.Minute

// Entry is a cached value together with the time it was stored.
type Entry struct {
	Data     any       `json:"data"`
	StoredAt time.Time `json:"stored_at"`
}

// Stale reports whether the entry is older than ttl at now.
func (e Entry) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) > ttl
}

// Metrics tracks cache counters.
type Metrics struct {
	Hits        atomic.Int64
	Misses      atomic.Int64
	Sets        atomic.Int64
	Expirations atomic.Int64
	Clears      atomic.Int64
}

// Stats is a point-in-time copy of the cache counters.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Sets        int64   `json:"sets"`
	Expirations int64   `json:"expirations"`
	Clears      int64   `json:"clears"`
	Size        int     `json:"size"`
}

// Cache is a string-keyed map with lazy TTL expiry.
// RWMutex guards the map; the cache is shared by every goroutine serving one session.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	clock   clockwork.Clock
	metrics Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used for storing and expiring entries.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     DefaultTTL,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key. A missing or stale entry reports ok == false;
// a stale entry is deleted so it can never be observed again.
// Complexity: O(1) average.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.metrics.Misses.Add(1)
		return nil, false
	}

	if entry.Stale(c.clock.Now(), c.ttl) {
		c.mu.Lock()
		// A concurrent Set may have replaced the entry since the read lock was released.
		if current, ok := c.entries[key]; ok && current.StoredAt.Equal(entry.StoredAt) {
			delete(c.entries, key)
			c.metrics.Expirations.Add(1)
		}
		c.mu.Unlock()
		c.metrics.Misses.Add(1)
		return nil, false
	}

	c.metrics.Hits.Add(1)
	return entry.Data, true
}

// Set stores value under key with the current time, replacing any previous entry.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry{
		Data:     value,
		StoredAt: c.clock.Now(),
	}
	c.metrics.Sets.Add(1)
}

// Delete removes the entry under key, if any.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	c.metrics.Clears.Add(1)
}

// Len returns the number of stored entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the cache's expiry window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	hits := c.metrics.Hits.Load()
	misses := c.metrics.Misses.Load()

	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:        hits,
		Misses:      misses,
		HitRate:     hitRate,
		Sets:        c.metrics.Sets.Load(),
		Expirations: c.metrics.Expirations.Load(),
		Clears:      c.metrics.Clears.Load(),
		Size:        c.Len(),
	}
}

// Lookup is a typed Get. A stored value of a different type is reported as a miss.
func Lookup[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
