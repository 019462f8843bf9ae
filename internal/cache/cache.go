// Package cache provides the in-memory TTL caches sitting in front of
// the provider and the scoring pipeline. Entries expire lazily on read
// and the cache is bounded: at capacity, the oldest-inserted entry is
// evicted.
package cache

import (
	"sync"
	"time"

	"github.com/mbd888/walletscope/internal/metrics"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
	expiresAt  time.Time
}

// Cache is a bounded TTL map, safe for concurrent use. The name labels
// hit/miss metrics so each cache (history, graph, score) reports
// separately.
type Cache[V any] struct {
	name       string
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]entry[V]

	// now is swappable for tests
	now func() time.Time
}

// New creates a cache. maxEntries <= 0 means unbounded; ttl <= 0 means
// entries never expire.
func New[V any](name string, ttl time.Duration, maxEntries int) *Cache[V] {
	return &Cache[V]{
		name:       name,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]entry[V]),
		now:        time.Now,
	}
}

// Get returns the cached value if present and unexpired. Expired
// entries are deleted on the spot.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		var zero V
		return zero, false
	}
	metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
	return e.value, true
}

// Set stores a value, evicting the oldest-inserted entry when the
// cache is full. Overwriting an existing key refreshes its TTL and
// insertion age.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists &&
		c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	e := entry[V]{value: value, insertedAt: now}
	if c.ttl > 0 {
		e.expiresAt = now.Add(c.ttl)
	}
	c.entries[key] = e
}

// Delete removes a key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush drops every entry.
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// evictOldestLocked scans for the oldest-inserted entry. Linear, but
// capacities run in the low thousands and eviction is off the read
// path.
func (c *Cache[V]) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.insertedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.insertedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
