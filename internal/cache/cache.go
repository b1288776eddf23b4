package cache

import (
	"strings"
	"sync"
	"time"
)

const (
	// TTLShort suits search results.
	TTLShort = 15 * time.Minute
	// TTLMedium suits detail records.
	TTLMedium = 6 * time.Hour
	// TTLLong suits provider and offer listings.
	TTLLong = 24 * time.Hour
)

type entry struct {
	value   any
	expires time.Time
}

// Cache is an in-memory TTL cache safe for concurrent use. The zero value is
// not usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
	closed  bool
}

// New constructs an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func cacheKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// Get returns the cached value for (namespace, key) if present and fresh.
func (c *Cache) Get(namespace, key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	ent, ok := c.entries[cacheKey(namespace, key)]
	if !ok {
		return nil, false
	}
	if c.now().After(ent.expires) {
		delete(c.entries, cacheKey(namespace, key))
		return nil, false
	}
	return ent.value, true
}

// Set stores a value under (namespace, key) with the given TTL.
func (c *Cache) Set(namespace, key string, value any, ttl time.Duration) {
	if c == nil || ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.entries[cacheKey(namespace, key)] = entry{value: value, expires: c.now().Add(ttl)}
}

// Invalidate removes one entry.
func (c *Cache) Invalidate(namespace, key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(namespace, key))
}

// InvalidatePrefix removes every entry in the namespace whose key starts with
// prefix. An empty prefix clears the whole namespace.
func (c *Cache) InvalidatePrefix(namespace, prefix string) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	full := cacheKey(namespace, prefix)
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, full) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Close flushes all entries and rejects further use. Safe to call twice.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.closed = true
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
