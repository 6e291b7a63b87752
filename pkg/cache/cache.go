package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe in-memory cache with per-entry TTL. Expired entries
// are swept on write once per TTL, so there is no background goroutine to
// stop.
type Cache[V any] struct {
	mu        sync.Mutex
	items     map[string]item[V]
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		items: make(map[string]item[V]),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok || !c.now().Before(it.expiresAt) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// GetMany splits keys into the values found and the keys that missed.
func (c *Cache[V]) GetMany(keys []string) (map[string]V, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	found := make(map[string]V, len(keys))
	var missing []string
	for _, key := range keys {
		if it, ok := c.items[key]; ok && now.Before(it.expiresAt) {
			found[key] = it.value
			continue
		}
		missing = append(missing, key)
	}
	return found, missing
}

func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.items[key] = item[V]{value: value, expiresAt: now.Add(ttl)}

	if now.Sub(c.lastSweep) >= c.ttl {
		c.lastSweep = now
		for k, it := range c.items {
			if !now.Before(it.expiresAt) {
				delete(c.items, k)
			}
		}
	}
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
