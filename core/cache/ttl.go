package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache wraps an LRUCache with per-entry expiry and single-flight
// deduplication of concurrent loads for the same key (spec.md §5's fetch
// and resolver caches both need exactly this shape).
type TTLCache[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]ttlEntry[V]
	lru   *LRUCache[K, struct{}] // tracks recency/capacity; values live in items
	group singleflight.Group
	keyFn func(K) string
}

// NewTTLCache creates a TTL cache bounded by capacity, using keyFn to turn a
// key into the string singleflight needs. Comparable keys without a natural
// string form (e.g. structs) must supply one.
func NewTTLCache[K comparable, V any](capacity int, keyFn func(K) string) *TTLCache[K, V] {
	c := &TTLCache[K, V]{
		items: make(map[K]ttlEntry[V]),
		lru:   NewLRUCache[K, struct{}](capacity),
		keyFn: keyFn,
	}
	c.lru.SetEvictCallback(func(key K, _ struct{}) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
	})
	return c
}

// Get returns the cached value for key if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	e, ok := c.items[key]
	if ok && time.Now().After(e.expiresAt) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		var zero V
		return zero, false
	}
	c.lru.Get(key) // bump recency
	return e.value, true
}

// Set stores value for key with the given absolute expiry.
func (c *TTLCache[K, V]) Set(key K, value V, expiresAt time.Time) {
	c.mu.Lock()
	c.items[key] = ttlEntry[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
	c.lru.Put(key, struct{}{})
}

// Invalidate removes key's cached entry, if any.
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	c.lru.Remove(key)
}

// Load returns the cached value for key, or calls fn exactly once across all
// concurrent callers for the same key (single-flight) and caches its result
// under the expiry fn reports.
func (c *TTLCache[K, V]) Load(ctx context.Context, key K, fn func(context.Context) (V, time.Time, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(c.keyFn(key), func() (any, error) {
		// Re-check under the singleflight key in case another caller's
		// in-flight load just completed while we were entering Do.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		value, expiresAt, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value, expiresAt)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
