package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EvictCallback is invoked whenever an item leaves the cache, whether by
// automatic LRU eviction, explicit Remove, or Clear.
type EvictCallback[K comparable, V any] func(key K, value V)

// LRUCache is a thread-safe, fixed-capacity least-recently-used cache.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	inner    *lru.Cache[K, V]
	cbMu     sync.Mutex // guards onEvict; the evict hook runs while mu is held
	onEvict  EvictCallback[K, V]
	capacity int
}

// NewLRUCache creates a cache holding at most capacity items. capacity must
// be positive.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	c := &LRUCache[K, V]{capacity: capacity}

	inner, err := lru.NewWithEvict(capacity, func(key K, value V) {
		c.cbMu.Lock()
		cb := c.onEvict
		c.cbMu.Unlock()
		if cb != nil {
			cb(key, value)
		}
	})
	if err != nil {
		// Only invalid capacity (<=0) reaches here; treat as a programmer error.
		panic(err)
	}
	c.inner = inner
	return c
}

// SetEvictCallback registers f to run whenever an item leaves the cache.
func (c *LRUCache[K, V]) SetEvictCallback(f EvictCallback[K, V]) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onEvict = f
}

// Put inserts or updates key, returning the previous value and whether one existed.
func (c *LRUCache[K, V]) Put(key K, value V) (previous V, existed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous, existed = c.inner.Peek(key)
	c.inner.Add(key, value)
	return previous, existed
}

// Get returns the value for key and marks it recently used.
func (c *LRUCache[K, V]) Get(key K) (value V, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(key)
}

// Remove deletes key from the cache, returning the removed value if present.
func (c *LRUCache[K, V]) Remove(key K) (removed V, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed, found = c.inner.Peek(key)
	c.inner.Remove(key)
	return removed, found
}

// Len returns the number of items currently cached.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

// Clear removes every item from the cache, running the eviction callback for each.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Purge()
}

// Capacity returns the maximum number of items the cache holds.
func (c *LRUCache[K, V]) Capacity() int {
	return c.capacity
}
