package cache

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Lru is a count-bounded least-recently-used cache. The recency machinery
// comes from hashicorp's simplelru; this wrapper adapts it to the Cache
// protocol (it is not safe for concurrent use on its own — the
// CachedFetcher provides the locking).
type Lru[K comparable, V any] struct {
	inner *simplelru.LRU[K, V]
}

// NewLru creates an LRU holding at most capacity entries
func NewLru[K comparable, V any](capacity int) *Lru[K, V] {
	inner, err := simplelru.NewLRU[K, V](capacity, nil)
	if err != nil {
		// simplelru only rejects a non-positive size
		panic(err)
	}
	return &Lru[K, V]{inner: inner}
}

func (c *Lru[K, V]) Store(key K, value V) (V, bool) {
	c.inner.Add(key, value)
	return value, true
}

func (c *Lru[K, V]) Fetch(key K) (V, bool) {
	return c.inner.Get(key)
}

func (c *Lru[K, V]) Contains(key K) bool {
	return c.inner.Contains(key)
}

func (c *Lru[K, V]) Remove(key K) (V, bool) {
	v, ok := c.inner.Peek(key)
	if ok {
		c.inner.Remove(key)
	}
	return v, ok
}
