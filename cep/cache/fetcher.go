package cache

import (
	"sync"
)

// Stats counts cache outcomes observed through a CachedFetcher
type Stats struct {
	Hits   uint64
	Misses uint64
}

// CachedFetcher wraps a cache with the miss protocol shared by the static
// backends:
//
//  1. Under the cache lock, look the key up; a hit returns the cached
//     value.
//  2. On a miss, drop the lock, run the miss function (typically an
//     unsynchronized SQL round-trip), re-acquire the lock and offer the
//     result. An accepted store returns the cached value; a rejected one
//     returns the value directly, uncached.
//
// The miss path is cooperatively single-flighted: two goroutines may both
// observe the miss and both fetch; the stores resolve in arrival order and
// every caller still sees a value equal to what the miss function yields,
// so caching never changes semantics.
type CachedFetcher[K comparable, V any] struct {
	mu     sync.Mutex
	cache  Cache[K, V]
	hits   uint64
	misses uint64
}

// NewCachedFetcher wraps a cache
func NewCachedFetcher[K comparable, V any](cache Cache[K, V]) *CachedFetcher[K, V] {
	return &CachedFetcher[K, V]{cache: cache}
}

// Fetch returns the value for key, consulting the cache first and falling
// back to the miss function.
func (f *CachedFetcher[K, V]) Fetch(key K, miss func(K) (V, error)) (V, error) {
	f.mu.Lock()
	if value, ok := f.cache.Fetch(key); ok {
		f.hits++
		f.mu.Unlock()
		return value, nil
	}
	f.misses++
	f.mu.Unlock()

	value, err := miss(key)
	if err != nil {
		var zero V
		return zero, err
	}

	f.mu.Lock()
	stored, _ := f.cache.Store(key, value)
	f.mu.Unlock()
	return stored, nil
}

// Stats returns the hit/miss counters
func (f *CachedFetcher[K, V]) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{Hits: f.hits, Misses: f.misses}
}
