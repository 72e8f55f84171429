package cache

import (
	"errors"
	"sync"
	"testing"
)

func TestCachedFetcherProtocol(t *testing.T) {
	fetcher := NewCachedFetcher[string, int](NewMap[string, int]())
	calls := 0
	miss := func(key string) (int, error) {
		calls++
		return len(key), nil
	}

	v, err := fetcher.Fetch("hello", miss)
	if err != nil || v != 5 {
		t.Fatalf("expected (5, nil), got (%d, %v)", v, err)
	}
	v, err = fetcher.Fetch("hello", miss)
	if err != nil || v != 5 {
		t.Fatalf("expected (5, nil), got (%d, %v)", v, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 miss call, got %d", calls)
	}

	stats := fetcher.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected hits=1 misses=1, got %+v", stats)
	}
}

func TestCachedFetcherRejectedStoreReturnsValue(t *testing.T) {
	// A dummy cache rejects every store; the caller still gets the value.
	fetcher := NewCachedFetcher[string, int](NewDummy[string, int]())
	for i := 0; i < 3; i++ {
		v, err := fetcher.Fetch("k", func(string) (int, error) { return 42, nil })
		if err != nil || v != 42 {
			t.Fatalf("expected (42, nil), got (%d, %v)", v, err)
		}
	}
	stats := fetcher.Stats()
	if stats.Hits != 0 || stats.Misses != 3 {
		t.Errorf("expected hits=0 misses=3, got %+v", stats)
	}
}

func TestCachedFetcherError(t *testing.T) {
	fetcher := NewCachedFetcher[string, int](NewMap[string, int]())
	wantErr := errors.New("backend down")
	_, err := fetcher.Fetch("k", func(string) (int, error) { return 0, wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the miss error, got %v", err)
	}
	// Nothing was cached: the next call misses again.
	if _, err := fetcher.Fetch("k", func(string) (int, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}
	if stats := fetcher.Stats(); stats.Misses != 2 {
		t.Errorf("expected 2 misses, got %+v", stats)
	}
}

func TestCachedFetcherTransparency(t *testing.T) {
	// Whatever the policy does, the observed value equals the miss
	// function's result.
	caches := map[string]Cache[string, int]{
		"dummy": NewDummy[string, int](),
		"map":   NewMap[string, int](),
		"lru":   NewLru[string, int](2),
	}
	keys := []string{"a", "bb", "ccc", "a", "bb", "dddd", "a"}
	for name, c := range caches {
		fetcher := NewCachedFetcher[string, int](c)
		for _, key := range keys {
			v, err := fetcher.Fetch(key, func(k string) (int, error) { return len(k), nil })
			if err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			if v != len(key) {
				t.Errorf("%s: caching changed the observed value for %q: %d", name, key, v)
			}
		}
	}
}

func TestCachedFetcherConcurrentMisses(t *testing.T) {
	// The miss path is cooperatively single-flighted: concurrent callers
	// may all fetch, but every caller sees the correct value.
	fetcher := NewCachedFetcher[string, int](NewMap[string, int]())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := fetcher.Fetch("k", func(string) (int, error) { return 7, nil })
			if err != nil || v != 7 {
				t.Errorf("expected (7, nil), got (%d, %v)", v, err)
			}
		}()
	}
	wg.Wait()

	stats := fetcher.Stats()
	if stats.Hits+stats.Misses != 16 {
		t.Errorf("expected 16 lookups, got %+v", stats)
	}
}
