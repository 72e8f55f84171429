package cache

import (
	"sort"
)

// gdsfEntry is the storage-owned record for one cached value. The queue
// holds the same pointer, so the priority ordering never owns a second
// copy of the key.
type gdsfEntry[K comparable, V Costed] struct {
	key       K
	value     V
	size      int
	frequency int
	clock     float64
	// priority is the snapshot the entry was enqueued under; recomputed
	// whenever frequency or clock change so queue removal can find it.
	priority float64
	seq      uint64
}

func (e *gdsfEntry[K, V]) computePriority() float64 {
	return e.clock + float64(e.frequency)*float64(e.value.Cost())/float64(e.size)
}

// Gdsf is a Greedy-Dual-Size-Frequency cache: every entry carries
// priority = clock + frequency * cost / size, eviction victims are taken
// from the low-priority end, and the clock advances to the highest evicted
// priority so resident entries age relative to newcomers. The policy
// sheds small, cheap-to-recompute entries first and protects costly,
// frequently reused results.
type Gdsf[K comparable, V Costed] struct {
	capacity int
	used     int
	clock    float64
	nextSeq  uint64
	storage  map[K]*gdsfEntry[K, V]
	// queue is kept sorted ascending by (priority, seq); seq is the
	// stable per-entry handle that breaks priority ties.
	queue []*gdsfEntry[K, V]
}

// NewGdsf creates a GDSF cache with the given size capacity
func NewGdsf[K comparable, V Costed](capacity int) *Gdsf[K, V] {
	return &Gdsf[K, V]{
		capacity: capacity,
		storage:  make(map[K]*gdsfEntry[K, V]),
	}
}

// Store offers an entry. When the entry does not fit, the ascending-
// priority prefix of the queue is examined: if some prefix frees enough
// space and holds only priorities at or below the newcomer's, the whole
// prefix is evicted atomically and the clock advances to the highest
// evicted priority. Otherwise the newcomer is rejected and the clock
// advances to its priority so later inserts see progress.
func (c *Gdsf[K, V]) Store(key K, value V) (V, bool) {
	c.Remove(key)

	size := entrySize(value)
	entry := &gdsfEntry[K, V]{
		key:       key,
		value:     value,
		size:      size,
		frequency: 1,
		clock:     c.clock,
		seq:       c.nextSeq,
	}
	entry.priority = entry.computePriority()

	excess := c.used + size - c.capacity
	if excess > 0 {
		victims, freed := c.victimPrefix(entry.priority, excess)
		if victims == 0 || freed < excess {
			c.clock = entry.priority
			return value, false
		}
		// Apply the precomputed victim set in one sweep.
		c.clock = c.queue[victims-1].priority
		for _, victim := range c.queue[:victims] {
			delete(c.storage, victim.key)
			c.used -= victim.size
		}
		c.queue = append(c.queue[:0], c.queue[victims:]...)
		// The newcomer's priority was anchored on the pre-eviction clock;
		// it stays as computed, matching the clock progression rule.
	}

	if c.used+size > c.capacity {
		return value, false
	}
	c.nextSeq++
	c.storage[key] = entry
	c.enqueue(entry)
	c.used += size
	return value, true
}

// victimPrefix walks the queue in ascending priority while priorities stay
// at or below limit, accumulating sizes until the required space is
// reached. It returns the prefix length and the space it frees; freed <
// required means no admissible prefix exists.
func (c *Gdsf[K, V]) victimPrefix(limit float64, required int) (int, int) {
	freed := 0
	for i, entry := range c.queue {
		if entry.priority > limit {
			return i, freed
		}
		freed += entry.size
		if freed >= required {
			return i + 1, freed
		}
	}
	return len(c.queue), freed
}

func (c *Gdsf[K, V]) Fetch(key K) (V, bool) {
	entry, ok := c.storage[key]
	if !ok {
		var zero V
		return zero, false
	}
	// Re-anchor on the current clock and bump the frequency, then reorder.
	c.dequeue(entry)
	entry.clock = c.clock
	entry.frequency++
	entry.priority = entry.computePriority()
	c.enqueue(entry)
	return entry.value, true
}

func (c *Gdsf[K, V]) Contains(key K) bool {
	_, ok := c.storage[key]
	return ok
}

func (c *Gdsf[K, V]) Remove(key K) (V, bool) {
	entry, ok := c.storage[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(c.storage, key)
	c.dequeue(entry)
	c.used -= entry.size
	return entry.value, true
}

// Used reports the summed size of the resident entries
func (c *Gdsf[K, V]) Used() int { return c.used }

func (c *Gdsf[K, V]) enqueue(entry *gdsfEntry[K, V]) {
	i := c.searchQueue(entry)
	c.queue = append(c.queue, nil)
	copy(c.queue[i+1:], c.queue[i:])
	c.queue[i] = entry
}

func (c *Gdsf[K, V]) dequeue(entry *gdsfEntry[K, V]) {
	i := c.searchQueue(entry)
	for i < len(c.queue) && c.queue[i] != entry {
		i++
	}
	if i < len(c.queue) {
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
	}
}

func (c *Gdsf[K, V]) searchQueue(entry *gdsfEntry[K, V]) int {
	return sort.Search(len(c.queue), func(i int) bool {
		q := c.queue[i]
		if q.priority != entry.priority {
			return q.priority >= entry.priority
		}
		return q.seq >= entry.seq
	})
}
