package cache

import (
	"github.com/cespare/xxhash/v2"
)

// Hashable keys expose the bytes their slot hash is computed over
type Hashable interface {
	comparable
	HashBytes() []byte
}

type collisionSlot[K Hashable, V any] struct {
	key   K
	value V
}

// Collision is a direct-mapped cache: a key hashes (mod capacity) to a
// single slot and a colliding insert replaces whatever held the slot.
// Occupancy is bounded by the slot count, which makes the policy
// near-constant-size with no bookkeeping on hits.
type Collision[K Hashable, V any] struct {
	modulus uint64
	slots   map[uint64]collisionSlot[K, V]
}

// NewCollision creates a collision cache with the given slot count
func NewCollision[K Hashable, V any](capacity int) *Collision[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Collision[K, V]{
		modulus: uint64(capacity),
		slots:   make(map[uint64]collisionSlot[K, V]),
	}
}

func (c *Collision[K, V]) slot(key K) uint64 {
	return xxhash.Sum64(key.HashBytes()) % c.modulus
}

func (c *Collision[K, V]) Store(key K, value V) (V, bool) {
	c.slots[c.slot(key)] = collisionSlot[K, V]{key: key, value: value}
	return value, true
}

func (c *Collision[K, V]) Fetch(key K) (V, bool) {
	slot, ok := c.slots[c.slot(key)]
	if !ok || slot.key != key {
		var zero V
		return zero, false
	}
	return slot.value, true
}

func (c *Collision[K, V]) Contains(key K) bool {
	slot, ok := c.slots[c.slot(key)]
	return ok && slot.key == key
}

func (c *Collision[K, V]) Remove(key K) (V, bool) {
	idx := c.slot(key)
	slot, ok := c.slots[idx]
	if !ok || slot.key != key {
		var zero V
		return zero, false
	}
	delete(c.slots, idx)
	return slot.value, true
}
