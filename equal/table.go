package equal

import "iter"

// Table is a hash table whose keys are compared and hashed by a Comparer
// instead of the language's built-in map equality. Keys that collide on
// hash are chained.
//
// A Table is not safe for concurrent mutation.
type Table[K, V any] struct {
	cmp   Comparer[K]
	slots map[uint64][]slot[K, V]
	n     int
}

type slot[K, V any] struct {
	key   K
	value V
}

// NewTable creates an empty table that uses cmp for key equality.
func NewTable[K, V any](cmp Comparer[K]) *Table[K, V] {
	return &Table[K, V]{
		cmp:   cmp,
		slots: make(map[uint64][]slot[K, V]),
	}
}

// Comparer returns the key comparer the table was created with.
func (t *Table[K, V]) Comparer() Comparer[K] {
	return t.cmp
}

// find returns the chain for key's hash and the index of key in it, or -1.
func (t *Table[K, V]) find(key K) (uint64, int) {
	h := t.cmp.Hash(key)
	for i, s := range t.slots[h] {
		if t.cmp.Equal(s.key, key) {
			return h, i
		}
	}
	return h, -1
}

// Get returns the value stored for key.
func (t *Table[K, V]) Get(key K) (V, bool) {
	h, i := t.find(key)
	if i < 0 {
		var zero V
		return zero, false
	}
	return t.slots[h][i].value, true
}

// GetKey returns the stored key equal to key. Under a structural comparer
// this is the instance that was inserted, not the probe.
func (t *Table[K, V]) GetKey(key K) (K, bool) {
	h, i := t.find(key)
	if i < 0 {
		var zero K
		return zero, false
	}
	return t.slots[h][i].key, true
}

// Insert adds key→value only if key is absent. It returns false, leaving
// the table unchanged, if an equal key is already present.
func (t *Table[K, V]) Insert(key K, value V) bool {
	h, i := t.find(key)
	if i >= 0 {
		return false
	}
	t.slots[h] = append(t.slots[h], slot[K, V]{key: key, value: value})
	t.n++
	return true
}

// Put stores key→value, replacing the value (but keeping the stored key)
// if an equal key is present. It reports whether a new key was added.
func (t *Table[K, V]) Put(key K, value V) bool {
	h, i := t.find(key)
	if i >= 0 {
		t.slots[h][i].value = value
		return false
	}
	t.slots[h] = append(t.slots[h], slot[K, V]{key: key, value: value})
	t.n++
	return true
}

// Ensure returns the value for key, storing create() first if key is absent.
func (t *Table[K, V]) Ensure(key K, create func() V) V {
	h, i := t.find(key)
	if i >= 0 {
		return t.slots[h][i].value
	}
	v := create()
	t.slots[h] = append(t.slots[h], slot[K, V]{key: key, value: v})
	t.n++
	return v
}

// Delete removes key and returns its value.
func (t *Table[K, V]) Delete(key K) (V, bool) {
	h, i := t.find(key)
	if i < 0 {
		var zero V
		return zero, false
	}
	chain := t.slots[h]
	v := chain[i].value
	last := len(chain) - 1
	chain[i] = chain[last]
	chain[last] = slot[K, V]{}
	if last == 0 {
		delete(t.slots, h)
	} else {
		t.slots[h] = chain[:last]
	}
	t.n--
	return v, true
}

// Len returns the number of keys in the table.
func (t *Table[K, V]) Len() int {
	return t.n
}

// Clear removes every key.
func (t *Table[K, V]) Clear() {
	clear(t.slots)
	t.n = 0
}

// All iterates over every key/value pair. The order is not specified. The
// table must not be mutated during iteration.
func (t *Table[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, chain := range t.slots {
			for _, s := range chain {
				if !yield(s.key, s.value) {
					return
				}
			}
		}
	}
}
