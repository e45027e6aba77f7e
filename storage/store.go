package storage

import (
	"iter"

	"multikey/equal"
)

// primaryStore holds the canonical key/value pairs. Every entry has a dense
// ID; the indexes refer to entries by ID only. IDs of removed entries are
// reused so bucket bitmaps stay compact.
type primaryStore[T, V any] struct {
	ids     *equal.Table[[]T, uint32] // key → entry ID
	entries []storedEntry[T, V]       // entry ID → entry
	free    []uint32
	live    int
}

type storedEntry[T, V any] struct {
	key   []T
	value V
	live  bool
}

func newPrimaryStore[T, V any](cmp equal.Comparer[[]T]) *primaryStore[T, V] {
	return &primaryStore[T, V]{ids: equal.NewTable[[]T, uint32](cmp)}
}

// nextID returns the ID the next insert will use without reserving it.
func (s *primaryStore[T, V]) nextID() uint32 {
	if n := len(s.free); n > 0 {
		return s.free[n-1]
	}
	return uint32(len(s.entries))
}

// claim stores an entry under the ID returned by nextID.
func (s *primaryStore[T, V]) claim(id uint32, key []T, value V) {
	e := storedEntry[T, V]{key: key, value: value, live: true}
	if n := len(s.free); n > 0 {
		s.free = s.free[:n-1]
		s.entries[id] = e
	} else {
		s.entries = append(s.entries, e)
	}
	s.live++
}

func (s *primaryStore[T, V]) lookup(key []T) (uint32, bool) {
	return s.ids.Get(key)
}

func (s *primaryStore[T, V]) get(key []T) (V, bool) {
	id, ok := s.ids.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return s.entries[id].value, true
}

// put inserts a new entry. It fails with a DuplicateKeyError, changing
// nothing, if an equal key is stored.
func (s *primaryStore[T, V]) put(key []T, value V) (uint32, error) {
	id := s.nextID()
	if !s.ids.Insert(key, id) {
		return 0, &DuplicateKeyError{Key: key}
	}
	s.claim(id, key, value)
	return id, nil
}

// set inserts or replaces. inserted reports whether the entry count grew;
// only then does the key need indexing.
func (s *primaryStore[T, V]) set(key []T, value V) (id uint32, inserted bool) {
	id = s.nextID()
	if s.ids.Insert(key, id) {
		s.claim(id, key, value)
		return id, true
	}
	id, _ = s.ids.Get(key)
	s.entries[id].value = value
	return id, false
}

// remove deletes the entry equal to key and returns the stored key
// instance, which is what the indexes were built from.
func (s *primaryStore[T, V]) remove(key []T) (stored []T, id uint32, ok bool) {
	id, ok = s.ids.Delete(key)
	if !ok {
		return nil, 0, false
	}
	stored = s.entries[id].key
	s.entries[id] = storedEntry[T, V]{}
	s.free = append(s.free, id)
	s.live--
	return stored, id, true
}

// entry resolves an ID to its live entry.
func (s *primaryStore[T, V]) entry(id uint32) (*storedEntry[T, V], bool) {
	if int(id) >= len(s.entries) || !s.entries[id].live {
		return nil, false
	}
	return &s.entries[id], true
}

func (s *primaryStore[T, V]) len() int {
	return s.live
}

func (s *primaryStore[T, V]) clear() {
	s.ids.Clear()
	clear(s.entries)
	s.entries = s.entries[:0]
	s.free = s.free[:0]
	s.live = 0
}

// all iterates live entries in ID order.
func (s *primaryStore[T, V]) all() iter.Seq2[uint32, *storedEntry[T, V]] {
	return func(yield func(uint32, *storedEntry[T, V]) bool) {
		for i := range s.entries {
			if !s.entries[i].live {
				continue
			}
			if !yield(uint32(i), &s.entries[i]) {
				return
			}
		}
	}
}
