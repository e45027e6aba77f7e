package storage

import (
	"iter"

	"github.com/puzpuzpuz/xsync/v3"
)

// Synchronized guards a Map with a reader-biased lock: queries and lookups
// run concurrently, mutations are exclusive.
type Synchronized[T, V any] struct {
	mu *xsync.RBMutex
	m  *Map[T, V]
}

// NewSynchronized wraps m. While the wrapper is in use, m must not be
// accessed directly.
func NewSynchronized[T, V any](m *Map[T, V]) *Synchronized[T, V] {
	return &Synchronized[T, V]{mu: xsync.NewRBMutex(), m: m}
}

// View runs fn with shared access to the map. fn must not mutate it.
func (s *Synchronized[T, V]) View(fn func(m *Map[T, V])) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	fn(s.m)
}

// Update runs fn with exclusive access to the map.
func (s *Synchronized[T, V]) Update(fn func(m *Map[T, V]) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.m)
}

func (s *Synchronized[T, V]) Put(key []T, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Put(key, value)
}

func (s *Synchronized[T, V]) Set(key []T, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Set(key, value)
}

func (s *Synchronized[T, V]) Remove(key []T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Remove(key)
}

func (s *Synchronized[T, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Clear()
}

func (s *Synchronized[T, V]) RebuildIndices() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.RebuildIndices()
}

func (s *Synchronized[T, V]) Get(key []T) (V, bool) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.m.Get(key)
}

func (s *Synchronized[T, V]) ContainsKey(key []T) bool {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.m.ContainsKey(key)
}

func (s *Synchronized[T, V]) Len() int {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.m.Len()
}

func (s *Synchronized[T, V]) FullKeysByPartialKey(subKeys []T, positions []int) ([][]T, bool, error) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.m.FullKeysByPartialKey(subKeys, positions)
}

func (s *Synchronized[T, V]) ValuesByPartialKey(subKeys []T, positions []int) ([]V, bool, error) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.m.ValuesByPartialKey(subKeys, positions)
}

func (s *Synchronized[T, V]) EntriesByPartialKey(subKeys []T, positions []int) ([]Entry[T, V], bool, error) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.m.EntriesByPartialKey(subKeys, positions)
}

// Snapshot returns a copy of every entry taken under the read lock.
func (s *Synchronized[T, V]) Snapshot() iter.Seq2[[]T, V] {
	t := s.mu.RLock()
	entries := make([]Entry[T, V], 0, s.m.Len())
	for k, v := range s.m.All() {
		entries = append(entries, Entry[T, V]{Key: k, Value: v})
	}
	s.mu.RUnlock(t)
	return func(yield func([]T, V) bool) {
		for _, e := range entries {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}
