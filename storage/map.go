// Package storage implements a composite-key map that can be queried by any
// subset of key elements, optionally pinned to positions.
//
// A Map is a primary store of key/value entries plus one inverted index over
// the keys' elements (sub-keys). Every mutation updates both in the same
// call, so a query always reflects the latest mutation.
//
// A Map is not safe for concurrent use. Wrap it in a Synchronized for
// concurrent readers.
package storage

import (
	"fmt"
	"iter"
	"log/slog"

	"multikey/equal"
	"multikey/storage/index"
)

// Map stores values under composite keys ([]T) and answers partial-key
// queries through its sub-key index.
type Map[T, V any] struct {
	cfg       Config
	costRatio float64
	subKeys   equal.Comparer[T]
	store     *primaryStore[T, V]
	index     index.Index[T]
	log       *slog.Logger
	metrics   *Metrics
}

// New creates an empty Map whose sub-keys compare with == and whose keys
// compare element-wise.
func New[T comparable, V any](cfg Config) *Map[T, V] {
	m, err := NewWithComparers[T, V](cfg, equal.Default[T](), nil)
	if err != nil {
		// Only an unknown variant fails here.
		panic(err)
	}
	return m
}

// NewWithComparers creates an empty Map with explicit equality strategies.
// subKeys is required. fullKeys may be nil, in which case keys are compared
// element-wise with subKeys.
func NewWithComparers[T, V any](cfg Config, subKeys equal.Comparer[T], fullKeys equal.Comparer[[]T]) (*Map[T, V], error) {
	if subKeys == nil {
		return nil, &NullArgumentError{Name: "subKeys"}
	}
	if fullKeys == nil {
		fullKeys = equal.Sequence(subKeys)
	}

	var idx index.Index[T]
	switch cfg.Variant {
	case Positional:
		idx = index.NewPositionalIndex(subKeys)
	case NonPositional:
		idx = index.NewSubKeyIndex(subKeys)
	default:
		return nil, fmt.Errorf("unknown index variant %d", cfg.Variant)
	}

	ratio := cfg.CostRatio
	if ratio <= 0 {
		ratio = DefaultCostRatio
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Map[T, V]{
		cfg:       cfg,
		costRatio: ratio,
		subKeys:   subKeys,
		store:     newPrimaryStore[T, V](fullKeys),
		index:     idx,
		log:       log.With("variant", cfg.Variant.String()),
		metrics:   cfg.Metrics,
	}, nil
}

// Variant returns the index variant the map was created with.
func (m *Map[T, V]) Variant() Variant {
	return m.cfg.Variant
}

// -------------------------------------------------------------------------
// Mutation
// -------------------------------------------------------------------------

// Put inserts key→value. It fails with a *DuplicateKeyError if an equal key
// is already stored, and with a *NullArgumentError if key is nil.
//
// The map keeps key as given; the caller must not modify it afterwards.
func (m *Map[T, V]) Put(key []T, value V) error {
	if key == nil {
		return &NullArgumentError{Name: "key"}
	}
	id, err := m.store.put(key, value)
	if err != nil {
		return err
	}
	m.index.Insert(key, id)
	return nil
}

// Set inserts key→value or replaces the value of an equal stored key. The
// stored key instance is kept on replace, so the index is only touched when
// a new entry is created.
func (m *Map[T, V]) Set(key []T, value V) error {
	if key == nil {
		return &NullArgumentError{Name: "key"}
	}
	id, inserted := m.store.set(key, value)
	if inserted {
		m.index.Insert(key, id)
	}
	return nil
}

// Remove deletes the entry for key and reports whether one existed.
// Removing an absent key changes nothing.
func (m *Map[T, V]) Remove(key []T) bool {
	if key == nil {
		return false
	}
	stored, id, ok := m.store.remove(key)
	if !ok {
		return false
	}
	m.index.Delete(stored, id)
	return true
}

// Clear removes every entry and all index state.
func (m *Map[T, V]) Clear() {
	m.store.clear()
	m.index.Clear()
}

// -------------------------------------------------------------------------
// Lookup
// -------------------------------------------------------------------------

// Get returns the value stored under key.
func (m *Map[T, V]) Get(key []T) (V, bool) {
	if key == nil {
		var zero V
		return zero, false
	}
	return m.store.get(key)
}

func (m *Map[T, V]) ContainsKey(key []T) bool {
	if key == nil {
		return false
	}
	_, ok := m.store.lookup(key)
	return ok
}

// Len returns the number of entries.
func (m *Map[T, V]) Len() int {
	return m.store.len()
}

// All iterates over every entry. The map must not be mutated during
// iteration.
func (m *Map[T, V]) All() iter.Seq2[[]T, V] {
	return func(yield func([]T, V) bool) {
		for _, e := range m.store.all() {
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}

// Stats returns the index size summary.
func (m *Map[T, V]) Stats() index.Stats {
	return m.index.Stats()
}

// -------------------------------------------------------------------------
// Rehydration
// -------------------------------------------------------------------------

// RebuildIndices discards all index state and re-derives it from the
// primary store. Afterwards the index holds exactly what incremental
// maintenance would have produced for the current entries.
func (m *Map[T, V]) RebuildIndices() {
	m.index.Clear()
	for id, e := range m.store.all() {
		m.index.Insert(e.key, id)
	}
	m.metrics.observeRebuild()
	m.log.Debug("rebuilt indices", "entries", m.store.len(), "buckets", m.index.Len())
}

// Restore replaces the map's contents with the entries of seq and rebuilds
// the index. On error (a nil key or a duplicate) the map is left empty.
func (m *Map[T, V]) Restore(seq iter.Seq2[[]T, V]) error {
	m.Clear()
	for key, value := range seq {
		if key == nil {
			m.Clear()
			return &NullArgumentError{Name: "key"}
		}
		if _, err := m.store.put(key, value); err != nil {
			m.Clear()
			return err
		}
	}
	m.RebuildIndices()
	m.log.Info("restored entries", "entries", m.store.len())
	return nil
}

// CheckInvariants walks the store and the index and returns the first
// violation found: a stored key missing from a bucket it belongs in, a
// bucket member that is not a live entry or does not carry the bucket's
// sub-key at the bucket's position, or a structural index fault.
func (m *Map[T, V]) CheckInvariants() error {
	if err := m.index.Verify(); err != nil {
		return err
	}

	for id, e := range m.store.all() {
		for pos, sk := range e.key {
			p := index.Unpinned
			if m.index.Positional() {
				p = pos
			}
			src, ok := m.index.Candidates(sk, p)
			if !ok || !src.Contains(id) {
				return &IndexConsistencyError{
					EntryID: id,
					Reason:  fmt.Sprintf("sub-key at position %d is not indexed", pos),
				}
			}
		}
	}

	for posting, bucket := range m.index.Buckets() {
		it := bucket.Iterator()
		for it.HasNext() {
			id := it.Next()
			e, ok := m.store.entry(id)
			if !ok {
				return &IndexConsistencyError{EntryID: id, Reason: "indexed entry missing from primary store"}
			}
			if !m.holds(e.key, posting) {
				return &IndexConsistencyError{
					EntryID: id,
					Reason:  fmt.Sprintf("key does not contain the bucket's sub-key at position %d", posting.Position),
				}
			}
		}
	}
	return nil
}

// holds reports whether key carries p.SubKey at p.Position, or anywhere if
// the posting is unpinned.
func (m *Map[T, V]) holds(key []T, p index.Posting[T]) bool {
	if p.Position >= 0 {
		return p.Position < len(key) && m.subKeys.Equal(key[p.Position], p.SubKey)
	}
	for _, sk := range key {
		if m.subKeys.Equal(sk, p.SubKey) {
			return true
		}
	}
	return false
}
