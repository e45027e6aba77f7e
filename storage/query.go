package storage

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"multikey/storage/index"
)

// FullKeysByPartialKey returns every stored key that contains all of
// subKeys. positions runs parallel to subKeys: positions[i] >= 0 pins
// subKeys[i] to that position, a negative or missing entry leaves it free.
// Constraints are matched independently, so a repeated sub-key needs only
// one occurrence.
//
// The bool result is false when nothing matches, including for an empty
// subKeys. A nil subKeys fails with a *NullArgumentError.
func (m *Map[T, V]) FullKeysByPartialKey(subKeys []T, positions []int) ([][]T, bool, error) {
	ids, err := m.match(subKeys, positions)
	if err != nil || ids == nil {
		return nil, false, err
	}
	keys := make([][]T, 0, ids.GetCardinality())
	err = m.collect(ids, func(e *storedEntry[T, V]) {
		keys = append(keys, e.key)
	})
	if err != nil {
		return nil, false, err
	}
	return keys, true, nil
}

// ValuesByPartialKey is FullKeysByPartialKey returning the matched values.
func (m *Map[T, V]) ValuesByPartialKey(subKeys []T, positions []int) ([]V, bool, error) {
	ids, err := m.match(subKeys, positions)
	if err != nil || ids == nil {
		return nil, false, err
	}
	values := make([]V, 0, ids.GetCardinality())
	err = m.collect(ids, func(e *storedEntry[T, V]) {
		values = append(values, e.value)
	})
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// EntriesByPartialKey is FullKeysByPartialKey returning key/value pairs.
func (m *Map[T, V]) EntriesByPartialKey(subKeys []T, positions []int) ([]Entry[T, V], bool, error) {
	ids, err := m.match(subKeys, positions)
	if err != nil || ids == nil {
		return nil, false, err
	}
	entries := make([]Entry[T, V], 0, ids.GetCardinality())
	err = m.collect(ids, func(e *storedEntry[T, V]) {
		entries = append(entries, Entry[T, V]{Key: e.key, Value: e.value})
	})
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// Explain resolves the query like FullKeysByPartialKey and returns how the
// result was reached instead of the result.
func (m *Map[T, V]) Explain(subKeys []T, positions []int) (*Trace, error) {
	if subKeys == nil {
		return nil, &NullArgumentError{Name: "subKeys"}
	}
	start := time.Now()
	tr := &Trace{
		Variant:     m.cfg.Variant,
		Constraints: len(subKeys),
		Seed:        -1,
	}
	if ids := m.resolve(subKeys, positions, tr); ids != nil {
		tr.Matched = ids.GetCardinality()
	}
	tr.Total = time.Since(start)
	return tr, nil
}

func (m *Map[T, V]) match(subKeys []T, positions []int) (*roaring.Bitmap, error) {
	if subKeys == nil {
		return nil, &NullArgumentError{Name: "subKeys"}
	}
	ids := m.resolve(subKeys, positions, nil)
	m.metrics.observeQuery(ids != nil)
	return ids, nil
}

// collect maps result IDs to stored entries in ID order.
func (m *Map[T, V]) collect(ids *roaring.Bitmap, visit func(*storedEntry[T, V])) error {
	it := ids.Iterator()
	for it.HasNext() {
		id := it.Next()
		e, ok := m.store.entry(id)
		if !ok {
			m.metrics.observeViolation()
			m.log.Error("index consistency violation", "entry", id)
			return &IndexConsistencyError{EntryID: id, Reason: "indexed entry missing from primary store"}
		}
		visit(e)
	}
	return nil
}

// -------------------------------------------------------------------------
// Resolution
// -------------------------------------------------------------------------

// pinned returns the position constraint for subKeys[i].
func pinned(positions []int, i int) int {
	if i < len(positions) && positions[i] >= 0 {
		return positions[i]
	}
	return index.Unpinned
}

// resolve returns the IDs of entries satisfying every constraint, or nil if
// there are none. tr may be nil.
//
// The smallest candidate source seeds the result, and the remaining sources
// are intersected into it. Single-bucket sources are a plain AND. Spread
// sources either probe every working-set member against their buckets
// (filter) or are unioned first (union); see useFilter.
func (m *Map[T, V]) resolve(subKeys []T, positions []int, tr *Trace) *roaring.Bitmap {
	if len(subKeys) == 0 || m.index.Len() == 0 {
		return nil
	}

	sources := make([]index.Source, len(subKeys))
	seed := -1
	var seedSize uint64
	for i, sk := range subKeys {
		src, ok := m.index.Candidates(sk, pinned(positions, i))
		if !ok {
			tr.addStep(TraceStep{Constraint: i, Kind: StepMiss})
			return nil
		}
		sources[i] = src
		if size := src.Size(); seed < 0 || size < seedSize {
			seed, seedSize = i, size
		}
	}

	result := sources[seed].Materialize()
	tr.setSeed(seed, sources[seed], result.GetCardinality())

	for i, src := range sources {
		if i == seed {
			continue
		}
		kind := m.merge(result, src)
		m.metrics.observeStep(kind)
		remaining := result.GetCardinality()
		tr.addStep(TraceStep{
			Constraint: i,
			Kind:       kind,
			Buckets:    len(src.Buckets),
			Candidates: src.Size(),
			Remaining:  remaining,
		})
		if remaining == 0 {
			return nil
		}
	}

	if !m.index.Positional() && m.enforcePositions(result, subKeys, positions) {
		remaining := result.GetCardinality()
		m.metrics.observeStep(StepPositions)
		tr.addStep(TraceStep{Constraint: -1, Kind: StepPositions, Remaining: remaining})
		if remaining == 0 {
			return nil
		}
	}
	return result
}

// merge intersects result with src in place and returns the step taken.
func (m *Map[T, V]) merge(result *roaring.Bitmap, src index.Source) StepKind {
	if !src.Spread {
		result.And(src.Buckets[0])
		return StepIntersect
	}
	if m.useFilter(result.GetCardinality(), src) {
		var drop []uint32
		it := result.Iterator()
		for it.HasNext() {
			if id := it.Next(); !src.Contains(id) {
				drop = append(drop, id)
			}
		}
		if len(drop) > 0 {
			result.AndNot(roaring.BitmapOf(drop...))
		}
		return StepFilter
	}
	result.And(src.Materialize())
	return StepUnion
}

// useFilter decides between probing the working set against src's buckets
// and building the union of src's buckets. Probing costs one lookup per
// working-set member per bucket; the union costs a set insertion per bucket
// member, weighted by the cost ratio.
func (m *Map[T, V]) useFilter(working uint64, src index.Source) bool {
	switch m.cfg.Merge {
	case MergeFilter:
		return true
	case MergeUnion:
		return false
	}
	unionCost := m.costRatio * float64(src.Size())
	probeCost := (float64(working) - 1) * float64(len(src.Buckets))
	return unionCost > probeCost
}

// enforcePositions drops result members whose key does not carry a pinned
// sub-key at its pinned position. The non-positional index cannot answer
// pinned constraints itself. It reports whether any constraint was pinned.
func (m *Map[T, V]) enforcePositions(result *roaring.Bitmap, subKeys []T, positions []int) bool {
	hasPin := false
	for i := range subKeys {
		if pinned(positions, i) >= 0 {
			hasPin = true
			break
		}
	}
	if !hasPin {
		return false
	}

	var drop []uint32
	it := result.Iterator()
	for it.HasNext() {
		id := it.Next()
		e, ok := m.store.entry(id)
		if !ok {
			// Left in place for collect to report.
			continue
		}
		for i, sk := range subKeys {
			pos := pinned(positions, i)
			if pos < 0 {
				continue
			}
			if pos >= len(e.key) || !m.subKeys.Equal(e.key[pos], sk) {
				drop = append(drop, id)
				break
			}
		}
	}
	if len(drop) > 0 {
		result.AndNot(roaring.BitmapOf(drop...))
	}
	return true
}
