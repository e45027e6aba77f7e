package index

import (
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"multikey/equal"
)

// PositionalIndex maps a (sub-key, position) pair to the set of entries
// whose key holds that sub-key at that position. A side table keeps, per
// sub-key, a PositionMask of the positions that currently have a bucket, so
// an unpinned lookup visits exactly the buckets that exist.
type PositionalIndex[T any] struct {
	buckets *equal.Table[Posting[T], *roaring.Bitmap]
	masks   *equal.Table[T, *PositionMask]
}

var _ Index[int] = (*PositionalIndex[int])(nil)

type postingComparer[T any] struct {
	sub equal.Comparer[T]
}

func (c postingComparer[T]) Equal(a, b Posting[T]) bool {
	return a.Position == b.Position && c.sub.Equal(a.SubKey, b.SubKey)
}

func (c postingComparer[T]) Hash(p Posting[T]) uint64 {
	return c.sub.Hash(p.SubKey) ^ (uint64(p.Position)+1)*0x9e3779b97f4a7c15
}

// NewPositionalIndex creates an empty index comparing sub-keys with cmp.
func NewPositionalIndex[T any](cmp equal.Comparer[T]) *PositionalIndex[T] {
	return &PositionalIndex[T]{
		buckets: equal.NewTable[Posting[T], *roaring.Bitmap](postingComparer[T]{sub: cmp}),
		masks:   equal.NewTable[T, *PositionMask](cmp),
	}
}

// Add inserts id into the (subKey, pos) bucket and marks pos in subKey's
// mask.
func (x *PositionalIndex[T]) Add(subKey T, pos int, id uint32) {
	x.buckets.Ensure(Posting[T]{SubKey: subKey, Position: pos}, roaring.New).Add(id)
	x.masks.Ensure(subKey, newPositionMask).Set(pos)
}

// Remove deletes id from the (subKey, pos) bucket. When the bucket empties
// it is dropped and pos is cleared from the mask; an all-clear mask is
// dropped too. It reports whether the bucket was dropped.
func (x *PositionalIndex[T]) Remove(subKey T, pos int, id uint32) bool {
	p := Posting[T]{SubKey: subKey, Position: pos}
	bucket, ok := x.buckets.Get(p)
	if !ok {
		return false
	}
	bucket.Remove(id)
	if !bucket.IsEmpty() {
		return false
	}
	x.buckets.Delete(p)
	if mask, ok := x.masks.Get(subKey); ok {
		mask.Clear(pos)
		if mask.Count() == 0 {
			x.masks.Delete(subKey)
		}
	}
	return true
}

// Lookup returns the (subKey, pos) bucket, or nil.
func (x *PositionalIndex[T]) Lookup(subKey T, pos int) *roaring.Bitmap {
	bucket, _ := x.buckets.Get(Posting[T]{SubKey: subKey, Position: pos})
	return bucket
}

// OccupiedPositions returns the mask of positions subKey occurs at, or nil.
// The mask is owned by the index.
func (x *PositionalIndex[T]) OccupiedPositions(subKey T) *PositionMask {
	mask, _ := x.masks.Get(subKey)
	return mask
}

func (x *PositionalIndex[T]) Insert(key []T, id uint32) {
	for pos, sk := range key {
		x.Add(sk, pos, id)
	}
}

func (x *PositionalIndex[T]) Delete(key []T, id uint32) {
	for pos, sk := range key {
		x.Remove(sk, pos, id)
	}
}

// Candidates returns the single (subKey, pos) bucket when pos is pinned.
// Otherwise it returns the buckets of every position in subKey's mask; more
// than one makes the source spread.
func (x *PositionalIndex[T]) Candidates(subKey T, pos int) (Source, bool) {
	if pos >= 0 {
		bucket := x.Lookup(subKey, pos)
		if bucket == nil {
			return Source{}, false
		}
		return Source{Buckets: []*roaring.Bitmap{bucket}}, true
	}
	mask := x.OccupiedPositions(subKey)
	if mask == nil {
		return Source{}, false
	}
	buckets := make([]*roaring.Bitmap, 0, mask.Count())
	for p := range mask.Positions() {
		if bucket := x.Lookup(subKey, p); bucket != nil {
			buckets = append(buckets, bucket)
		}
	}
	if len(buckets) == 0 {
		return Source{}, false
	}
	return Source{Buckets: buckets, Spread: len(buckets) > 1}, true
}

func (x *PositionalIndex[T]) Positional() bool { return true }

func (x *PositionalIndex[T]) Len() int { return x.buckets.Len() }

func (x *PositionalIndex[T]) Clear() {
	x.buckets.Clear()
	x.masks.Clear()
}

func (x *PositionalIndex[T]) Buckets() iter.Seq2[Posting[T], *roaring.Bitmap] {
	return x.buckets.All()
}

func (x *PositionalIndex[T]) Verify() error {
	for p, bucket := range x.buckets.All() {
		if bucket.IsEmpty() {
			return fmt.Errorf("empty bucket for sub-key %v at position %d", p.SubKey, p.Position)
		}
		if !x.OccupiedPositions(p.SubKey).Test(p.Position) {
			return fmt.Errorf("mask of sub-key %v lacks position %d", p.SubKey, p.Position)
		}
	}
	for sk, mask := range x.masks.All() {
		if mask.Count() == 0 {
			return fmt.Errorf("empty position mask for sub-key %v", sk)
		}
		for p := range mask.Positions() {
			if x.Lookup(sk, p) == nil {
				return fmt.Errorf("mask of sub-key %v marks position %d with no bucket", sk, p)
			}
		}
	}
	return nil
}

func (x *PositionalIndex[T]) Stats() Stats {
	st := Stats{SubKeys: x.masks.Len(), Buckets: x.buckets.Len(), Masks: x.masks.Len()}
	for _, bucket := range x.buckets.All() {
		st.Postings += bucket.GetCardinality()
	}
	return st
}
