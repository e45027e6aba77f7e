package index

import (
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"multikey/equal"
)

// SubKeyIndex maps a sub-key to the set of entries whose key contains it
// at any position.
type SubKeyIndex[T any] struct {
	buckets *equal.Table[T, *roaring.Bitmap]
}

var _ Index[int] = (*SubKeyIndex[int])(nil)

// NewSubKeyIndex creates an empty index comparing sub-keys with cmp.
func NewSubKeyIndex[T any](cmp equal.Comparer[T]) *SubKeyIndex[T] {
	return &SubKeyIndex[T]{buckets: equal.NewTable[T, *roaring.Bitmap](cmp)}
}

// Add inserts id into subKey's bucket, creating the bucket if needed.
func (x *SubKeyIndex[T]) Add(subKey T, id uint32) {
	x.buckets.Ensure(subKey, roaring.New).Add(id)
}

// Remove deletes id from subKey's bucket. It reports whether the bucket
// became empty and was dropped.
func (x *SubKeyIndex[T]) Remove(subKey T, id uint32) bool {
	bucket, ok := x.buckets.Get(subKey)
	if !ok {
		return false
	}
	bucket.Remove(id)
	if !bucket.IsEmpty() {
		return false
	}
	x.buckets.Delete(subKey)
	return true
}

// Lookup returns subKey's bucket, or nil. The bucket is owned by the index.
func (x *SubKeyIndex[T]) Lookup(subKey T) *roaring.Bitmap {
	bucket, _ := x.buckets.Get(subKey)
	return bucket
}

func (x *SubKeyIndex[T]) Insert(key []T, id uint32) {
	for _, sk := range key {
		x.Add(sk, id)
	}
}

func (x *SubKeyIndex[T]) Delete(key []T, id uint32) {
	for _, sk := range key {
		x.Remove(sk, id)
	}
}

// Candidates ignores pos: this index does not know positions, and the
// caller must check pinned positions against the stored keys.
func (x *SubKeyIndex[T]) Candidates(subKey T, pos int) (Source, bool) {
	bucket := x.Lookup(subKey)
	if bucket == nil {
		return Source{}, false
	}
	return Source{Buckets: []*roaring.Bitmap{bucket}}, true
}

func (x *SubKeyIndex[T]) Positional() bool { return false }

func (x *SubKeyIndex[T]) Len() int { return x.buckets.Len() }

func (x *SubKeyIndex[T]) Clear() { x.buckets.Clear() }

func (x *SubKeyIndex[T]) Buckets() iter.Seq2[Posting[T], *roaring.Bitmap] {
	return func(yield func(Posting[T], *roaring.Bitmap) bool) {
		for sk, bucket := range x.buckets.All() {
			if !yield(Posting[T]{SubKey: sk, Position: Unpinned}, bucket) {
				return
			}
		}
	}
}

func (x *SubKeyIndex[T]) Verify() error {
	for sk, bucket := range x.buckets.All() {
		if bucket.IsEmpty() {
			return fmt.Errorf("empty bucket for sub-key %v", sk)
		}
	}
	return nil
}

func (x *SubKeyIndex[T]) Stats() Stats {
	st := Stats{SubKeys: x.buckets.Len(), Buckets: x.buckets.Len()}
	for _, bucket := range x.buckets.All() {
		st.Postings += bucket.GetCardinality()
	}
	return st
}
