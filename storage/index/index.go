// Package index implements the inverted sub-key indexes behind a storage.Map:
// a plain sub-key index answering "which keys contain X anywhere", and a
// positional index that also answers "which keys contain X at position p".
//
// Buckets hold entry IDs assigned by the primary store rather than the keys
// themselves, so bucket membership never calls the composite-key comparer.
package index

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// Unpinned is the position value meaning "anywhere in the key".
const Unpinned = -1

// Index is the contract the query engine needs from either index variant.
// Insert and Delete walk every sub-key of key; they cannot fail.
type Index[T any] interface {
	// Insert records entry id under every (sub-key, position) of key.
	Insert(key []T, id uint32)
	// Delete removes entry id from every bucket key contributed to,
	// pruning buckets (and masks) that become empty.
	Delete(key []T, id uint32)
	// Candidates resolves one query constraint. pos < 0 means unpinned. It
	// returns false if no stored key can satisfy the constraint.
	Candidates(subKey T, pos int) (Source, bool)
	// Positional reports whether pinned positions are enforced by the
	// index itself.
	Positional() bool
	// Len returns the number of non-empty buckets.
	Len() int
	// Clear drops every bucket and mask.
	Clear()
	// Buckets iterates every bucket. Position is Unpinned for the plain
	// sub-key index.
	Buckets() iter.Seq2[Posting[T], *roaring.Bitmap]
	// Verify checks the structural invariants: no empty bucket, no empty
	// mask, and (positional) mask bits matching the existing buckets.
	Verify() error
	Stats() Stats
}

// Posting names a bucket: a sub-key and the position it occurs at.
type Posting[T any] struct {
	SubKey   T
	Position int
}

// Stats summarizes index size.
type Stats struct {
	SubKeys  int    // distinct sub-keys
	Buckets  int    // non-empty buckets
	Masks    int    // position masks (positional index only)
	Postings uint64 // total bucket memberships
}

// Source is the candidate set a single query constraint resolves to. It is
// either one bucket, or, for an unpinned sub-key in a positional index, the
// per-position buckets of that sub-key, not yet unioned (Spread).
type Source struct {
	Buckets []*roaring.Bitmap
	Spread  bool
}

// Size returns the summed cardinality of the source's buckets. For a spread
// source this over-counts keys holding the sub-key at several positions.
func (s Source) Size() uint64 {
	var n uint64
	for _, b := range s.Buckets {
		n += b.GetCardinality()
	}
	return n
}

// Contains reports whether id is in any of the source's buckets.
func (s Source) Contains(id uint32) bool {
	for _, b := range s.Buckets {
		if b.Contains(id) {
			return true
		}
	}
	return false
}

// Materialize returns a new bitmap holding every id in the source. The
// source's buckets are never modified.
func (s Source) Materialize() *roaring.Bitmap {
	switch len(s.Buckets) {
	case 0:
		return roaring.New()
	case 1:
		return s.Buckets[0].Clone()
	default:
		return roaring.FastOr(s.Buckets...)
	}
}
