package index

import (
	"slices"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"

	"multikey/equal"
)

func ids(b *roaring.Bitmap) []uint32 {
	if b == nil {
		return nil
	}
	return b.ToArray()
}

// -------------------------------------------------------------------------
// SubKeyIndex
// -------------------------------------------------------------------------

func TestSubKeyIndex_AddLookup(t *testing.T) {
	x := NewSubKeyIndex(equal.Default[int]())
	x.Add(3, 1)
	x.Add(3, 2)
	x.Add(4, 2)

	if got := ids(x.Lookup(3)); !slices.Equal(got, []uint32{1, 2}) {
		t.Errorf("lookup 3 = %v, want [1 2]", got)
	}
	if got := ids(x.Lookup(4)); !slices.Equal(got, []uint32{2}) {
		t.Errorf("lookup 4 = %v, want [2]", got)
	}
	if x.Lookup(99) != nil {
		t.Error("lookup of unknown sub-key should be nil")
	}
	if x.Len() != 2 {
		t.Errorf("len = %d, want 2", x.Len())
	}
}

func TestSubKeyIndex_RemovePrunesBucket(t *testing.T) {
	x := NewSubKeyIndex(equal.Default[int]())
	x.Add(3, 1)
	x.Add(3, 2)

	if x.Remove(3, 1) {
		t.Error("bucket still holds 2, should not be dropped")
	}
	if !x.Remove(3, 2) {
		t.Error("removing the last id should drop the bucket")
	}
	if x.Lookup(3) != nil {
		t.Error("bucket should be gone")
	}
	if x.Remove(3, 2) {
		t.Error("removing from a missing bucket should return false")
	}
	if x.Len() != 0 {
		t.Errorf("len = %d, want 0", x.Len())
	}
}

func TestSubKeyIndex_InsertDeleteKey(t *testing.T) {
	x := NewSubKeyIndex(equal.Default[int]())
	x.Insert([]int{1, 2, 2, 3}, 7)
	for _, sk := range []int{1, 2, 3} {
		if !x.Lookup(sk).Contains(7) {
			t.Errorf("bucket %d should contain 7", sk)
		}
	}
	x.Delete([]int{1, 2, 2, 3}, 7)
	if x.Len() != 0 {
		t.Errorf("len after delete = %d, want 0", x.Len())
	}
	if err := x.Verify(); err != nil {
		t.Fatal(err)
	}
}

func TestSubKeyIndex_CandidatesIgnorePosition(t *testing.T) {
	x := NewSubKeyIndex(equal.Default[int]())
	x.Insert([]int{5, 6}, 1)
	src, ok := x.Candidates(6, 0)
	if !ok {
		t.Fatal("6 exists, candidates should resolve")
	}
	if src.Spread || len(src.Buckets) != 1 || src.Size() != 1 {
		t.Errorf("source = %+v, want one bucket of size 1", src)
	}
	if _, ok := x.Candidates(9, Unpinned); ok {
		t.Error("unknown sub-key should not resolve")
	}
}

// -------------------------------------------------------------------------
// PositionalIndex
// -------------------------------------------------------------------------

func TestPositionalIndex_AddSetsMask(t *testing.T) {
	x := NewPositionalIndex(equal.Strings())
	x.Add("a", 0, 1)
	x.Add("a", 2, 2)

	mask := x.OccupiedPositions("a")
	if mask.Count() != 2 || !mask.Test(0) || !mask.Test(2) || mask.Test(1) {
		t.Errorf("mask positions = %v, want [0 2]", slices.Collect(mask.Positions()))
	}
	if got := ids(x.Lookup("a", 2)); !slices.Equal(got, []uint32{2}) {
		t.Errorf("lookup (a,2) = %v, want [2]", got)
	}
	if x.Lookup("a", 1) != nil {
		t.Error("lookup (a,1) should be nil")
	}
}

func TestPositionalIndex_RemoveClearsMask(t *testing.T) {
	x := NewPositionalIndex(equal.Strings())
	x.Add("a", 0, 1)
	x.Add("a", 1, 1)
	x.Add("a", 1, 2)

	if !x.Remove("a", 0, 1) {
		t.Error("(a,0) held only 1 and should be dropped")
	}
	if x.OccupiedPositions("a").Test(0) {
		t.Error("position 0 should be cleared")
	}
	if x.Remove("a", 1, 1) {
		t.Error("(a,1) still holds 2")
	}
	if !x.Remove("a", 1, 2) {
		t.Error("(a,1) should be dropped")
	}
	if x.OccupiedPositions("a") != nil {
		t.Error("all-clear mask should be removed")
	}
	if x.Len() != 0 {
		t.Errorf("len = %d, want 0", x.Len())
	}
	if err := x.Verify(); err != nil {
		t.Fatal(err)
	}
}

func TestPositionalIndex_CandidatesPinned(t *testing.T) {
	x := NewPositionalIndex(equal.Default[int]())
	x.Insert([]int{1, 2, 3, 4}, 1)
	x.Insert([]int{2, 1}, 2)

	src, ok := x.Candidates(2, 1)
	if !ok {
		t.Fatal("(2,1) should resolve")
	}
	if got := ids(src.Materialize()); !slices.Equal(got, []uint32{1}) {
		t.Errorf("(2,1) = %v, want [1]", got)
	}
	if _, ok := x.Candidates(4, 0); ok {
		t.Error("(4,0) never occurred and should not resolve")
	}
}

func TestPositionalIndex_CandidatesUnpinnedSpread(t *testing.T) {
	x := NewPositionalIndex(equal.Default[int]())
	x.Insert([]int{1, 2}, 1)
	x.Insert([]int{2, 1}, 2)
	x.Insert([]int{3, 3, 2}, 3)

	src, ok := x.Candidates(2, Unpinned)
	if !ok {
		t.Fatal("2 should resolve")
	}
	if !src.Spread || len(src.Buckets) != 3 {
		t.Fatalf("source has %d buckets (spread=%v), want 3 spread", len(src.Buckets), src.Spread)
	}
	if src.Size() != 3 {
		t.Errorf("size = %d, want 3", src.Size())
	}
	if got := ids(src.Materialize()); !slices.Equal(got, []uint32{1, 2, 3}) {
		t.Errorf("union = %v, want [1 2 3]", got)
	}
	if !src.Contains(3) || src.Contains(4) {
		t.Error("contains should test every bucket")
	}

	x.Insert([]int{7, 8}, 4)
	single, _ := x.Candidates(8, Unpinned)
	if single.Spread || len(single.Buckets) != 1 {
		t.Error("a sub-key at one position should give a single bucket")
	}
}

func TestPositionalIndex_MaterializeDoesNotAlias(t *testing.T) {
	x := NewPositionalIndex(equal.Default[int]())
	x.Insert([]int{1}, 1)
	src, _ := x.Candidates(1, 0)
	m := src.Materialize()
	m.Add(99)
	if x.Lookup(1, 0).Contains(99) {
		t.Error("materialized set must not alias the bucket")
	}
}

func TestPositionalIndex_Stats(t *testing.T) {
	x := NewPositionalIndex(equal.Default[int]())
	x.Insert([]int{1, 2}, 1)
	x.Insert([]int{2, 1}, 2)
	st := x.Stats()
	want := Stats{SubKeys: 2, Buckets: 4, Masks: 2, Postings: 4}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}
}

func TestPositionMask_Nil(t *testing.T) {
	var m *PositionMask
	if m.Test(0) || m.Count() != 0 {
		t.Error("nil mask should be empty")
	}
	for range m.Positions() {
		t.Error("nil mask should yield no positions")
	}
}
