package index

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// PositionMask records every position at which a sub-key currently occurs
// in any stored key. Positions are non-negative.
type PositionMask struct {
	bits *roaring.Bitmap
}

func newPositionMask() *PositionMask {
	return &PositionMask{bits: roaring.New()}
}

// Set marks pos as occupied.
func (m *PositionMask) Set(pos int) {
	m.bits.Add(uint32(pos))
}

// Clear unmarks pos.
func (m *PositionMask) Clear(pos int) {
	m.bits.Remove(uint32(pos))
}

// Test reports whether pos is occupied. A nil mask has no positions.
func (m *PositionMask) Test(pos int) bool {
	if m == nil || pos < 0 {
		return false
	}
	return m.bits.Contains(uint32(pos))
}

// Count returns the number of occupied positions.
func (m *PositionMask) Count() int {
	if m == nil {
		return 0
	}
	return int(m.bits.GetCardinality())
}

// Positions iterates the occupied positions in ascending order.
func (m *PositionMask) Positions() iter.Seq[int] {
	return func(yield func(int) bool) {
		if m == nil {
			return
		}
		it := m.bits.Iterator()
		for it.HasNext() {
			if !yield(int(it.Next())) {
				return
			}
		}
	}
}

// GetSizeInBytes reports the mask's serialized size, for memory accounting.
func (m *PositionMask) GetSizeInBytes() uint64 {
	return m.bits.GetSizeInBytes()
}
