package equal

import "unsafe"

// mix folds x into the running hash h.
func mix(h, x uint64) uint64 {
	return h ^ (x + 0x9e3779b97f4a7c15 + (h << 6) + (h >> 2))
}

type sequenceComparer[T any] struct {
	elem Comparer[T]
}

func (c sequenceComparer[T]) Equal(a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !c.elem.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (c sequenceComparer[T]) Hash(v []T) uint64 {
	h := uint64(len(v))
	for _, e := range v {
		h = mix(h, c.elem.Hash(e))
	}
	return h
}

// Sequence returns the structural composite-key Comparer: two keys are equal
// when they have the same length and are element-wise equal under elem.
// Order matters.
func Sequence[T any](elem Comparer[T]) Comparer[[]T] {
	return sequenceComparer[T]{elem: elem}
}

type identityComparer[T any] struct{}

func (identityComparer[T]) Equal(a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || unsafe.SliceData(a) == unsafe.SliceData(b)
}

func (identityComparer[T]) Hash(v []T) uint64 {
	if len(v) == 0 {
		return 0
	}
	return mix(uint64(uintptr(unsafe.Pointer(unsafe.SliceData(v)))), uint64(len(v)))
}

// Identity returns a composite-key Comparer that compares key slices by
// reference: same backing array and same length. Use it when every key is a
// distinct slice that callers keep and pass back. Empty keys all compare
// equal.
func Identity[T any]() Comparer[[]T] {
	return identityComparer[T]{}
}
