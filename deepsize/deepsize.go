// Package deepsize estimates the memory held by a value graph by walking it
// with reflection.
//
// Shared allocations (pointer targets, slice backing arrays, string data,
// maps) are counted once. Values implementing Sizer report their own size
// and are not walked.
package deepsize

import (
	"reflect"
	"unsafe"
)

// Sizer is implemented by types that know their own footprint, such as
// roaring bitmaps.
type Sizer interface {
	GetSizeInBytes() uint64
}

var sizerType = reflect.TypeFor[Sizer]()

// mapOverhead approximates the runtime's per-map header and directory.
const mapOverhead = 48

// Of returns an estimate of the total memory occupied by v, including all
// reachable heap allocations. Cycles are followed once.
func Of(v any) int64 {
	if v == nil {
		return 0
	}
	w := walker{seen: make(map[uintptr]struct{})}
	rv := reflect.ValueOf(v)
	return int64(rv.Type().Size()) + w.indirect(rv)
}

type walker struct {
	seen map[uintptr]struct{}
}

// visit marks an allocation and reports whether it had not been seen.
func (w *walker) visit(p unsafe.Pointer) bool {
	k := uintptr(p)
	if _, ok := w.seen[k]; ok {
		return false
	}
	w.seen[k] = struct{}{}
	return true
}

// indirect returns the bytes reachable from v that lie outside v's own
// inline storage, which the caller has already counted.
func (w *walker) indirect(v reflect.Value) int64 {
	if !v.IsValid() {
		return 0
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || !w.visit(v.UnsafePointer()) {
			return 0
		}
		if v.Type().Implements(sizerType) {
			// NewAt sidesteps the read-only flag on values reached
			// through unexported fields.
			s := reflect.NewAt(v.Type().Elem(), v.UnsafePointer()).Interface().(Sizer)
			return int64(s.GetSizeInBytes())
		}
		elem := v.Elem()
		return int64(elem.Type().Size()) + w.indirect(elem)

	case reflect.String:
		n := v.Len()
		if n == 0 || !w.visit(unsafe.Pointer(unsafe.StringData(v.String()))) {
			return 0
		}
		return int64(n)

	case reflect.Slice:
		if v.IsNil() || v.Cap() == 0 || !w.visit(v.UnsafePointer()) {
			return 0
		}
		return int64(v.Cap())*int64(v.Type().Elem().Size()) + w.elems(v)

	case reflect.Array:
		return w.elems(v)

	case reflect.Struct:
		var s int64
		for i := range v.NumField() {
			s += w.indirect(v.Field(i))
		}
		return s

	case reflect.Map:
		if v.IsNil() || !w.visit(v.UnsafePointer()) {
			return 0
		}
		t := v.Type()
		s := int64(mapOverhead) + int64(v.Len())*int64(t.Key().Size()+t.Elem().Size())
		if containsPointers(t.Key()) || containsPointers(t.Elem()) {
			it := v.MapRange()
			for it.Next() {
				s += w.indirect(it.Key()) + w.indirect(it.Value())
			}
		}
		return s

	case reflect.Interface:
		if v.IsNil() {
			return 0
		}
		elem := v.Elem()
		if pointerShaped(elem.Kind()) {
			return w.indirect(elem)
		}
		return int64(elem.Type().Size()) + w.indirect(elem)

	default:
		return 0
	}
}

// elems sums the indirect size of the elements of a slice or array.
func (w *walker) elems(v reflect.Value) int64 {
	if !containsPointers(v.Type().Elem()) {
		return 0
	}
	var s int64
	for i := range v.Len() {
		s += w.indirect(v.Index(i))
	}
	return s
}

// pointerShaped reports whether an interface stores a value of kind k in
// its data word instead of boxing it.
func pointerShaped(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}

// containsPointers reports whether a type might reference heap data.
func containsPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.String, reflect.Interface:
		return true
	case reflect.Struct:
		for i := range t.NumField() {
			if containsPointers(t.Field(i).Type) {
				return true
			}
		}
	case reflect.Array:
		return containsPointers(t.Elem())
	}
	return false
}
