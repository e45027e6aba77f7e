// Package equal provides the equality and hashing strategies used to compare
// sub-keys and composite keys, and a hash table keyed through them.
//
// A Comparer must be consistent: Equal(a, b) implies Hash(a) == Hash(b).
package equal

import (
	"bytes"
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// Comparer decides equality of two values and hashes a value consistently
// with that equality.
type Comparer[T any] interface {
	Equal(a, b T) bool
	Hash(v T) uint64
}

var seed = maphash.MakeSeed()

type defaultComparer[T comparable] struct{}

func (defaultComparer[T]) Equal(a, b T) bool { return a == b }
func (defaultComparer[T]) Hash(v T) uint64   { return maphash.Comparable(seed, v) }

// Default returns a Comparer using the language's == operator. Hashing
// panics for interface values holding non-comparable dynamic types, the
// same way a Go map does.
func Default[T comparable]() Comparer[T] {
	return defaultComparer[T]{}
}

type stringComparer struct{}

func (stringComparer) Equal(a, b string) bool { return a == b }
func (stringComparer) Hash(v string) uint64   { return xxhash.Sum64String(v) }

// Strings returns a byte-wise string Comparer hashed with xxhash.
func Strings() Comparer[string] {
	return stringComparer{}
}

type bytesComparer struct{}

func (bytesComparer) Equal(a, b []byte) bool { return bytes.Equal(a, b) }
func (bytesComparer) Hash(v []byte) uint64   { return xxhash.Sum64(v) }

// Bytes returns a Comparer over byte slices by content.
func Bytes() Comparer[[]byte] {
	return bytesComparer{}
}

type normalizedComparer struct {
	form norm.Form
}

func (c normalizedComparer) Equal(a, b string) bool {
	if a == b {
		return true
	}
	if c.form.IsNormalString(a) && c.form.IsNormalString(b) {
		return false
	}
	return c.form.String(a) == c.form.String(b)
}

func (c normalizedComparer) Hash(v string) uint64 {
	if c.form.IsNormalString(v) {
		return xxhash.Sum64String(v)
	}
	return xxhash.Sum64String(c.form.String(v))
}

// NormalizedStrings returns a Comparer that treats two strings as equal when
// their Unicode normalizations under form are identical, so "é" written as
// one code point matches "e" followed by a combining acute accent.
func NormalizedStrings(form norm.Form) Comparer[string] {
	return normalizedComparer{form: form}
}

type funcComparer[T any] struct {
	eq   func(a, b T) bool
	hash func(v T) uint64
}

func (c funcComparer[T]) Equal(a, b T) bool { return c.eq(a, b) }
func (c funcComparer[T]) Hash(v T) uint64   { return c.hash(v) }

// Func builds a Comparer from a pair of functions. The caller is responsible
// for keeping them consistent.
func Func[T any](eq func(a, b T) bool, hash func(v T) uint64) Comparer[T] {
	return funcComparer[T]{eq: eq, hash: hash}
}
