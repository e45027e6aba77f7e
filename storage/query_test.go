package storage

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"strings"
	"testing"
)

// keySet renders keys as a sorted, comparable string.
func keySet[T any](keys [][]T) string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprint(k)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// bruteForce answers a partial-key query by scanning every entry.
func bruteForce[T comparable, V any](m *Map[T, V], subKeys []T, positions []int) [][]T {
	var out [][]T
	for key := range m.All() {
		ok := true
		for i, sk := range subKeys {
			if pos := pinned(positions, i); pos >= 0 {
				ok = pos < len(key) && key[pos] == sk
			} else {
				ok = slices.Contains(key, sk)
			}
			if !ok {
				break
			}
		}
		if ok {
			out = append(out, key)
		}
	}
	return out
}

// -------------------------------------------------------------------------
// Scenarios
// -------------------------------------------------------------------------

func TestQuery_PinnedAndFree(t *testing.T) {
	forEachVariant(t, func(t *testing.T, v Variant) {
		m := newMap[int, string](t, v)
		mustPut(t, m, []int{1, 2, 3, 4}, "hi")
		mustPut(t, m, []int{1, 2, 3, 4, 5, 6}, "hi4")

		keys, ok, err := m.FullKeysByPartialKey([]int{3, 2}, []int{-1, 1})
		if err != nil || !ok {
			t.Fatalf("got ok=%v err=%v", ok, err)
		}
		want := "[1 2 3 4 5 6] [1 2 3 4]"
		if got := keySet(keys); got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	})
}

func TestQuery_RemoveThenRequery(t *testing.T) {
	forEachVariant(t, func(t *testing.T, v Variant) {
		m := newMap[string, int](t, v)
		mustPut(t, m, []string{"first", "a"}, 1)
		mustPut(t, m, []string{"first", "b"}, 2)
		mustPut(t, m, []string{"first", "c", "d"}, 3)

		keys, ok, _ := m.FullKeysByPartialKey([]string{"first"}, nil)
		if !ok || len(keys) != 3 {
			t.Fatalf("got %v, want 3 keys", keys)
		}

		m.Remove([]string{"first", "b"})
		keys, ok, _ = m.FullKeysByPartialKey([]string{"first"}, nil)
		if !ok {
			t.Fatal("no match after removal")
		}
		if got, want := keySet(keys), "[first a] [first c d]"; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	})
}

func TestQuery_EmptySubKeys(t *testing.T) {
	forEachVariant(t, func(t *testing.T, v Variant) {
		m := newMap[int, int](t, v)
		mustPut(t, m, []int{1}, 1)
		keys, ok, err := m.FullKeysByPartialKey([]int{}, nil)
		if err != nil || ok || keys != nil {
			t.Fatalf("got %v, %v, %v, want no match", keys, ok, err)
		}
		if _, ok, _ := m.ValuesByPartialKey([]int{}, nil); ok {
			t.Fatal("values matched")
		}
		if _, ok, _ := m.EntriesByPartialKey([]int{}, nil); ok {
			t.Fatal("entries matched")
		}
	})
}

func TestQuery_NilSubKeys(t *testing.T) {
	m := newMap[int, int](t, Positional)
	var null *NullArgumentError
	if _, _, err := m.FullKeysByPartialKey(nil, nil); !errors.As(err, &null) {
		t.Fatalf("got %v, want NullArgumentError", err)
	}
	if _, err := m.Explain(nil, nil); !errors.As(err, &null) {
		t.Fatalf("Explain got %v, want NullArgumentError", err)
	}
}

// -------------------------------------------------------------------------
// Edge cases
// -------------------------------------------------------------------------

func TestQuery_EdgeCases(t *testing.T) {
	forEachVariant(t, func(t *testing.T, v Variant) {
		m := newMap[string, int](t, v)
		mustPut(t, m, []string{"a", "b", "a"}, 1)
		mustPut(t, m, []string{"b", "c"}, 2)

		tests := []struct {
			name      string
			subKeys   []string
			positions []int
			want      string // "" means no match
		}{
			{"unknown sub-key", []string{"zz"}, nil, ""},
			{"one unknown among known", []string{"a", "zz"}, nil, ""},
			{"pinned beyond every key", []string{"a"}, []int{7}, ""},
			{"pinned wrong position", []string{"c"}, []int{0}, ""},
			{"pinned right position", []string{"c"}, []int{1}, "[b c]"},
			{"repeated sub-key needs one occurrence", []string{"b", "b"}, nil, "[a b a] [b c]"},
			{"repeated sub-key at both positions", []string{"a", "a"}, []int{0, 2}, "[a b a]"},
			{"positions shorter than sub-keys", []string{"b", "a"}, []int{0}, ""},
			{"positions longer than sub-keys", []string{"b"}, []int{-1, 3, 4}, "[a b a] [b c]"},
			{"negative position is free", []string{"a"}, []int{-5}, "[a b a]"},
			{"two free", []string{"b", "c"}, nil, "[b c]"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				keys, ok, err := m.FullKeysByPartialKey(tt.subKeys, tt.positions)
				if err != nil {
					t.Fatal(err)
				}
				if tt.want == "" {
					if ok || keys != nil {
						t.Fatalf("got %v, want no match", keys)
					}
					return
				}
				if !ok {
					t.Fatalf("no match, want %s", tt.want)
				}
				if got := keySet(keys); got != tt.want {
					t.Fatalf("got %s, want %s", got, tt.want)
				}
			})
		}
	})
}

func TestQuery_ResultShapesAgree(t *testing.T) {
	m := newMap[int, string](t, Positional)
	mustPut(t, m, []int{1, 2}, "x")
	mustPut(t, m, []int{2, 1}, "y")
	mustPut(t, m, []int{3}, "z")

	keys, _, _ := m.FullKeysByPartialKey([]int{1}, nil)
	values, _, _ := m.ValuesByPartialKey([]int{1}, nil)
	entries, _, _ := m.EntriesByPartialKey([]int{1}, nil)
	if len(keys) != 2 || len(values) != 2 || len(entries) != 2 {
		t.Fatalf("sizes %d/%d/%d, want 2", len(keys), len(values), len(entries))
	}
	for i, e := range entries {
		if !slices.Equal(e.Key, keys[i]) || e.Value != values[i] {
			t.Fatalf("entry %d = %v, keys[i]=%v values[i]=%v", i, e, keys[i], values[i])
		}
		if got, _ := m.Get(e.Key); got != e.Value {
			t.Fatalf("entry %v carries %q, store has %q", e.Key, e.Value, got)
		}
	}
	slices.Sort(values)
	if !slices.Equal(values, []string{"x", "y"}) {
		t.Fatalf("got %v", values)
	}
}

// -------------------------------------------------------------------------
// Properties
// -------------------------------------------------------------------------

func randomKey(rng *rand.Rand, alphabet int) []int {
	key := make([]int, 1+rng.Intn(6))
	for i := range key {
		key[i] = rng.Intn(alphabet)
	}
	return key
}

// randomQuery draws sub-keys from key (or from the alphabet, when foreign is
// set) and pins some of them.
func randomQuery(rng *rand.Rand, key []int, alphabet int, foreign bool) ([]int, []int) {
	n := 1 + rng.Intn(3)
	subKeys := make([]int, n)
	positions := make([]int, n)
	for i := range n {
		pos := rng.Intn(len(key))
		subKeys[i] = key[pos]
		if foreign {
			subKeys[i] = rng.Intn(alphabet + 2)
		}
		positions[i] = -1
		if rng.Intn(2) == 0 {
			positions[i] = pos
			if foreign {
				positions[i] = rng.Intn(7)
			}
		}
	}
	return subKeys, positions
}

func TestQuery_MatchesBruteForce(t *testing.T) {
	for _, v := range variants {
		for _, merge := range []MergeStrategy{MergeAuto, MergeFilter, MergeUnion} {
			t.Run(v.String()+"/"+merge.String(), func(t *testing.T) {
				rng := rand.New(rand.NewSource(42))
				cfg := DefaultConfig()
				cfg.Variant = v
				cfg.Merge = merge
				m := New[int, int](cfg)

				var keys [][]int
				for i := range 300 {
					k := randomKey(rng, 8)
					if m.Set(k, i) == nil && len(keys) < 1000 {
						keys = append(keys, k)
					}
				}

				for range 500 {
					k := keys[rng.Intn(len(keys))]
					subKeys, positions := randomQuery(rng, k, 8, rng.Intn(3) == 0)
					got, ok, err := m.FullKeysByPartialKey(subKeys, positions)
					if err != nil {
						t.Fatal(err)
					}
					want := bruteForce(m, subKeys, positions)
					if ok != (len(want) > 0) {
						t.Fatalf("query %v@%v: ok=%v, brute force found %d", subKeys, positions, ok, len(want))
					}
					if keySet(got) != keySet(want) {
						t.Fatalf("query %v@%v:\n got  %s\n want %s", subKeys, positions, keySet(got), keySet(want))
					}
				}
			})
		}
	}
}

func TestQuery_RoundTrip(t *testing.T) {
	forEachVariant(t, func(t *testing.T, v Variant) {
		rng := rand.New(rand.NewSource(7))
		m := newMap[int, int](t, v)
		for i := range 200 {
			k := randomKey(rng, 20)
			if err := m.Set(k, i); err != nil {
				t.Fatal(err)
			}
		}
		for k, val := range m.All() {
			if got, ok := m.Get(k); !ok || got != val {
				t.Fatalf("Get(%v) = %d, %v, want %d", k, got, ok, val)
			}
			keys, ok, err := m.FullKeysByPartialKey(k, nil)
			if err != nil || !ok {
				t.Fatalf("query by full key %v: ok=%v err=%v", k, ok, err)
			}
			positions := make([]int, len(k))
			for i := range positions {
				positions[i] = i
			}
			pinnedKeys, _, _ := m.FullKeysByPartialKey(k, positions)
			if !slices.ContainsFunc(keys, func(x []int) bool { return slices.Equal(x, k) }) ||
				!slices.ContainsFunc(pinnedKeys, func(x []int) bool { return slices.Equal(x, k) }) {
				t.Fatalf("key %v missing from its own query", k)
			}
		}
	})
}

func TestQuery_StrategiesAgree(t *testing.T) {
	// Few sub-keys spread over many positions forces spread sources.
	rng := rand.New(rand.NewSource(3))
	maps := map[MergeStrategy]*Map[int, int]{}
	for _, s := range []MergeStrategy{MergeFilter, MergeUnion} {
		cfg := DefaultConfig()
		cfg.Merge = s
		maps[s] = New[int, int](cfg)
	}
	for i := range 400 {
		k := make([]int, 8)
		for j := range k {
			k[j] = rng.Intn(4)
		}
		for _, m := range maps {
			_ = m.Set(k, i)
		}
	}
	for range 300 {
		n := 1 + rng.Intn(4)
		subKeys := make([]int, n)
		for i := range subKeys {
			subKeys[i] = rng.Intn(4)
		}
		filter, okF, _ := maps[MergeFilter].FullKeysByPartialKey(subKeys, nil)
		union, okU, _ := maps[MergeUnion].FullKeysByPartialKey(subKeys, nil)
		if okF != okU || keySet(filter) != keySet(union) {
			t.Fatalf("query %v: filter and union disagree", subKeys)
		}
	}
}

func TestQuery_InvariantsAfterRandomMutations(t *testing.T) {
	forEachVariant(t, func(t *testing.T, v Variant) {
		rng := rand.New(rand.NewSource(11))
		m := newMap[int, int](t, v)
		for step := range 2000 {
			k := randomKey(rng, 6)
			switch r := rng.Intn(20); {
			case r < 8:
				_ = m.Put(k, step)
			case r < 12:
				_ = m.Set(k, step)
			case r < 19:
				m.Remove(k)
			default:
				if rng.Intn(10) == 0 {
					m.Clear()
				}
			}
			if step%100 == 0 {
				if err := m.CheckInvariants(); err != nil {
					t.Fatalf("step %d: %v", step, err)
				}
			}
		}
		if err := m.CheckInvariants(); err != nil {
			t.Fatal(err)
		}
		live := indexDigest(m)
		m.RebuildIndices()
		if indexDigest(m) != live {
			t.Fatal("live index differs from rebuilt index")
		}
	})
}

func TestQuery_VariantsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	pos := newMap[int, int](t, Positional)
	non := newMap[int, int](t, NonPositional)
	var keys [][]int
	for i := range 300 {
		k := randomKey(rng, 10)
		if pos.Put(k, i) == nil {
			mustPut(t, non, k, i)
			keys = append(keys, k)
		}
	}
	for range 500 {
		k := keys[rng.Intn(len(keys))]
		subKeys, positions := randomQuery(rng, k, 10, rng.Intn(4) == 0)
		a, okA, _ := pos.FullKeysByPartialKey(subKeys, positions)
		b, okB, _ := non.FullKeysByPartialKey(subKeys, positions)
		if okA != okB || keySet(a) != keySet(b) {
			t.Fatalf("query %v@%v: positional %s, non-positional %s", subKeys, positions, keySet(a), keySet(b))
		}
	}
}

// -------------------------------------------------------------------------
// Cost heuristic and Explain
// -------------------------------------------------------------------------

func TestQuery_UseFilter(t *testing.T) {
	m := newMap[int, int](t, Positional)
	// One key with sub-key 1 at three positions plus many with 1 at one.
	mustPut(t, m, []int{1, 1, 1}, 0)
	for i := range 50 {
		mustPut(t, m, []int{1, 100 + i}, i)
	}
	src, ok := m.index.Candidates(1, -1)
	if !ok || !src.Spread || len(src.Buckets) != 3 {
		t.Fatalf("want a spread source over 3 buckets, got %+v", src)
	}
	// Small working set: probing is cheaper.
	if !m.useFilter(1, src) {
		t.Fatal("single-member working set should filter")
	}
	// Working set far larger than the buckets: union is cheaper.
	if m.useFilter(1000, src) {
		t.Fatal("large working set should union")
	}

	m.cfg.Merge = MergeUnion
	if m.useFilter(1, src) {
		t.Fatal("forced union ignored")
	}
	m.cfg.Merge = MergeFilter
	if !m.useFilter(1000, src) {
		t.Fatal("forced filter ignored")
	}
}

func TestQuery_Explain(t *testing.T) {
	m := newMap[int, string](t, Positional)
	mustPut(t, m, []int{1, 2, 3, 4}, "hi")
	mustPut(t, m, []int{1, 2, 3, 4, 5, 6}, "hi4")
	mustPut(t, m, []int{9, 2}, "x")

	tr, err := m.Explain([]int{3, 2}, []int{-1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Matched != 2 || tr.Constraints != 2 {
		t.Fatalf("trace = %+v", tr)
	}
	// Sub-key 3 (2 keys) is a smaller seed than 2@1 (3 keys).
	if tr.Seed != 0 || tr.SeedSize != 2 {
		t.Fatalf("seed = %d (%d ids), want 0 (2 ids)", tr.Seed, tr.SeedSize)
	}
	if len(tr.Steps) != 1 || tr.Steps[0].Kind != StepIntersect || tr.Steps[0].Remaining != 2 {
		t.Fatalf("steps = %+v", tr.Steps)
	}
	if s := tr.String(); !strings.Contains(s, "matched      2") {
		t.Fatalf("String() = %q", s)
	}

	tr, _ = m.Explain([]int{42}, nil)
	if tr.Matched != 0 || len(tr.Steps) != 1 || tr.Steps[0].Kind != StepMiss {
		t.Fatalf("miss trace = %+v", tr)
	}
}

func TestQuery_ExplainNonPositionalChecksPositions(t *testing.T) {
	m := newMap[int, int](t, NonPositional)
	mustPut(t, m, []int{1, 2}, 1)
	mustPut(t, m, []int{2, 1}, 2)
	tr, err := m.Explain([]int{1}, []int{0})
	if err != nil {
		t.Fatal(err)
	}
	last := tr.Steps[len(tr.Steps)-1]
	if last.Kind != StepPositions || last.Remaining != 1 || tr.Matched != 1 {
		t.Fatalf("trace = %+v", tr)
	}
}
