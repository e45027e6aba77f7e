package storage

import (
	"fmt"
	"log/slog"
)

// Variant selects which inverted index a Map maintains.
type Variant uint8

const (
	// Positional indexes every (sub-key, position) pair and keeps a
	// per-sub-key position mask. Pinned positions are answered by the
	// index directly.
	Positional Variant = iota
	// NonPositional indexes sub-keys regardless of position. Pinned
	// positions are checked against the stored keys after intersection.
	NonPositional
)

func (v Variant) String() string {
	switch v {
	case Positional:
		return "positional"
	case NonPositional:
		return "nonpositional"
	default:
		return "unknown"
	}
}

// ParseVariant parses the String form of a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "positional":
		return Positional, nil
	case "nonpositional", "non-positional":
		return NonPositional, nil
	default:
		return 0, fmt.Errorf("unknown index variant %q", s)
	}
}

// MergeStrategy controls how the query engine intersects the working result
// with a spread source (an unpinned sub-key occurring at several positions).
type MergeStrategy uint8

const (
	// MergeAuto picks per step using the cost heuristic.
	MergeAuto MergeStrategy = iota
	// MergeFilter always probes each working-set element against the
	// source's buckets.
	MergeFilter
	// MergeUnion always unions the source's buckets and intersects.
	MergeUnion
)

func (s MergeStrategy) String() string {
	switch s {
	case MergeAuto:
		return "auto"
	case MergeFilter:
		return "filter"
	case MergeUnion:
		return "union"
	default:
		return "unknown"
	}
}

// DefaultCostRatio is the relative cost of building a joined set versus
// probing one element against one bucket.
const DefaultCostRatio = 2.0

// Config configures a Map.
type Config struct {
	Variant Variant
	// CostRatio weighs set construction against membership probing in the
	// merge heuristic. Values <= 0 select DefaultCostRatio.
	CostRatio float64
	Merge     MergeStrategy
	// Logger receives rebuild, restore and consistency-violation events.
	// Nil discards them.
	Logger *slog.Logger
	// Metrics, if non-nil, counts queries and merge steps.
	Metrics *Metrics
}

// DefaultConfig returns a positional configuration with the default cost
// ratio and automatic merge selection.
func DefaultConfig() Config {
	return Config{
		Variant:   Positional,
		CostRatio: DefaultCostRatio,
		Merge:     MergeAuto,
	}
}

// Entry is a stored composite key and its value.
type Entry[T, V any] struct {
	Key   []T
	Value V
}

// -------------------------------------------------------------------------
// Typed errors
// -------------------------------------------------------------------------

// DuplicateKeyError is returned by Put when the key is already stored.
type DuplicateKeyError struct{ Key any }

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %v", e.Key)
}

// NullArgumentError is returned when a required key, sub-key sequence or
// comparer is nil. No state is changed.
type NullArgumentError struct{ Name string }

func (e *NullArgumentError) Error() string {
	return fmt.Sprintf("argument %q must not be nil", e.Name)
}

// IndexConsistencyError is returned when the index refers to an entry the
// primary store cannot resolve. It means the map was mutated concurrently
// or has a bug; the query is abandoned but the map is left as is.
type IndexConsistencyError struct {
	EntryID uint32
	Reason  string
}

func (e *IndexConsistencyError) Error() string {
	return fmt.Sprintf("index consistency violation: entry %d: %s", e.EntryID, e.Reason)
}
