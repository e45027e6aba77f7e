package storage

import (
	"fmt"
	"strings"
	"time"

	"multikey/storage/index"
)

// StepKind names what the query engine did with one constraint.
type StepKind string

const (
	StepMiss      StepKind = "miss"      // constraint has no candidates
	StepIntersect StepKind = "intersect" // single bucket, intersected directly
	StepFilter    StepKind = "filter"    // working set probed against spread buckets
	StepUnion     StepKind = "union"     // spread buckets unioned, then intersected
	StepPositions StepKind = "positions" // pinned positions checked against stored keys
)

// Trace records how a partial-key query was resolved. It is produced by
// Explain.
type Trace struct {
	Variant     Variant
	Constraints int
	Seed        int    // constraint that seeded the result, -1 if none
	SeedBuckets int    // buckets behind the seed
	SeedSize    uint64 // members of the seed set
	Steps       []TraceStep
	Matched     uint64
	Total       time.Duration
}

// TraceStep is one merge step. Constraint is -1 for the position check.
type TraceStep struct {
	Constraint int
	Kind       StepKind
	Buckets    int
	Candidates uint64 // summed bucket sizes of the constraint's source
	Remaining  uint64 // working set after the step
}

func (tr *Trace) setSeed(i int, src index.Source, size uint64) {
	if tr == nil {
		return
	}
	tr.Seed = i
	tr.SeedBuckets = len(src.Buckets)
	tr.SeedSize = size
}

func (tr *Trace) addStep(s TraceStep) {
	if tr == nil {
		return
	}
	tr.Steps = append(tr.Steps, s)
}

// String formats the trace one step per line.
func (tr *Trace) String() string {
	if tr == nil {
		return "no trace available"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "variant      %s\n", tr.Variant)
	fmt.Fprintf(&b, "constraints  %d\n", tr.Constraints)
	if tr.Seed >= 0 {
		fmt.Fprintf(&b, "seed         #%d (%d bucket(s), %d ids)\n", tr.Seed, tr.SeedBuckets, tr.SeedSize)
	}
	for _, s := range tr.Steps {
		switch s.Kind {
		case StepMiss:
			fmt.Fprintf(&b, "miss         #%d\n", s.Constraint)
		case StepPositions:
			fmt.Fprintf(&b, "positions    -> %d\n", s.Remaining)
		default:
			fmt.Fprintf(&b, "%-12s #%d (%d bucket(s), %d ids) -> %d\n",
				s.Kind, s.Constraint, s.Buckets, s.Candidates, s.Remaining)
		}
	}
	fmt.Fprintf(&b, "matched      %d\n", tr.Matched)
	fmt.Fprintf(&b, "total        %s\n", tr.Total)
	return b.String()
}
