// cmd/mkbench builds a synthetic order-book workload in both index variants,
// times inserts and partial-key queries, checks that every merge strategy
// returns the same answers, and reports memory use.
//
// Keys are [tenant, region, status, order-id]: tenants and order IDs are
// UUIDs, regions and statuses come from small pools, so queries mix
// selective and unselective sub-keys.
//
// Usage: go run ./cmd/mkbench -keys 200000 -queries 20000
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"multikey/deepsize"
	"multikey/storage"
	"multikey/version"
)

var (
	regions  = []string{"eu-west", "eu-central", "us-east", "us-west", "ap-south", "ap-east"}
	statuses = []string{"new", "paid", "shipped", "delivered", "returned"}
)

type query struct {
	subKeys   []string
	positions []int
}

type result struct {
	variant  storage.Variant
	merge    storage.MergeStrategy
	insert   time.Duration
	query    time.Duration
	matched  int
	usage    storage.MemoryUsage
	answers  []string
	rawBytes int64
}

func main() {
	nKeys := flag.Int("keys", 100_000, "number of keys")
	nTenants := flag.Int("tenants", 500, "number of distinct tenants")
	nQueries := flag.Int("queries", 10_000, "number of partial-key queries")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	label := fmt.Sprintf("%s: %d keys, %d tenants, %d queries", version.String(), *nKeys, *nTenants, *nQueries)
	fmt.Println(label)
	fmt.Println(strings.Repeat("=", len(label)))
	fmt.Println()

	rng := rand.New(rand.NewSource(*seed))
	keys := makeKeys(rng, *nKeys, *nTenants)
	queries := makeQueries(rng, keys, *nQueries)

	var results []result
	for _, v := range []storage.Variant{storage.Positional, storage.NonPositional} {
		for _, merge := range []storage.MergeStrategy{storage.MergeAuto, storage.MergeFilter, storage.MergeUnion} {
			results = append(results, runOne(v, merge, keys, queries))
		}
	}

	fmt.Printf("%-14s %-7s %10s %10s %10s %10s %10s\n",
		"variant", "merge", "insert", "query", "matched", "store", "index")
	fmt.Println("-------------- ------- ---------- ---------- ---------- ---------- ----------")
	for _, r := range results {
		fmt.Printf("%-14s %-7s %10s %10s %10d %10s %10s\n",
			r.variant, r.merge,
			r.insert.Round(time.Millisecond), r.query.Round(time.Millisecond), r.matched,
			storage.HumanBytes(r.usage.StoreBytes), storage.HumanBytes(r.usage.IndexBytes))
	}
	fmt.Println()

	fmt.Printf("  %-28s %10s\n", "Raw key data:", storage.HumanBytes(results[0].rawBytes))
	for _, r := range results {
		if r.merge != storage.MergeAuto {
			continue
		}
		fmt.Printf("  %-28s %9.2fx\n", r.variant.String()+" overhead ratio:",
			float64(r.usage.Total())/float64(r.rawBytes))
	}
	fmt.Println()

	ref := results[0]
	mismatches := 0
	for _, r := range results[1:] {
		if !slices.Equal(r.answers, ref.answers) {
			fmt.Printf("MISMATCH: %s/%s disagrees with %s/%s\n", r.variant, r.merge, ref.variant, ref.merge)
			mismatches++
		}
	}
	if mismatches > 0 {
		os.Exit(1)
	}
	fmt.Println("All variants and merge strategies returned identical results.")
}

func makeKeys(rng *rand.Rand, n, tenants int) [][]string {
	pool := make([]string, tenants)
	for i := range pool {
		pool[i] = uuid.NewString()
	}
	keys := make([][]string, n)
	for i := range keys {
		keys[i] = []string{
			pool[rng.Intn(len(pool))],
			regions[rng.Intn(len(regions))],
			statuses[rng.Intn(len(statuses))],
			uuid.NewString(),
		}
	}
	return keys
}

// makeQueries draws 1-3 sub-keys from random stored keys. Some sub-keys are
// pinned to their position, some are taken from the status pool and placed
// at the region position so they never match there.
func makeQueries(rng *rand.Rand, keys [][]string, n int) []query {
	qs := make([]query, n)
	for i := range qs {
		key := keys[rng.Intn(len(keys))]
		var q query
		for _, pos := range rng.Perm(3)[:1+rng.Intn(3)] {
			sk, p := key[pos], -1
			switch rng.Intn(4) {
			case 0:
				p = pos
			case 1:
				sk, p = statuses[rng.Intn(len(statuses))], 1
			}
			q.subKeys = append(q.subKeys, sk)
			q.positions = append(q.positions, p)
		}
		qs[i] = q
	}
	return qs
}

func runOne(v storage.Variant, merge storage.MergeStrategy, keys [][]string, queries []query) result {
	cfg := storage.DefaultConfig()
	cfg.Variant = v
	cfg.Merge = merge
	m := storage.New[string, int](cfg)

	r := result{variant: v, merge: merge, rawBytes: deepsize.Of(keys)}

	start := time.Now()
	for i, k := range keys {
		if err := m.Put(k, i); err != nil {
			fatalf("put: %v", err)
		}
	}
	r.insert = time.Since(start)

	found := make([][]int, len(queries))
	start = time.Now()
	for i, q := range queries {
		values, _, err := m.ValuesByPartialKey(q.subKeys, q.positions)
		if err != nil {
			fatalf("query: %v", err)
		}
		found[i] = values
	}
	r.query = time.Since(start)

	r.answers = make([]string, len(found))
	for i, values := range found {
		r.matched += len(values)
		slices.Sort(values)
		r.answers[i] = fmt.Sprint(values)
	}

	r.usage = m.MemoryUsage()
	return r
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(2)
}
