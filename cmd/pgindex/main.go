// cmd/pgindex loads the rows of a PostgreSQL query into a multikey map and
// answers partial-key queries against it.
//
// Every column but the last forms the key (as text); the last column is the
// value. After loading, a set of self-checks runs against the loaded map,
// then each remaining argument (or, with none, each line of stdin) is
// executed as a shell command.
//
// Usage:
//
//	go run ./cmd/pgindex -dsn postgres://... -query 'SELECT region, city, id, name FROM shops' 'match EU berlin@1'
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"multikey/shell"
	"multikey/storage"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("PGINDEX_DSN"), "PostgreSQL connection string")
	query := flag.String("query", "", "query whose rows are loaded; the last column is the value")
	variant := flag.String("variant", "positional", "index variant (positional, nonpositional)")
	check := flag.Bool("check", true, "run self-checks after loading")
	flag.Parse()

	if *dsn == "" || *query == "" {
		fatalf("-dsn and -query are required")
	}
	v, err := storage.ParseVariant(*variant)
	if err != nil {
		fatalf("%v", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := storage.DefaultConfig()
	cfg.Variant = v
	cfg.Logger = log
	m := storage.New[string, string](cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	cols, err := load(ctx, *dsn, *query, m)
	if err != nil {
		fatalf("load: %v", err)
	}
	log.Info("loaded rows", "rows", m.Len(), "key_columns", cols, "elapsed", time.Since(start))

	if *check {
		passed, failed := 0, 0
		for _, sc := range []struct {
			name string
			fn   func(*storage.Map[string, string]) bool
		}{
			{"Invariants", scenarioInvariants},
			{"Full-key lookup", scenarioFullKey},
			{"Partial-key lookup", scenarioPartialKey},
			{"Concurrent reads", scenarioConcurrentReads},
		} {
			if sc.fn(m) {
				passed++
			} else {
				failed++
			}
		}
		fmt.Printf("\n%d passed, %d failed\n\n", passed, failed)
		if failed > 0 {
			os.Exit(1)
		}
	}

	sh := shell.New(m, os.Stdout, shell.Options{Logger: log})
	if flag.NArg() > 0 {
		for _, line := range flag.Args() {
			if err := exec(sh, line); err != nil {
				return
			}
		}
		return
	}
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if err := exec(sh, sc.Text()); err != nil {
			return
		}
	}
}

func exec(sh *shell.Shell, line string) error {
	err := sh.Exec(line)
	if errors.Is(err, shell.ErrExit) {
		return err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return nil
}

// load runs query and stores each row. It returns the number of key
// columns.
func load(ctx context.Context, dsn, query string, m *storage.Map[string, string]) (int, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return 0, fmt.Errorf("parse config: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	if len(fields) < 2 {
		return 0, fmt.Errorf("query returns %d column(s), need at least 2", len(fields))
	}
	keyCols := len(fields) - 1

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return 0, err
		}
		key := make([]string, keyCols)
		for i := range key {
			key[i] = text(vals[i])
		}
		if err := m.Set(key, text(vals[keyCols])); err != nil {
			return 0, err
		}
	}
	return keyCols, rows.Err()
}

func text(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

// -------------------------------------------------------------------------
// Self-checks
// -------------------------------------------------------------------------

func scenarioInvariants(m *storage.Map[string, string]) bool {
	start := time.Now()
	if err := m.CheckInvariants(); err != nil {
		return fail("Invariants", "%v", err)
	}
	st := m.Stats()
	return pass("Invariants",
		fmt.Sprintf("%d entries, %d buckets, %d sub-keys", m.Len(), st.Buckets, st.SubKeys),
		time.Since(start))
}

func scenarioFullKey(m *storage.Map[string, string]) bool {
	start := time.Now()
	n := 0
	for key, want := range m.All() {
		got, ok := m.Get(key)
		if !ok || got != want {
			return fail("Full-key lookup", "key %v: got %q, %v", key, got, ok)
		}
		n++
	}
	return pass("Full-key lookup", fmt.Sprintf("%d keys", n), time.Since(start))
}

func scenarioPartialKey(m *storage.Map[string, string]) bool {
	start := time.Now()
	n := 0
	for key := range m.All() {
		if len(key) == 0 {
			continue
		}
		positions := make([]int, len(key))
		for i := range positions {
			positions[i] = -1
		}
		last := len(key) - 1
		positions[last] = last
		keys, ok, err := m.FullKeysByPartialKey(key[last:], positions[last:])
		if err != nil {
			return fail("Partial-key lookup", "%v", err)
		}
		if !ok || !containsKey(keys, key) {
			return fail("Partial-key lookup", "key %v not found by its last column", key)
		}
		n++
		if n == 1000 {
			break
		}
	}
	return pass("Partial-key lookup", fmt.Sprintf("%d keys found by last key column", n), time.Since(start))
}

func scenarioConcurrentReads(m *storage.Map[string, string]) bool {
	start := time.Now()
	const goroutines = 10
	const queriesPerGoroutine = 50

	var sample [][]string
	for key := range m.All() {
		sample = append(sample, key)
		if len(sample) == 100 {
			break
		}
	}
	if len(sample) == 0 {
		return pass("Concurrent reads", "no rows", time.Since(start))
	}

	s := storage.NewSynchronized(m)
	var wg sync.WaitGroup
	var errCount atomic.Int64
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for q := 0; q < queriesPerGoroutine; q++ {
				key := sample[rng.Intn(len(sample))]
				sub := key[rng.Intn(len(key)):]
				keys, ok, err := s.FullKeysByPartialKey(sub, nil)
				if err != nil || !ok || !containsKey(keys, key) {
					errCount.Add(1)
				}
			}
		}(int64(g))
	}
	wg.Wait()

	total := goroutines * queriesPerGoroutine
	if errs := errCount.Load(); errs > 0 {
		return fail("Concurrent reads", "%d errors out of %d queries", errs, total)
	}
	return pass("Concurrent reads",
		fmt.Sprintf("%d goroutines × %d queries = %d total, 0 errors", goroutines, queriesPerGoroutine, total),
		time.Since(start))
}

func containsKey(keys [][]string, key []string) bool {
	return slices.ContainsFunc(keys, func(k []string) bool { return slices.Equal(k, key) })
}

func pass(name, detail string, d time.Duration) bool {
	fmt.Printf("[PASS] %s: %s (%dms)\n", name, detail, d.Milliseconds())
	return true
}

func fail(name, format string, args ...any) bool {
	fmt.Printf("[FAIL] %s: %s\n", name, fmt.Sprintf(format, args...))
	return false
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(2)
}
