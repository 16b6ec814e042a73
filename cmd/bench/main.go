package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/firekit"
	"github.com/aretw0/firekit/pkg/core"
)

type note struct {
	ID    string   `json:"id,omitempty"`
	Title string   `json:"title"`
	Rank  int      `json:"rank"`
	Tags  []string `json:"tags"`
}

func (n note) DocumentID() string            { return n.ID }
func (note) Collection() firekit.Collection { return "notes" }

func main() {
	count := flag.Int("count", 1000, "Number of documents to generate")
	adapter := flag.String("adapter", "fs", "Store adapter to benchmark (fs or sqlite)")
	keep := flag.Bool("keep", false, "Keep the benchmark data after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "firekit_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	open := func() firekit.Store {
		store, err := firekit.Open(ctx, benchDir, firekit.WithAdapter(*adapter), firekit.WithLogger(logger))
		if err != nil {
			panic(err)
		}
		return store
	}

	fmt.Printf("Writing %d documents with the %s adapter in %s...\n", *count, *adapter, benchDir)
	store := open()
	notes := firekit.NewManager[note](store)
	startGen := time.Now()
	for i := 0; i < *count; i++ {
		n := note{Title: fmt.Sprintf("Note %d", i), Rank: i, Tags: []string{"benchmark", "test"}}
		if _, err := notes.Save(ctx, n); err != nil {
			panic(err)
		}
	}
	writes := time.Since(startGen)
	closeStore(store)

	// A fresh store per run simulates separate CLI invocations.
	run := func(label string, f firekit.Filter) time.Duration {
		store := open()
		defer closeStore(store)
		m := firekit.NewManager[note](store)
		start := time.Now()
		list, err := m.GetAllFiltered(ctx, f)
		if err != nil {
			panic(err)
		}
		d := time.Since(start)
		fmt.Printf("%s: %v (Items: %d)\n", label, d, len(list))
		return d
	}

	cold := run("List (Run 1 - Cold)", nil)
	warm := run("List (Run 2 - Warm)", nil)
	filtered := run("Filtered (rank >= half)", firekit.Where("rank", firekit.OpGreaterOrEqual, *count/2))

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d documents, %s):\n", *count, *adapter)
	fmt.Printf("  Writes:   %v (%v/doc)\n", writes, writes/time.Duration(max(*count, 1)))
	fmt.Printf("  Cold:     %v\n", cold)
	fmt.Printf("  Warm:     %v\n", warm)
	fmt.Printf("  Filtered: %v\n", filtered)
	fmt.Printf("--------------------------------------------------\n")
}

func closeStore(s firekit.Store) {
	if c, ok := s.(core.Closer); ok {
		_ = c.Close()
	}
}
