package fs_test

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/firekit/pkg/adapters/fs"
)

// TestConcurrency_ExternalVsInternal has another writer scribbling into the
// collection directory, including garbage, while the store saves documents
// and the watcher runs. The store must not fail or panic, and every
// document it wrote must still read back.
func TestConcurrency_ExternalVsInternal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	dir := t.TempDir()
	var bgErrors atomic.Int64
	store, err := fs.New(context.Background(), fs.Config{
		Path:         dir,
		ErrorHandler: func(error) { bgErrors.Add(1) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, store.StartWatcher(ctx))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "expenses"), 0755))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			i := rand.Intn(10)
			body := fmt.Sprintf(`{"noise": %d}`, time.Now().UnixNano())
			if i%3 == 0 {
				body = "{ not json"
			}
			_ = os.WriteFile(filepath.Join(dir, "expenses", fmt.Sprintf("noise-%d.json", i)), []byte(body), 0644)
			time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		}
	}()

	written := make(map[string]bool)
	var mu sync.Mutex
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			id := fmt.Sprintf("data-%d", rand.Intn(10))
			if err := store.SetDocument(context.Background(), "expenses", id, map[string]any{"ts": time.Now().Unix()}, true); err == nil {
				mu.Lock()
				written[id] = true
				mu.Unlock()
			}
			time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		}
	}()

	events, err := store.Watch(ctx, "expenses")
	require.NoError(t, err)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-events:
			}
		}
	}()

	wg.Wait()

	docs, err := store.QueryDocuments(context.Background(), "expenses", nil)
	require.NoError(t, err)
	ids := make(map[string]bool, len(docs))
	for _, d := range docs {
		ids[d.ID] = true
	}
	mu.Lock()
	defer mu.Unlock()
	for id := range written {
		assert.True(t, ids[id], "document %s written by the store is missing", id)
	}
	t.Logf("Survived with %d documents and %d background errors", len(docs), bgErrors.Load())
}
