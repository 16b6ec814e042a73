package fs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/firekit/pkg/adapters/fs"
	"github.com/aretw0/firekit/pkg/adapters/storetest"
	"github.com/aretw0/firekit/pkg/core"
	"github.com/aretw0/firekit/pkg/git"
)

func newStore(t *testing.T, config fs.Config) *fs.Store {
	t.Helper()
	if config.Path == "" {
		config.Path = t.TempDir()
	}
	s, err := fs.New(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFSStore(t *testing.T) {
	for _, format := range []string{fs.FormatJSON, fs.FormatYAML} {
		t.Run(format, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) core.Store {
				return newStore(t, fs.Config{Format: format})
			})
		})
	}
}

func TestFSStore_Layout(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, fs.Config{})

	require.NoError(t, s.SetDocument(ctx, "expenses", "lunch", map[string]any{"amount": 12}, false))

	raw, err := os.ReadFile(filepath.Join(s.Path(), "expenses", "lunch.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount": 12}`, string(raw))

	cols, err := s.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Collection{"expenses"}, cols)
}

func TestFSStore_ReadsHandWrittenYAML(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, fs.Config{})

	dir := filepath.Join(s.Path(), "expenses")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rent.yaml"), []byte("title: Rent\namount: 800\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	doc, err := s.GetDocument(ctx, "expenses", "rent")
	require.NoError(t, err)
	assert.Equal(t, 800.0, doc.Data["amount"])

	docs, err := s.QueryDocuments(ctx, "expenses", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1, "unparseable and foreign files are skipped")

	// Merging rewrites the document in the configured format.
	require.NoError(t, s.SetDocument(ctx, "expenses", "rent", map[string]any{"paid": true}, true))
	_, err = os.Stat(filepath.Join(dir, "rent.yaml"))
	assert.True(t, os.IsNotExist(err))
	doc, err = s.GetDocument(ctx, "expenses", "rent")
	require.NoError(t, err)
	assert.Equal(t, "Rent", doc.Data["title"])
	assert.Equal(t, true, doc.Data["paid"])
}

func TestFSStore_RejectsUnsafeNames(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, fs.Config{})

	for _, id := range []string{"", "..", "../escape", "a/b", ".hidden"} {
		err := s.SetDocument(ctx, "expenses", id, map[string]any{}, false)
		assert.ErrorIs(t, err, core.ErrInvalidArgument, "id %q", id)
	}
	_, err := s.QueryDocuments(ctx, "../etc", nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestFSStore_SkipsUnreadableFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	var storeErrs []error
	s := newStore(t, fs.Config{Path: dir, ErrorHandler: func(err error) { storeErrs = append(storeErrs, err) }})
	require.NoError(t, s.SetDocument(ctx, "expenses", "good", map[string]any{"n": 1}, false))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "expenses", "bad.json"), []byte("{not json"), 0644))

	docs, err := s.QueryDocuments(ctx, "expenses", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Len(t, storeErrs, 1, "without a reporter the error handler sees the skip")

	var drops []core.DropEvent
	reporting := core.WithDropReporter(ctx, func(e core.DropEvent) { drops = append(drops, e) })
	docs, err = s.QueryDocuments(reporting, "expenses", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Len(t, drops, 1)
	assert.Equal(t, "bad", drops[0].ID)
	assert.Equal(t, core.Collection("expenses"), drops[0].Collection)
	assert.Len(t, storeErrs, 1, "reported skips do not reach the error handler")
}

func TestFSStore_WatcherRestart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*storetest.Timeout)
	defer cancel()
	s := newStore(t, fs.Config{})

	require.NoError(t, s.StopWatcher(ctx), "stopping an idle watcher is a no-op")
	for range 2 {
		require.NoError(t, s.StartWatcher(ctx))
		require.Eventually(t, func() bool {
			return s.State().(fs.StoreState).WatcherActive
		}, storetest.Timeout, 10*time.Millisecond)
		require.NoError(t, s.StopWatcher(ctx))
		require.Eventually(t, func() bool {
			return !s.State().(fs.StoreState).WatcherActive
		}, storetest.Timeout, 10*time.Millisecond)
	}
}

func TestFSStore_ReadOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writable := newStore(t, fs.Config{Path: dir})
	require.NoError(t, writable.SetDocument(ctx, "expenses", "a", map[string]any{"n": 1}, false))

	ro := newStore(t, fs.Config{Path: dir, ReadOnly: true})
	doc, err := ro.GetDocument(ctx, "expenses", "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, doc.Data["n"])

	err = ro.SetDocument(ctx, "expenses", "b", map[string]any{}, false)
	assert.True(t, errors.Is(err, core.ErrReadOnly))
	err = ro.DeleteDocument(ctx, "expenses", "a")
	assert.True(t, errors.Is(err, core.ErrReadOnly))

	_, err = fs.New(ctx, fs.Config{Path: filepath.Join(dir, "missing"), ReadOnly: true})
	assert.Error(t, err)
}

func TestFSStore_Versioning(t *testing.T) {
	if !git.IsInstalled() {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	s := newStore(t, fs.Config{Versioning: true})

	require.NoError(t, s.SetDocument(ctx, "expenses", "a", map[string]any{"n": 1}, false))
	require.NoError(t, s.DeleteDocument(ctx, "expenses", "a"))

	subjects, err := git.NewClient(s.Path(), nil).Log(ctx, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(subjects), 2)
	assert.Equal(t, "delete expenses/a", subjects[0])
	assert.Equal(t, "set expenses/a", subjects[1])

	state := s.State().(fs.StoreState)
	assert.True(t, state.Versioning)
}

func TestFSStore_Reconcile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := newStore(t, fs.Config{Path: dir})
	require.NoError(t, s.SetDocument(ctx, "expenses", "a", map[string]any{"n": 1}, false))
	require.NoError(t, s.SetDocument(ctx, "expenses", "b", map[string]any{"n": 2}, false))
	require.NoError(t, s.Close())

	// Changes made while nobody was looking.
	require.NoError(t, os.Remove(filepath.Join(dir, "expenses", "a.json")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "expenses", "c.json"), []byte(`{"n": 3}`), 0644))

	reopened := newStore(t, fs.Config{Path: dir})
	events, err := reopened.Reconcile(ctx)
	require.NoError(t, err)

	got := make(map[string]core.EventType)
	for _, e := range events {
		got[e.ID] = e.Type
	}
	assert.Equal(t, map[string]core.EventType{"a": core.EventDelete, "c": core.EventCreate}, got)

	again, err := reopened.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFSStore_WatcherPublishesExternalChanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*storetest.Timeout)
	defer cancel()

	s := newStore(t, fs.Config{})
	require.NoError(t, s.SetDocument(ctx, "expenses", "a", map[string]any{"n": 1}, false))
	require.NoError(t, s.StartWatcher(ctx))
	assert.Error(t, s.StartWatcher(ctx), "second start is rejected")

	snaps, err := s.Subscribe(ctx, "expenses", nil)
	require.NoError(t, err)

	// Wait for the watcher to be live before writing behind the store's back.
	require.Eventually(t, func() bool {
		return s.State().(fs.StoreState).WatcherActive
	}, storetest.Timeout, 10*time.Millisecond)

	external := filepath.Join(s.Path(), "expenses", "b.json")
	require.NoError(t, os.WriteFile(external, []byte(`{"n": 2}`), 0644))

	storetest.Eventually(t, snaps, func(snap core.QuerySnapshot) bool {
		return len(snap.Documents) == 2
	})

	require.NoError(t, os.Remove(external))
	storetest.Eventually(t, snaps, func(snap core.QuerySnapshot) bool {
		return len(snap.Documents) == 1
	})

	require.NoError(t, s.StopWatcher(ctx))
}
