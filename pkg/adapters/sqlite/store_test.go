package sqlite_test

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/firekit/pkg/adapters/sqlite"
	"github.com/aretw0/firekit/pkg/adapters/storetest"
	"github.com/aretw0/firekit/pkg/core"
)

func newStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(context.Background(), sqlite.Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Store {
		return newStore(t, t.TempDir())
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "docs.db")

	s, err := sqlite.New(ctx, sqlite.Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.SetDocument(ctx, "expenses", "rent", map[string]any{"amount": 800}, false))
	require.NoError(t, s.Close())

	// Reopening must not re-run migrations against existing tables.
	reopened := newStore(t, path)
	assert.Equal(t, path, reopened.Path())

	doc, err := reopened.GetDocument(ctx, "expenses", "rent")
	require.NoError(t, err)
	assert.Equal(t, 800.0, doc.Data["amount"])

	cols, err := reopened.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Collection{"expenses"}, cols)

	state := reopened.State().(sqlite.StoreState)
	assert.Equal(t, 1, state.Documents)
}

func TestSQLiteStore_DirectoryPath(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	assert.Equal(t, filepath.Join(dir, sqlite.DefaultFileName), s.Path())
}

func TestSQLiteStore_KeepsIntegerPrecision(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()
	s := newStore(t, path)

	data := map[string]any{"count": int64(math.MaxInt64), "total": uint64(math.MaxUint64), "near": int64(1<<53 + 1)}
	require.NoError(t, s.SetDocument(ctx, "counters", "c", data, false))

	doc, err := newStore(t, path).GetDocument(ctx, "counters", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), doc.Data["count"])
	assert.Equal(t, uint64(math.MaxUint64), doc.Data["total"])
	assert.Equal(t, int64(1<<53+1), doc.Data["near"])
}

func TestSQLiteStore_ReportsCorruptRows(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, t.TempDir())
	require.NoError(t, s.SetDocument(ctx, "expenses", "good", map[string]any{"n": 1}, false))
	require.NoError(t, s.SetDocument(ctx, "expenses", "bad", map[string]any{"n": 2}, false))

	db, err := sql.Open("sqlite", s.Path())
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(ctx, "UPDATE documents SET data = '{not json' WHERE collection = 'expenses' AND id = 'bad'")
	require.NoError(t, err)

	var drops []core.DropEvent
	reporting := core.WithDropReporter(ctx, func(e core.DropEvent) { drops = append(drops, e) })
	docs, err := s.QueryDocuments(reporting, "expenses", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "good", docs[0].ID)
	require.Len(t, drops, 1)
	assert.Equal(t, "bad", drops[0].ID)
}
