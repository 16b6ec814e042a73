package typed_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/firekit/pkg/adapters/fs"
	"github.com/aretw0/firekit/pkg/adapters/sqlite"
	"github.com/aretw0/firekit/pkg/core"
	"github.com/aretw0/firekit/pkg/typed"
)

type Counter struct {
	ID    string  `json:"id,omitempty"`
	Count int64   `json:"count"`
	Total uint64  `json:"total"`
	Ratio float64 `json:"ratio"`
}

func (c Counter) DocumentID() string        { return c.ID }
func (Counter) Collection() core.Collection { return "counters" }

func localStores() map[string]func(t *testing.T) core.Store {
	return map[string]func(t *testing.T) core.Store{
		"memory": func(t *testing.T) core.Store {
			return newStore(t)
		},
		"fs-json": func(t *testing.T) core.Store {
			return openFS(t, t.TempDir(), fs.FormatJSON)
		},
		"fs-yaml": func(t *testing.T) core.Store {
			return openFS(t, t.TempDir(), fs.FormatYAML)
		},
		"sqlite": func(t *testing.T) core.Store {
			s, err := sqlite.New(context.Background(), sqlite.Config{Path: t.TempDir()})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func openFS(t *testing.T, dir, format string) *fs.Store {
	t.Helper()
	s, err := fs.New(context.Background(), fs.Config{Path: dir, Format: format})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestManager_IntegerPrecision(t *testing.T) {
	counters := []Counter{
		{ID: "above-2-53", Count: 1<<53 + 1, Total: 1<<53 + 1, Ratio: 0.5},
		{ID: "exact-2-53", Count: 1 << 53, Total: 1 << 53},
		{ID: "max", Count: math.MaxInt64, Total: math.MaxUint64, Ratio: math.MaxFloat64},
		{ID: "min", Count: math.MinInt64, Ratio: -1.25},
	}

	for name, open := range localStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := typed.NewManager[Counter](open(t))

			for _, c := range counters {
				_, err := m.Save(ctx, c)
				require.NoError(t, err)
			}
			for _, want := range counters {
				got, err := m.Get(ctx, want.ID)
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, want, *got)
			}

			all, err := m.GetAll(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, counters, all)
			assert.Zero(t, m.Dropped())

			// Neighbouring integers above 2^53 stay distinct in filters.
			got, err := m.GetAllFiltered(ctx, core.Where("count", core.OpEqual, int64(1<<53+1)))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "above-2-53", got[0].ID)

			got, err = m.GetAllFiltered(ctx, core.Where("total", core.OpGreater, uint64(math.MaxInt64)))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "max", got[0].ID)
		})
	}
}

func TestManager_CountsDocumentsTheStoreSkips(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := openFS(t, dir, fs.FormatJSON)
	require.NoError(t, store.SetDocument(ctx, "expenses", "good", map[string]any{"title": "Book"}, false))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "expenses", "bad.json"), []byte("{not json"), 0o644))

	var (
		mu    sync.Mutex
		drops []core.DropEvent
	)
	m := typed.NewManager[Expense](store, typed.WithDropHandler(func(e core.DropEvent) {
		mu.Lock()
		defer mu.Unlock()
		drops = append(drops, e)
	}))

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)
	assert.Equal(t, uint64(1), m.Dropped())

	mu.Lock()
	require.Len(t, drops, 1)
	assert.Equal(t, "bad", drops[0].ID)
	assert.Equal(t, core.Collection("expenses"), drops[0].Collection)
	assert.Error(t, drops[0].Err)
	mu.Unlock()

	l, err := typed.NewListener(ctx, m, nil)
	require.NoError(t, err)
	defer l.Release()
	assert.Equal(t, []string{"Book"}, titles(l.Objects()))
	assert.GreaterOrEqual(t, m.Dropped(), uint64(2), "the listener's reads count too")
}
