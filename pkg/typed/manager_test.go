package typed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/firekit/pkg/core"
	"github.com/aretw0/firekit/pkg/typed"
)

func TestManager_SaveAllocatesID(t *testing.T) {
	ctx := context.Background()
	m := typed.NewManager[Expense](newStore(t))

	e := Expense{Title: "Coffee", Amount: 3.5, Tags: []string{"food"}}
	id, err := m.Save(ctx, e)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)

	e.ID = id
	assert.Equal(t, e, *got)
}

func TestManager_SaveMergesExisting(t *testing.T) {
	ctx := context.Background()
	m := typed.NewManager[Expense](newStore(t))

	_, err := m.Save(ctx, Expense{ID: "lunch", Title: "Lunch", Amount: 12, Note: "team"})
	require.NoError(t, err)

	id, err := m.Save(ctx, Expense{ID: "lunch", Title: "Team lunch", Amount: 14})
	require.NoError(t, err)
	assert.Equal(t, "lunch", id)

	got, err := m.Get(ctx, "lunch")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Team lunch", got.Title)
	assert.Equal(t, 14.0, got.Amount)
	assert.Equal(t, "team", got.Note, "fields absent from the payload must survive")
}

func TestManager_GetMissing(t *testing.T) {
	m := typed.NewManager[Expense](newStore(t))
	got, err := m.Get(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestManager_MissingIDIsNoop(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: newStore(t)}
	m := typed.NewManager[Expense](store)

	_, err := m.Save(ctx, Expense{ID: "keep", Title: "Keep me", Amount: 1})
	require.NoError(t, err)
	writes := store.writes

	assert.NoError(t, m.Update(ctx, Expense{Title: "ghost"}))
	assert.NoError(t, m.Delete(ctx, Expense{Title: "ghost"}))
	assert.Equal(t, writes, store.writes)
	assert.Zero(t, store.deletes)

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, "Keep me", all[0].Title)
}

func TestManager_StrictIDs(t *testing.T) {
	ctx := context.Background()
	m := typed.NewManager[Expense](newStore(t), typed.WithStrictIDs(true))

	err := m.Update(ctx, Expense{Title: "ghost"})
	assert.ErrorIs(t, err, core.ErrPreconditionSkipped)

	err = m.Delete(ctx, Expense{Title: "ghost"})
	assert.ErrorIs(t, err, core.ErrPreconditionSkipped)
}

func TestManager_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	m := typed.NewManager[Expense](newStore(t))

	id, err := m.Save(ctx, Expense{Title: "Taxi", Amount: 20, Note: "airport"})
	require.NoError(t, err)

	require.NoError(t, m.Update(ctx, Expense{ID: id, Title: "Taxi", Amount: 25}))
	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 25.0, got.Amount)
	assert.Equal(t, "airport", got.Note)

	require.NoError(t, m.Delete(ctx, *got))
	got, err = m.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestManager_GetAllDropsMalformed(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.SetDocument(ctx, "expenses", "good", map[string]any{"title": "Book", "amount": 9.9}, false))
	require.NoError(t, store.SetDocument(ctx, "expenses", "bad", map[string]any{"title": "Broken", "amount": "lots"}, false))

	var drops []core.DropEvent
	m := typed.NewManager[Expense](store, typed.WithDropHandler(func(e core.DropEvent) {
		drops = append(drops, e)
	}))

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)

	assert.Equal(t, uint64(1), m.Dropped())
	require.Len(t, drops, 1)
	assert.Equal(t, "bad", drops[0].ID)
	assert.Equal(t, core.Collection("expenses"), drops[0].Collection)
}

func TestManager_GetDecodeError(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.SetDocument(ctx, "expenses", "bad", map[string]any{"amount": "lots"}, false))

	m := typed.NewManager[Expense](store)
	got, err := m.Get(ctx, "bad")
	assert.Nil(t, got)

	var decodeErr *core.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "bad", decodeErr.ID)
}

func TestManager_GetAllFiltered(t *testing.T) {
	ctx := context.Background()
	m := typed.NewManager[Expense](newStore(t))

	for _, e := range []Expense{
		{ID: "a", Title: "Bread", Amount: 2, Category: "food"},
		{ID: "b", Title: "Bus", Amount: 3, Category: "transport"},
		{ID: "c", Title: "Dinner", Amount: 40, Category: "food"},
	} {
		_, err := m.Save(ctx, e)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter core.Filter
		want   []string
	}{
		{"equality", core.Where("category", core.OpEqual, "food"), []string{"a", "c"}},
		{"range", core.Where("amount", core.OpGreaterOrEqual, 3), []string{"b", "c"}},
		{"and", core.And(core.Where("category", core.OpEqual, "food"), core.Where("amount", core.OpLess, 10)), []string{"a"}},
		{"none", core.Where("category", core.OpEqual, "rent"), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.GetAllFiltered(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestManager_TransportErrors(t *testing.T) {
	ctx := context.Background()
	m := typed.NewManager[Expense](failingStore{})

	_, err := m.Save(ctx, Expense{Title: "x"})
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.ErrorIs(t, err, errBackend)

	_, err = m.Get(ctx, "x")
	assert.ErrorIs(t, err, core.ErrTransport)

	_, err = m.GetAll(ctx)
	assert.ErrorIs(t, err, core.ErrTransport)

	err = m.Delete(ctx, Expense{ID: "x"})
	assert.ErrorIs(t, err, core.ErrTransport)

	_, err = m.Listen(ctx, func([]Expense, error) {})
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestManager_WithCollection(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m := typed.NewManager[Expense](store, typed.WithCollection("archive"))
	assert.Equal(t, core.Collection("archive"), m.Collection())

	_, err := m.Save(ctx, Expense{ID: "old", Title: "Old"})
	require.NoError(t, err)

	_, err = store.GetDocument(ctx, "archive", "old")
	assert.NoError(t, err)
	_, err = store.GetDocument(ctx, "expenses", "old")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestManager_Listen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	m := typed.NewManager[Expense](newStore(t))

	_, err := m.Save(ctx, Expense{ID: "a", Title: "A", Amount: 1})
	require.NoError(t, err)

	updates := make(chan []Expense, 16)
	sub, err := m.Listen(ctx, func(items []Expense, err error) {
		assert.NoError(t, err)
		updates <- items
	})
	require.NoError(t, err)
	defer sub.Cancel()

	first := <-updates
	assert.Len(t, first, 1)

	_, err = m.Save(ctx, Expense{ID: "b", Title: "B", Amount: 2})
	require.NoError(t, err)

	for {
		select {
		case items := <-updates:
			if len(items) == 2 {
				sub.Cancel()
				sub.Cancel()
				select {
				case <-sub.Done():
				case <-time.After(waitTimeout):
					t.Fatal("subscription did not stop")
				}
				return
			}
		case <-ctx.Done():
			t.Fatal("timeout waiting for second update")
		}
	}
}

func TestManager_ListenDocument(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	store := newStore(t)
	m := typed.NewManager[Expense](store)

	type result struct {
		e   Expense
		err error
	}
	results := make(chan result, 16)
	sub, err := m.ListenDocument(ctx, "rent", func(e Expense, err error) {
		results <- result{e, err}
	})
	require.NoError(t, err)
	defer sub.Cancel()

	// The document does not exist yet: nothing is delivered.
	_, err = m.Save(ctx, Expense{ID: "rent", Title: "Rent", Amount: 800})
	require.NoError(t, err)

	select {
	case r := <-results:
		require.NoError(t, r.err)
		assert.Equal(t, "Rent", r.e.Title)
		assert.Equal(t, "rent", r.e.ID)
	case <-ctx.Done():
		t.Fatal("timeout waiting for document")
	}

	require.NoError(t, store.SetDocument(ctx, "expenses", "rent", map[string]any{"amount": "a lot"}, true))
	for {
		select {
		case r := <-results:
			if r.err == nil {
				continue
			}
			var decodeErr *core.DecodeError
			assert.ErrorAs(t, r.err, &decodeErr)
			return
		case <-ctx.Done():
			t.Fatal("timeout waiting for decode error")
		}
	}
}
