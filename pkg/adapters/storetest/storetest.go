// Package storetest is a conformance suite shared by every core.Store adapter.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/firekit/pkg/core"
)

// Timeout bounds every wait on a subscription.
const Timeout = 5 * time.Second

// Run exercises the core.Store contract against stores produced by factory.
func Run(t *testing.T, factory func(t *testing.T) core.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := factory(t)
		_, err := s.GetDocument(context.Background(), "users", "nobody")
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrNotFound), "expected ErrNotFound, got %v", err)
	})

	t.Run("SetGetReplace", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		require.NoError(t, s.SetDocument(ctx, "users", "alice", map[string]any{"name": "Alice", "age": 30}, false))
		doc, err := s.GetDocument(ctx, "users", "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", doc.ID)
		assert.Equal(t, "Alice", doc.Data["name"])
		assert.EqualValues(t, 30, doc.Data["age"])

		require.NoError(t, s.SetDocument(ctx, "users", "alice", map[string]any{"name": "Alice B."}, false))
		doc, err = s.GetDocument(ctx, "users", "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice B.", doc.Data["name"])
		_, hasAge := doc.Data["age"]
		assert.False(t, hasAge, "replace must drop fields missing from the payload")
	})

	t.Run("MergePreservesFields", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		require.NoError(t, s.SetDocument(ctx, "users", "bob", map[string]any{
			"name":    "Bob",
			"age":     25,
			"address": map[string]any{"city": "Lisbon", "zip": "1000"},
		}, false))
		require.NoError(t, s.SetDocument(ctx, "users", "bob", map[string]any{
			"age":     26,
			"address": map[string]any{"city": "Porto"},
		}, true))

		doc, err := s.GetDocument(ctx, "users", "bob")
		require.NoError(t, err)
		assert.Equal(t, "Bob", doc.Data["name"])
		assert.EqualValues(t, 26, doc.Data["age"])
		addr, ok := doc.Data["address"].(map[string]any)
		require.True(t, ok, "address should be a map, got %T", doc.Data["address"])
		assert.Equal(t, "Porto", addr["city"])
		assert.Equal(t, "1000", addr["zip"])
	})

	t.Run("AllocateIDUnique", func(t *testing.T) {
		s := factory(t)
		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			id := s.AllocateID("users")
			require.NotEmpty(t, id)
			require.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})

	t.Run("QueryAndFilter", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		seed(t, s, "tasks", map[string]map[string]any{
			"t1": {"status": "open", "priority": 1, "tags": []any{"go"}},
			"t2": {"status": "done", "priority": 2, "tags": []any{"rust"}},
			"t3": {"status": "open", "priority": 3, "tags": []any{"go", "db"}},
		})

		all, err := s.QueryDocuments(ctx, "tasks", nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		open, err := s.QueryDocuments(ctx, "tasks", core.Where("status", core.OpEqual, "open"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"t1", "t3"}, ids(open))

		high, err := s.QueryDocuments(ctx, "tasks", core.And(
			core.Where("status", core.OpEqual, "open"),
			core.Where("priority", core.OpGreater, 1),
		))
		require.NoError(t, err)
		assert.Equal(t, []string{"t3"}, ids(high))

		tagged, err := s.QueryDocuments(ctx, "tasks", core.Where("tags", core.OpArrayContains, "go"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"t1", "t3"}, ids(tagged))

		either, err := s.QueryDocuments(ctx, "tasks", core.Or(
			core.Where("status", core.OpEqual, "done"),
			core.Where("priority", core.OpEqual, 3),
		))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"t2", "t3"}, ids(either))

		none, err := s.QueryDocuments(ctx, "empty", nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Delete", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		require.NoError(t, s.SetDocument(ctx, "users", "carol", map[string]any{"name": "Carol"}, false))
		require.NoError(t, s.DeleteDocument(ctx, "users", "carol"))
		_, err := s.GetDocument(ctx, "users", "carol")
		assert.True(t, errors.Is(err, core.ErrNotFound))

		assert.NoError(t, s.DeleteDocument(ctx, "users", "carol"), "deleting a missing document is not an error")
	})

	t.Run("SubscribeDeliversInitialAndUpdates", func(t *testing.T) {
		s := factory(t)
		ctx, cancel := context.WithTimeout(context.Background(), 2*Timeout)
		defer cancel()

		seed(t, s, "tasks", map[string]map[string]any{
			"t1": {"status": "open"},
			"t2": {"status": "done"},
		})

		snaps, err := s.Subscribe(ctx, "tasks", core.Where("status", core.OpEqual, "open"))
		require.NoError(t, err)

		first := next(t, snaps)
		require.NoError(t, first.Err)
		assert.Equal(t, []string{"t1"}, ids(first.Documents))

		require.NoError(t, s.SetDocument(ctx, "tasks", "t3", map[string]any{"status": "open"}, false))

		Eventually(t, snaps, func(snap core.QuerySnapshot) bool {
			return snap.Err == nil && len(snap.Documents) == 2
		})
	})

	t.Run("SubscribeDocument", func(t *testing.T) {
		s := factory(t)
		ctx, cancel := context.WithTimeout(context.Background(), 2*Timeout)
		defer cancel()

		snaps, err := s.SubscribeDocument(ctx, "users", "dave")
		require.NoError(t, err)

		first := nextDoc(t, snaps)
		require.NoError(t, first.Err)
		assert.False(t, first.Exists)

		require.NoError(t, s.SetDocument(ctx, "users", "dave", map[string]any{"name": "Dave"}, false))

		for {
			snap := nextDoc(t, snaps)
			require.NoError(t, snap.Err)
			if snap.Exists {
				assert.Equal(t, "Dave", snap.Document.Data["name"])
				break
			}
		}
	})

	t.Run("SubscribeClosesOnCancel", func(t *testing.T) {
		s := factory(t)
		ctx, cancel := context.WithCancel(context.Background())

		snaps, err := s.Subscribe(ctx, "tasks", nil)
		require.NoError(t, err)
		next(t, snaps)
		cancel()

		deadline := time.After(Timeout)
		for {
			select {
			case _, ok := <-snaps:
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("subscription channel was not closed after cancel")
			}
		}
	})
}

func seed(t *testing.T, s core.Store, c core.Collection, docs map[string]map[string]any) {
	t.Helper()
	for id, data := range docs {
		require.NoError(t, s.SetDocument(context.Background(), c, id, data, false))
	}
}

func ids(docs []core.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func next(t *testing.T, ch <-chan core.QuerySnapshot) core.QuerySnapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "subscription closed unexpectedly")
		return snap
	case <-time.After(Timeout):
		t.Fatal("timeout waiting for snapshot")
		return core.QuerySnapshot{}
	}
}

func nextDoc(t *testing.T, ch <-chan core.DocumentSnapshot) core.DocumentSnapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "subscription closed unexpectedly")
		return snap
	case <-time.After(Timeout):
		t.Fatal("timeout waiting for document snapshot")
		return core.DocumentSnapshot{}
	}
}

// Eventually drains snapshots until cond holds or Timeout elapses.
func Eventually(t *testing.T, ch <-chan core.QuerySnapshot, cond func(core.QuerySnapshot) bool) core.QuerySnapshot {
	t.Helper()
	deadline := time.After(Timeout)
	for {
		select {
		case snap, ok := <-ch:
			require.True(t, ok, "subscription closed unexpectedly")
			if cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("condition not met before timeout")
			return core.QuerySnapshot{}
		}
	}
}
