package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/firekit/pkg/adapters/memory"
	"github.com/aretw0/firekit/pkg/adapters/storetest"
	"github.com/aretw0/firekit/pkg/core"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Store {
		s := memory.New(memory.Config{})
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStore_IsolatesCallerMaps(t *testing.T) {
	s := memory.New(memory.Config{})
	ctx := context.Background()

	payload := map[string]any{"name": "Alice"}
	require.NoError(t, s.SetDocument(ctx, "users", "alice", payload, false))
	payload["name"] = "Mallory"

	doc, err := s.GetDocument(ctx, "users", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", doc.Data["name"])

	doc.Data["name"] = "Eve"
	again, err := s.GetDocument(ctx, "users", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.Data["name"])
}

func TestMemoryStore_WatchAndCollections(t *testing.T) {
	s := memory.New(memory.Config{EventBuffer: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.Watch(ctx, "users")
	require.NoError(t, err)

	require.NoError(t, s.SetDocument(ctx, "users", "a", map[string]any{"n": 1}, false))
	require.NoError(t, s.SetDocument(ctx, "users", "a", map[string]any{"n": 2}, true))
	require.NoError(t, s.SetDocument(ctx, "other", "x", map[string]any{"n": 1}, false))
	require.NoError(t, s.DeleteDocument(ctx, "users", "a"))

	var got []core.EventType
	for len(got) < 3 {
		select {
		case e := <-events:
			assert.Equal(t, core.Collection("users"), e.Collection)
			got = append(got, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("timeout, got %v", got)
		}
	}
	assert.Equal(t, []core.EventType{core.EventCreate, core.EventModify, core.EventDelete}, got)

	cols, err := s.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Collection{"other"}, cols)

	state, ok := s.State().(memory.StoreState)
	require.True(t, ok)
	assert.Equal(t, 1, state.Documents)
}
