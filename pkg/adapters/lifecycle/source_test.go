package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/firekit/pkg/adapters/lifecycle"
	"github.com/aretw0/firekit/pkg/adapters/memory"
	"github.com/aretw0/firekit/pkg/core"
)

func TestSource_BridgesStoreEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.New(memory.Config{})
	defer store.Close()

	src := lifecycle.NewSource(store, "expenses")
	require.NoError(t, src.Start(ctx))

	require.NoError(t, store.SetDocument(ctx, "incomes", "salary", map[string]any{}, false))
	require.NoError(t, store.SetDocument(ctx, "expenses", "lunch", map[string]any{}, false))

	select {
	case e := <-src.Events():
		ev, ok := e.(core.Event)
		require.True(t, ok, "unexpected event type %T", e)
		assert.Equal(t, core.Collection("expenses"), ev.Collection)
		assert.Equal(t, "lunch", ev.ID)
		assert.Contains(t, e.String(), "lunch")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	cancel()
	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("source did not close after cancel")
	}
}
