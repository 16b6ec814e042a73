package typed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/firekit/pkg/adapters/memory"
	"github.com/aretw0/firekit/pkg/core"
)

type Expense struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Amount   float64  `json:"amount"`
	Category string   `json:"category,omitempty"`
	Note     string   `json:"note,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Paid     bool     `json:"paid,omitempty"`
}

func (e Expense) DocumentID() string        { return e.ID }
func (Expense) Collection() core.Collection { return "expenses" }

const waitTimeout = 5 * time.Second

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New(memory.Config{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// countingStore records mutations issued through it.
type countingStore struct {
	core.Store
	writes  int
	deletes int
}

func (s *countingStore) SetDocument(ctx context.Context, c core.Collection, id string, data map[string]any, merge bool) error {
	s.writes++
	return s.Store.SetDocument(ctx, c, id, data, merge)
}

func (s *countingStore) DeleteDocument(ctx context.Context, c core.Collection, id string) error {
	s.deletes++
	return s.Store.DeleteDocument(ctx, c, id)
}

var errBackend = errors.New("backend unavailable")

// failingStore fails every call with errBackend.
type failingStore struct {
	core.Store
}

func (failingStore) GetDocument(context.Context, core.Collection, string) (core.Document, error) {
	return core.Document{}, errBackend
}

func (failingStore) SetDocument(context.Context, core.Collection, string, map[string]any, bool) error {
	return errBackend
}

func (failingStore) AllocateID(core.Collection) string { return "allocated" }

func (failingStore) QueryDocuments(context.Context, core.Collection, core.Filter) ([]core.Document, error) {
	return nil, errBackend
}

func (failingStore) DeleteDocument(context.Context, core.Collection, string) error {
	return errBackend
}

func (failingStore) Subscribe(context.Context, core.Collection, core.Filter) (<-chan core.QuerySnapshot, error) {
	return nil, errBackend
}

// scriptedStore replays a fixed sequence of query snapshots, then blocks.
type scriptedStore struct {
	core.Store
	snaps []core.QuerySnapshot
}

func (s *scriptedStore) Subscribe(ctx context.Context, _ core.Collection, _ core.Filter) (<-chan core.QuerySnapshot, error) {
	out := make(chan core.QuerySnapshot)
	go func() {
		defer close(out)
		for _, snap := range s.snaps {
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}

// waitFor blocks on changed until cond holds.
func waitFor(t *testing.T, changed func() <-chan struct{}, cond func() bool) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		ch := changed()
		if cond() {
			return
		}
		select {
		case <-ch:
		case <-deadline:
			t.Fatal("condition not met before timeout")
		}
	}
}
