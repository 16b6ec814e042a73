// Package memory provides an in-process core.Store. It is the default store
// for tests and for ephemeral sessions.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"

	"github.com/aretw0/firekit/pkg/adapters/hub"
	"github.com/aretw0/firekit/pkg/adapters/query"
	"github.com/aretw0/firekit/pkg/core"
)

// Config holds the configuration for the in-memory store.
type Config struct {
	Logger      *slog.Logger
	EventBuffer int
}

// Store keeps every collection in a map guarded by a RWMutex.
type Store struct {
	mu          sync.RWMutex
	collections map[core.Collection]map[string]map[string]any
	hub         *hub.Hub
	logger      *slog.Logger
}

// New creates an empty store.
func New(config Config) *Store {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{
		collections: make(map[core.Collection]map[string]map[string]any),
		logger:      logger,
	}
	s.hub = hub.New(s, hub.WithLogger(logger), hub.WithEventBuffer(config.EventBuffer))
	return s
}

var (
	_ core.Store            = (*Store)(nil)
	_ core.CollectionLister = (*Store)(nil)
	_ core.Watchable        = (*Store)(nil)
	_ core.Closer           = (*Store)(nil)
)

// GetDocument returns a deep copy of the stored document.
func (s *Store) GetDocument(ctx context.Context, c core.Collection, id string) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[c][id]
	if !ok {
		return core.Document{}, fmt.Errorf("%w: %s/%s", core.ErrNotFound, c, id)
	}
	return core.Document{ID: id, Data: query.Clone(data)}, nil
}

// SetDocument writes or merges a document.
func (s *Store) SetDocument(ctx context.Context, c core.Collection, id string, data map[string]any, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: document has no ID", core.ErrInvalidArgument)
	}
	normalized, _ := query.Normalize(data).(map[string]any)
	if normalized == nil {
		normalized = make(map[string]any)
	}

	s.mu.Lock()
	docs, ok := s.collections[c]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[c] = docs
	}
	prev, existed := docs[id]
	if merge && existed {
		docs[id] = query.Merge(prev, normalized)
	} else {
		docs[id] = normalized
	}
	s.mu.Unlock()

	eType := core.EventCreate
	if existed {
		eType = core.EventModify
	}
	s.logger.Debug("document written", "collection", c, "id", id, "merge", merge)
	s.hub.Publish(core.NewEvent(eType, c, id))
	return nil
}

// AllocateID returns a random UUID.
func (s *Store) AllocateID(c core.Collection) string {
	return uuid.NewString()
}

// QueryDocuments evaluates f against every document in c.
func (s *Store) QueryDocuments(ctx context.Context, c core.Collection, f core.Filter) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	docs := make([]core.Document, 0, len(s.collections[c]))
	for id, data := range s.collections[c] {
		docs = append(docs, core.Document{ID: id, Data: query.Clone(data)})
	}
	s.mu.RUnlock()

	return query.Filter(docs, f)
}

// DeleteDocument removes a document if present.
func (s *Store) DeleteDocument(ctx context.Context, c core.Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	_, existed := s.collections[c][id]
	delete(s.collections[c], id)
	s.mu.Unlock()

	if existed {
		s.hub.Publish(core.NewEvent(core.EventDelete, c, id))
	}
	return nil
}

// Subscribe streams the matching set of c on every change.
func (s *Store) Subscribe(ctx context.Context, c core.Collection, f core.Filter) (<-chan core.QuerySnapshot, error) {
	return s.hub.Subscribe(ctx, c, f)
}

// SubscribeDocument streams one document on every change.
func (s *Store) SubscribeDocument(ctx context.Context, c core.Collection, id string) (<-chan core.DocumentSnapshot, error) {
	return s.hub.SubscribeDocument(ctx, c, id)
}

// Watch streams raw change events.
func (s *Store) Watch(ctx context.Context, c core.Collection) (<-chan core.Event, error) {
	return s.hub.Watch(ctx, c)
}

// Collections lists every non-empty collection.
func (s *Store) Collections(ctx context.Context) ([]core.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Collection, 0, len(s.collections))
	for c, docs := range s.collections {
		if len(docs) > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Close releases watchers.
func (s *Store) Close() error {
	return s.hub.Close()
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Collections   int `json:"collections"`
	Documents     int `json:"documents"`
	Subscriptions int `json:"subscriptions"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, docs := range s.collections {
		total += len(docs)
	}
	return StoreState{
		Collections:   len(s.collections),
		Documents:     total,
		Subscriptions: s.hub.Len(),
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "memory-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
