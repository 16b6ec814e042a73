package typed

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/firekit/pkg/core"
)

// Manager performs CRUD operations and subscriptions for entities of type T
// against one collection. It holds no state besides its binding and
// diagnostics counters, so it is safe for concurrent use.
type Manager[T Entity] struct {
	store      core.Store
	collection core.Collection
	logger     *slog.Logger
	onDrop     func(core.DropEvent)
	strictIDs  bool
	dropped    atomic.Uint64
}

// NewManager binds a manager to the collection declared by T.
func NewManager[T Entity](store core.Store, opts ...Option) *Manager[T] {
	s := applyOptions(opts)
	collection := s.collection
	if collection == "" {
		collection = CollectionOf[T]()
	}
	return &Manager[T]{
		store:      store,
		collection: collection,
		logger:     s.logger.With("collection", string(collection)),
		onDrop:     s.onDrop,
		strictIDs:  s.strictIDs,
	}
}

// Collection returns the bound collection.
func (m *Manager[T]) Collection() core.Collection {
	return m.collection
}

// Store returns the underlying store client.
func (m *Manager[T]) Store() core.Store {
	return m.store
}

// Dropped returns how many documents were skipped so far because they could not be decoded.
func (m *Manager[T]) Dropped() uint64 {
	return m.dropped.Load()
}

// Save writes obj with merge semantics and returns its document ID.
// Entities without an ID get a fresh one allocated by the store.
func (m *Manager[T]) Save(ctx context.Context, obj T) (string, error) {
	id, data, err := Encode(obj)
	if err != nil {
		return "", &core.EncodeError{Collection: m.collection, Err: err}
	}
	if id == "" {
		id = m.store.AllocateID(m.collection)
	}

	if err := m.store.SetDocument(ctx, m.collection, id, data, true); err != nil {
		return "", core.Transport("save", err)
	}
	m.logger.Debug("entity saved", "id", id)
	return id, nil
}

// Get fetches one entity. A missing document yields (nil, nil).
func (m *Manager[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := m.store.GetDocument(ctx, m.collection, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, core.Transport("get", err)
	}

	obj, err := Decode[T](doc)
	if err != nil {
		return nil, &core.DecodeError{Collection: m.collection, ID: doc.ID, Err: err}
	}
	return &obj, nil
}

// GetAll returns every decodable entity of the collection.
// Documents that fail to decode are skipped and reported through the drop diagnostics.
func (m *Manager[T]) GetAll(ctx context.Context) ([]T, error) {
	return m.GetAllFiltered(ctx, nil)
}

// GetAllFiltered is GetAll restricted by a store-side filter.
func (m *Manager[T]) GetAllFiltered(ctx context.Context, f core.Filter) ([]T, error) {
	docs, err := m.store.QueryDocuments(m.reporting(ctx), m.collection, f)
	if err != nil {
		return nil, core.Transport("query", err)
	}
	return m.decodeAll(docs), nil
}

// Update merges obj into its existing document.
// Entities without an ID are skipped (see WithStrictIDs).
func (m *Manager[T]) Update(ctx context.Context, obj T) error {
	id := obj.DocumentID()
	if id == "" {
		return m.skip("update")
	}

	_, data, err := Encode(obj)
	if err != nil {
		return &core.EncodeError{Collection: m.collection, Err: err}
	}
	if err := m.store.SetDocument(ctx, m.collection, id, data, true); err != nil {
		return core.Transport("update", err)
	}
	return nil
}

// Delete removes the document backing obj.
// Entities without an ID are skipped (see WithStrictIDs).
func (m *Manager[T]) Delete(ctx context.Context, obj T) error {
	id := obj.DocumentID()
	if id == "" {
		return m.skip("delete")
	}
	if err := m.store.DeleteDocument(ctx, m.collection, id); err != nil {
		return core.Transport("delete", err)
	}
	return nil
}

func (m *Manager[T]) skip(op string) error {
	if m.strictIDs {
		return core.ErrPreconditionSkipped
	}
	m.logger.Debug("entity has no id, skipping", "op", op)
	return nil
}

// Listen calls fn with the complete collection on every change.
func (m *Manager[T]) Listen(ctx context.Context, fn func([]T, error)) (*Subscription, error) {
	return m.ListenFiltered(ctx, nil, fn)
}

// ListenFiltered calls fn with the complete matching set on every change.
// Undecodable documents are dropped individually. Store errors are passed
// to fn as core.ErrTransport failures.
func (m *Manager[T]) ListenFiltered(ctx context.Context, f core.Filter, fn func([]T, error)) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(m.reporting(ctx))
	snaps, err := m.store.Subscribe(subCtx, m.collection, f)
	if err != nil {
		cancel()
		return nil, core.Transport("listen", err)
	}

	sub := newSubscription(cancel)
	lifecycle.Go(subCtx, func(ctx context.Context) error {
		defer sub.finish()
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				if snap.Err != nil {
					fn(nil, core.Transport("listen", snap.Err))
					continue
				}
				fn(m.decodeAll(snap.Documents), nil)
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		m.logger.Error("listener callback failed", "error", err)
	}))

	return sub, nil
}

// ListenDocument calls fn with the entity stored under id on every change.
// Events for a missing document are not delivered; a document that cannot be
// decoded is reported to fn as a *core.DecodeError.
func (m *Manager[T]) ListenDocument(ctx context.Context, id string, fn func(T, error)) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	snaps, err := m.store.SubscribeDocument(subCtx, m.collection, id)
	if err != nil {
		cancel()
		return nil, core.Transport("listen", err)
	}

	sub := newSubscription(cancel)
	lifecycle.Go(subCtx, func(ctx context.Context) error {
		defer sub.finish()
		var zero T
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				if snap.Err != nil {
					fn(zero, core.Transport("listen", snap.Err))
					continue
				}
				if !snap.Exists {
					continue
				}
				obj, err := Decode[T](snap.Document)
				if err != nil {
					fn(zero, &core.DecodeError{Collection: m.collection, ID: snap.Document.ID, Err: err})
					continue
				}
				fn(obj, nil)
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		m.logger.Error("document listener callback failed", "id", id, "error", err)
	}))

	return sub, nil
}

// decodeAll converts documents, dropping the ones that do not fit T.
func (m *Manager[T]) decodeAll(docs []core.Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		obj, err := Decode[T](doc)
		if err != nil {
			m.drop(core.DropEvent{Collection: m.collection, ID: doc.ID, Err: err})
			continue
		}
		out = append(out, obj)
	}
	return out
}

// reporting routes documents the store skips into the drop accounting.
func (m *Manager[T]) reporting(ctx context.Context) context.Context {
	return core.WithDropReporter(ctx, m.drop)
}

func (m *Manager[T]) drop(e core.DropEvent) {
	m.dropped.Add(1)
	m.logger.Warn("dropping undecodable document", "id", e.ID, "error", e.Err)
	if m.onDrop != nil {
		m.onDrop(e)
	}
}
