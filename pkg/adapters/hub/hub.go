// Package hub fans store changes out to subscribers.
//
// Adapters without native push support (memory, fs, sqlite) publish an
// Event after every committed write; the hub re-reads the affected query
// for each live subscription and pushes the complete result. Bursts of
// changes are coalesced, so a slow consumer always receives the latest
// state instead of a backlog.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/firekit/pkg/core"
)

// DefaultEventBuffer is the Watch channel capacity when none is configured.
const DefaultEventBuffer = 100

// Loader reads the current state on behalf of a subscription.
type Loader interface {
	GetDocument(ctx context.Context, c core.Collection, id string) (core.Document, error)
	QueryDocuments(ctx context.Context, c core.Collection, f core.Filter) ([]core.Document, error)
}

// Hub tracks live subscriptions for one store.
type Hub struct {
	loader      Loader
	logger      *slog.Logger
	eventBuffer int

	mu       sync.Mutex
	nextID   uint64
	subs     map[uint64]*subscriber
	watchers map[uint64]*watcher
	closed   bool
}

type subscriber struct {
	collection core.Collection
	docID      string // empty for query subscriptions
	dirty      chan struct{}
}

type watcher struct {
	collection core.Collection
	events     chan core.Event
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithEventBuffer sets the capacity of Watch channels. Zero keeps the default.
func WithEventBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.eventBuffer = size
		}
	}
}

// New creates a hub reading state through loader.
func New(loader Loader, opts ...Option) *Hub {
	h := &Hub{
		loader:      loader,
		logger:      slog.New(slog.DiscardHandler),
		eventBuffer: DefaultEventBuffer,
		subs:        make(map[uint64]*subscriber),
		watchers:    make(map[uint64]*watcher),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ErrClosed is returned when subscribing to a closed hub.
var ErrClosed = errors.New("hub is closed")

func (h *Hub) register(s *subscriber) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrClosed
	}
	h.nextID++
	h.subs[h.nextID] = s
	return h.nextID, nil
}

func (h *Hub) unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Subscribe streams query results for c filtered by f.
func (h *Hub) Subscribe(ctx context.Context, c core.Collection, f core.Filter) (<-chan core.QuerySnapshot, error) {
	s := &subscriber{collection: c, dirty: make(chan struct{}, 1)}
	id, err := h.register(s)
	if err != nil {
		return nil, err
	}

	out := make(chan core.QuerySnapshot)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		defer h.unregister(id)

		for {
			docs, err := h.loader.QueryDocuments(ctx, c, f)
			if ctx.Err() != nil {
				return nil
			}
			snap := core.QuerySnapshot{Documents: docs, Err: err}
			if err == nil && snap.Documents == nil {
				snap.Documents = []core.Document{}
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return nil
			}
			select {
			case <-s.dirty:
			case <-ctx.Done():
				return nil
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		h.logger.Error("query subscription failed", "collection", c, "error", err)
	}))

	return out, nil
}

// SubscribeDocument streams the state of a single document.
func (h *Hub) SubscribeDocument(ctx context.Context, c core.Collection, docID string) (<-chan core.DocumentSnapshot, error) {
	s := &subscriber{collection: c, docID: docID, dirty: make(chan struct{}, 1)}
	id, err := h.register(s)
	if err != nil {
		return nil, err
	}

	out := make(chan core.DocumentSnapshot)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		defer h.unregister(id)

		for {
			doc, err := h.loader.GetDocument(ctx, c, docID)
			if ctx.Err() != nil {
				return nil
			}
			snap := core.DocumentSnapshot{Document: doc, Exists: err == nil}
			if err != nil && !errors.Is(err, core.ErrNotFound) {
				snap.Err = err
			}
			if !snap.Exists {
				snap.Document = core.Document{ID: docID}
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return nil
			}
			select {
			case <-s.dirty:
			case <-ctx.Done():
				return nil
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		h.logger.Error("document subscription failed", "collection", c, "id", docID, "error", err)
	}))

	return out, nil
}

// Watch streams raw change events for c. An empty collection watches everything.
func (h *Hub) Watch(ctx context.Context, c core.Collection) (<-chan core.Event, error) {
	w := &watcher{collection: c, events: make(chan core.Event, h.eventBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.nextID++
	id := h.nextID
	h.watchers[id] = w
	h.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.watchers[id]; ok {
			delete(h.watchers, id)
			close(w.events)
		}
		return nil
	})

	return w.events, nil
}

// Publish notifies every subscription affected by the given events.
func (h *Hub) Publish(events ...core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range events {
		for _, s := range h.subs {
			if s.collection != e.Collection {
				continue
			}
			if s.docID != "" && s.docID != e.ID {
				continue
			}
			select {
			case s.dirty <- struct{}{}:
			default: // already pending
			}
		}

		for _, w := range h.watchers {
			if w.collection != "" && w.collection != e.Collection {
				continue
			}
			select {
			case w.events <- e:
			default:
				h.logger.Warn("event buffer full, dropping event", "event", e.String())
			}
		}
	}
}

// Len returns the number of live subscriptions and watchers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) + len(h.watchers)
}

// Close ends every watcher. Query and document subscriptions end with their contexts.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, w := range h.watchers {
		close(w.events)
		delete(h.watchers, id)
	}
	return nil
}

// String describes the hub for logs.
func (h *Hub) String() string {
	return fmt.Sprintf("hub(%d subscribers)", h.Len())
}
