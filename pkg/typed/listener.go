package typed

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"

	"github.com/aretw0/firekit/pkg/core"
)

// ListenerSnapshot is a consistent read of a Listener.
type ListenerSnapshot[T Entity] struct {
	Objects      []T
	ErrorMessage string
	Version      uint64
}

// Listener keeps the latest result of a collection query up to date.
//
// The subscription goroutine is the only writer; any number of goroutines
// may read. Each event replaces either the objects or the error message,
// never both.
type Listener[T Entity] struct {
	manager *Manager[T]
	filter  core.Filter
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.RWMutex
	objects  []T
	errMsg   string
	version  uint64
	changed  chan struct{}
	released bool
}

// NewListener subscribes to the query described by f (nil for the whole
// collection). It returns once the current matching set has been applied.
// The subscription lives until Release is called or ctx is done.
func NewListener[T Entity](ctx context.Context, m *Manager[T], f core.Filter) (*Listener[T], error) {
	subCtx, cancel := context.WithCancel(m.reporting(ctx))
	snaps, err := m.store.Subscribe(subCtx, m.collection, f)
	if err != nil {
		cancel()
		return nil, core.Transport("listen", err)
	}

	l := &Listener[T]{
		manager: m,
		filter:  f,
		cancel:  cancel,
		done:    make(chan struct{}),
		objects: []T{},
		changed: make(chan struct{}),
	}

	select {
	case snap, ok := <-snaps:
		if !ok {
			cancel()
			return nil, fmt.Errorf("subscription to %s closed before the first snapshot", m.collection)
		}
		l.apply(snap)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	lifecycle.Go(subCtx, func(ctx context.Context) error {
		defer close(l.done)
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				l.apply(snap)
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		m.logger.Error("listener update failed", "error", err)
	}))

	m.logger.Debug("listener subscribed", "filter", filterString(f))
	return l, nil
}

func (l *Listener[T]) apply(snap core.QuerySnapshot) {
	var objects []T
	errMsg := ""
	switch {
	case snap.Err != nil:
		errMsg = snap.Err.Error()
	case snap.Documents == nil:
		errMsg = core.ErrEmptyResult.Error()
	default:
		objects = l.manager.decodeAll(snap.Documents)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	if errMsg != "" {
		l.errMsg = errMsg
	} else {
		l.objects = objects
	}
	l.version++
	close(l.changed)
	l.changed = make(chan struct{})
}

// Objects returns a copy of the latest matching set.
func (l *Listener[T]) Objects() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]T, len(l.objects))
	copy(out, l.objects)
	return out
}

// ErrorMessage returns the last error reported by the subscription, or "".
func (l *Listener[T]) ErrorMessage() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.errMsg
}

// Snapshot reads objects, error message and version atomically.
func (l *Listener[T]) Snapshot() ListenerSnapshot[T] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]T, len(l.objects))
	copy(out, l.objects)
	return ListenerSnapshot[T]{Objects: out, ErrorMessage: l.errMsg, Version: l.version}
}

// Changed returns a channel that is closed on the next update.
func (l *Listener[T]) Changed() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changed
}

// Release cancels the subscription. No update is applied after Release
// returns. Calling it more than once is harmless.
func (l *Listener[T]) Release() {
	l.mu.Lock()
	l.released = true
	l.mu.Unlock()
	l.cancel()
}

// Done is closed once the update loop has exited.
func (l *Listener[T]) Done() <-chan struct{} {
	return l.done
}

// ListenerState exposes internal state for observability.
type ListenerState struct {
	Collection   string `json:"collection"`
	Filter       string `json:"filter,omitempty"`
	Objects      int    `json:"objects"`
	ErrorMessage string `json:"error_message,omitempty"`
	Version      uint64 `json:"version"`
	Released     bool   `json:"released"`
}

// State implements introspection.Introspectable.
func (l *Listener[T]) State() any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ListenerState{
		Collection:   string(l.manager.collection),
		Filter:       filterString(l.filter),
		Objects:      len(l.objects),
		ErrorMessage: l.errMsg,
		Version:      l.version,
		Released:     l.released,
	}
}

// ComponentType implements introspection.Component.
func (l *Listener[T]) ComponentType() string {
	return "listener"
}

var _ introspection.Introspectable = (*Listener[Entity])(nil)
var _ introspection.Component = (*Listener[Entity])(nil)

func filterString(f core.Filter) string {
	if f == nil {
		return ""
	}
	return f.String()
}

// DocumentListener keeps the latest state of a single document up to date.
type DocumentListener[T Entity] struct {
	manager *Manager[T]
	id      string
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.RWMutex
	object   *T
	errMsg   string
	version  uint64
	changed  chan struct{}
	released bool
}

// NewDocumentListener subscribes to the document stored under id and
// returns once its current state has been applied.
func NewDocumentListener[T Entity](ctx context.Context, m *Manager[T], id string) (*DocumentListener[T], error) {
	subCtx, cancel := context.WithCancel(ctx)
	snaps, err := m.store.SubscribeDocument(subCtx, m.collection, id)
	if err != nil {
		cancel()
		return nil, core.Transport("listen", err)
	}

	l := &DocumentListener[T]{
		manager: m,
		id:      id,
		cancel:  cancel,
		done:    make(chan struct{}),
		changed: make(chan struct{}),
	}

	select {
	case snap, ok := <-snaps:
		if !ok {
			cancel()
			return nil, fmt.Errorf("subscription to %s/%s closed before the first snapshot", m.collection, id)
		}
		l.apply(snap)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	lifecycle.Go(subCtx, func(ctx context.Context) error {
		defer close(l.done)
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				l.apply(snap)
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		m.logger.Error("document listener update failed", "id", id, "error", err)
	}))

	return l, nil
}

func (l *DocumentListener[T]) apply(snap core.DocumentSnapshot) {
	var object *T
	errMsg := ""
	switch {
	case snap.Err != nil:
		errMsg = snap.Err.Error()
	case !snap.Exists:
		errMsg = core.ErrNotFound.Error()
	default:
		obj, err := Decode[T](snap.Document)
		if err != nil {
			errMsg = (&core.DecodeError{Collection: l.manager.collection, ID: snap.Document.ID, Err: err}).Error()
		} else {
			object = &obj
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	if errMsg != "" {
		l.errMsg = errMsg
	} else {
		l.object = object
	}
	l.version++
	close(l.changed)
	l.changed = make(chan struct{})
}

// Object returns the last decoded entity, or nil if none was received yet.
func (l *DocumentListener[T]) Object() *T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.object == nil {
		return nil
	}
	obj := *l.object
	return &obj
}

// ErrorMessage returns the last error reported by the subscription, or "".
func (l *DocumentListener[T]) ErrorMessage() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.errMsg
}

// Version counts applied updates.
func (l *DocumentListener[T]) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Changed returns a channel that is closed on the next update.
func (l *DocumentListener[T]) Changed() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changed
}

// Release cancels the subscription. Calling it more than once is harmless.
func (l *DocumentListener[T]) Release() {
	l.mu.Lock()
	l.released = true
	l.mu.Unlock()
	l.cancel()
}

// Done is closed once the update loop has exited.
func (l *DocumentListener[T]) Done() <-chan struct{} {
	return l.done
}

// State implements introspection.Introspectable.
func (l *DocumentListener[T]) State() any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	objects := 0
	if l.object != nil {
		objects = 1
	}
	return ListenerState{
		Collection:   string(l.manager.collection),
		Filter:       "id == " + l.id,
		Objects:      objects,
		ErrorMessage: l.errMsg,
		Version:      l.version,
		Released:     l.released,
	}
}

// ComponentType implements introspection.Component.
func (l *DocumentListener[T]) ComponentType() string {
	return "document-listener"
}
