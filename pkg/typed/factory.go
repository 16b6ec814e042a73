package typed

import (
	"context"

	"github.com/aretw0/firekit/pkg/core"
)

// Factory builds managers, repositories and listeners bound to one store.
// The options it carries apply to everything it creates.
type Factory struct {
	store core.Store
	opts  []Option
}

// NewFactory captures store and the default options for created components.
func NewFactory(store core.Store, opts ...Option) *Factory {
	return &Factory{store: store, opts: opts}
}

// Store returns the store backing the factory.
func (f *Factory) Store() core.Store {
	return f.store
}

func (f *Factory) options(extra []Option) []Option {
	out := make([]Option, 0, len(f.opts)+len(extra))
	out = append(out, f.opts...)
	return append(out, extra...)
}

// CreateManager returns a manager for T. Extra options override the
// factory defaults.
func CreateManager[T Entity](f *Factory, opts ...Option) *Manager[T] {
	return NewManager[T](f.store, f.options(opts)...)
}

// CreateRepository returns a repository wrapping a fresh manager for T.
func CreateRepository[T Entity](f *Factory, opts ...Option) *Repository[T] {
	return NewRepository(CreateManager[T](f, opts...))
}

// CreateListener returns a listener over the entities of T matching filter
// (nil for all of them).
func CreateListener[T Entity](ctx context.Context, f *Factory, filter core.Filter, opts ...Option) (*Listener[T], error) {
	return NewListener(ctx, CreateManager[T](f, opts...), filter)
}

// CreateDocumentListener returns a listener over a single document of T.
func CreateDocumentListener[T Entity](ctx context.Context, f *Factory, id string, opts ...Option) (*DocumentListener[T], error) {
	return NewDocumentListener(ctx, CreateManager[T](f, opts...), id)
}
