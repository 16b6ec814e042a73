package typed

import (
	"context"

	"github.com/aretw0/firekit/pkg/core"
)

// Repository is the application-facing surface for one entity type.
// Every method delegates to the underlying Manager without altering
// arguments or errors.
type Repository[T Entity] struct {
	manager *Manager[T]
}

// NewRepository wraps an existing manager.
func NewRepository[T Entity](m *Manager[T]) *Repository[T] {
	return &Repository[T]{manager: m}
}

// Manager returns the wrapped manager.
func (r *Repository[T]) Manager() *Manager[T] {
	return r.manager
}

// Add persists obj and returns its document ID.
func (r *Repository[T]) Add(ctx context.Context, obj T) (string, error) {
	return r.manager.Save(ctx, obj)
}

// Get fetches one entity. A missing document yields (nil, nil).
func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	return r.manager.Get(ctx, id)
}

// List returns every entity of the collection.
func (r *Repository[T]) List(ctx context.Context) ([]T, error) {
	return r.manager.GetAll(ctx)
}

// GetFiltered returns the entities matching f.
func (r *Repository[T]) GetFiltered(ctx context.Context, f core.Filter) ([]T, error) {
	return r.manager.GetAllFiltered(ctx, f)
}

// Update merges obj into its stored document.
func (r *Repository[T]) Update(ctx context.Context, obj T) error {
	return r.manager.Update(ctx, obj)
}

// Delete removes obj from the store.
func (r *Repository[T]) Delete(ctx context.Context, obj T) error {
	return r.manager.Delete(ctx, obj)
}

// Subscribe calls fn with the matching set on every change. A nil filter
// subscribes to the whole collection.
func (r *Repository[T]) Subscribe(ctx context.Context, f core.Filter, fn func([]T, error)) (*Subscription, error) {
	return r.manager.ListenFiltered(ctx, f, fn)
}
