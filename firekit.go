package firekit

import (
	"context"
	"log/slog"

	"github.com/aretw0/firekit/internal/platform"
	"github.com/aretw0/firekit/pkg/core"
	"github.com/aretw0/firekit/pkg/typed"
)

// --- Types ---

type (
	// Store is the document store client the typed layer is written against.
	Store = core.Store
	// Collection names a partition of the document store.
	Collection = core.Collection
	// Document is a raw stored record.
	Document = core.Document
	// Filter is a query predicate interpreted by the store.
	Filter = core.Filter
	// Operator is a field comparison.
	Operator = core.Operator
	// Entity is implemented by every type managed by the typed layer.
	Entity = typed.Entity
	// Manager is the typed facade over one collection.
	Manager[T Entity] = typed.Manager[T]
	// Repository is a thin wrapper over Manager.
	Repository[T Entity] = typed.Repository[T]
	// Listener keeps the latest matching set of a query.
	Listener[T Entity] = typed.Listener[T]
	// DocumentListener keeps the latest state of one document.
	DocumentListener[T Entity] = typed.DocumentListener[T]
	// Factory shares one store and one set of options between managers.
	Factory = typed.Factory
	// Subscription is a cancellable live query.
	Subscription = typed.Subscription
	// ManagerOption configures a Manager.
	ManagerOption = typed.Option
	// FirestoreSettings selects the Firestore project and credentials.
	FirestoreSettings = platform.FirestoreSettings
)

// Comparison operators.
const (
	OpEqual            = core.OpEqual
	OpNotEqual         = core.OpNotEqual
	OpLess             = core.OpLess
	OpLessOrEqual      = core.OpLessOrEqual
	OpGreater          = core.OpGreater
	OpGreaterOrEqual   = core.OpGreaterOrEqual
	OpIn               = core.OpIn
	OpNotIn            = core.OpNotIn
	OpArrayContains    = core.OpArrayContains
	OpArrayContainsAny = core.OpArrayContainsAny
)

// Errors.
var (
	ErrTransport           = core.ErrTransport
	ErrNotFound            = core.ErrNotFound
	ErrPreconditionSkipped = core.ErrPreconditionSkipped
	ErrEmptyResult         = core.ErrEmptyResult
	ErrReadOnly            = core.ErrReadOnly
)

// --- Store configuration ---

// Option configures Open.
type Option = platform.Option

// WithAdapter selects the store adapter: "memory", "fs" (default), "sqlite" or "firestore".
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithStore injects a ready store.
func WithStore(s Store) Option {
	return platform.WithStore(s)
}

// WithLogger sets the logger used by the adapter.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithEventBuffer sets the size of the change event buffer.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithReadOnly opens the filesystem store read-only.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithVersioning commits every filesystem write to git.
func WithVersioning(enabled bool) Option {
	return platform.WithVersioning(enabled)
}

// WithFormat sets the file format ("json" or "yaml") of new filesystem documents.
func WithFormat(format string) Option {
	return platform.WithFormat(format)
}

// WithSystemDir sets the hidden directory of the filesystem store.
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithMustExist fails instead of creating a missing data directory.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithForceTemp redirects local data into the temp sandbox.
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the sandbox applied under `go run` and `go test`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithWatch starts the filesystem watcher.
func WithWatch(enabled bool) Option {
	return platform.WithWatch(enabled)
}

// WithErrorHandler receives background adapter errors.
func WithErrorHandler(fn func(error)) Option {
	return platform.WithErrorHandler(fn)
}

// WithFirestore sets the Firestore connection settings.
func WithFirestore(settings FirestoreSettings) Option {
	return platform.WithFirestore(settings)
}

// --- Factories ---

// Open builds a store. See WithAdapter for the meaning of uri.
func Open(ctx context.Context, uri string, opts ...Option) (Store, error) {
	return platform.Open(ctx, uri, opts...)
}

// NewManager creates a typed manager over store.
func NewManager[T Entity](store Store, opts ...ManagerOption) *Manager[T] {
	return typed.NewManager[T](store, opts...)
}

// NewRepository wraps m.
func NewRepository[T Entity](m *Manager[T]) *Repository[T] {
	return typed.NewRepository(m)
}

// NewListener subscribes to the query f over m's collection.
func NewListener[T Entity](ctx context.Context, m *Manager[T], f Filter) (*Listener[T], error) {
	return typed.NewListener(ctx, m, f)
}

// NewDocumentListener subscribes to one document.
func NewDocumentListener[T Entity](ctx context.Context, m *Manager[T], id string) (*DocumentListener[T], error) {
	return typed.NewDocumentListener(ctx, m, id)
}

// NewFactory binds store and opts for CreateManager and friends.
func NewFactory(store Store, opts ...ManagerOption) *Factory {
	return typed.NewFactory(store, opts...)
}

// ManagerWithLogger sets the logger of a Manager.
func ManagerWithLogger(logger *slog.Logger) ManagerOption {
	return typed.WithLogger(logger)
}

// ManagerWithCollection overrides the collection of a Manager.
func ManagerWithCollection(c Collection) ManagerOption {
	return typed.WithCollection(c)
}

// ManagerWithStrictIDs makes Update and Delete fail on a missing id.
func ManagerWithStrictIDs(strict bool) ManagerOption {
	return typed.WithStrictIDs(strict)
}

// --- Filters ---

// Where builds a field comparison.
func Where(field string, op Operator, value any) Filter {
	return core.Where(field, op, value)
}

// And matches when every filter matches.
func And(filters ...Filter) Filter {
	return core.And(filters...)
}

// Or matches when any filter matches.
func Or(filters ...Filter) Filter {
	return core.Or(filters...)
}
