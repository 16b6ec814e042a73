package platform

import (
	"log/slog"

	"github.com/aretw0/firekit/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterMemory    = "memory"
	AdapterFS        = "fs"
	AdapterSQLite    = "sqlite"
	AdapterFirestore = "firestore"
)

// FirestoreSettings selects the Firestore project and credentials.
type FirestoreSettings struct {
	ProjectID       string `toml:"project_id"`
	DatabaseID      string `toml:"database_id"`
	CredentialsFile string `toml:"credentials_file"`
	Endpoint        string `toml:"endpoint"`
}

// options holds the internal configuration for opening a store.
type options struct {
	store        core.Store
	adapter      string
	logger       *slog.Logger
	eventBuffer  int
	readOnly     bool
	versioning   bool
	format       string
	systemDir    string
	mustExist    bool
	forceTemp    bool
	devSafety    bool
	watch        bool
	errorHandler func(error)
	firestore    FirestoreSettings
}

// Option defines a functional option for opening a store.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		adapter:   AdapterFS,
		devSafety: true,
	}
}

// WithStore injects a ready store. The adapter settings are then ignored.
func WithStore(s core.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithAdapter selects the store adapter by name. Defaults to "fs".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithLogger sets the logger handed to the adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventBuffer sets the buffer of the change event broker.
// Zero means the adapter default.
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.eventBuffer = size
	}
}

// WithReadOnly opens the filesystem store read-only. Writes fail with
// core.ErrReadOnly and the dev sandbox is bypassed.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = enabled
	}
}

// WithVersioning commits every filesystem write to git.
func WithVersioning(enabled bool) Option {
	return func(o *options) {
		o.versioning = enabled
	}
}

// WithFormat sets the file format ("json" or "yaml") of new filesystem documents.
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithSystemDir sets the hidden directory of the filesystem store.
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.systemDir = name
	}
}

// WithMustExist fails instead of creating a missing data directory.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.mustExist = must
	}
}

// WithForceTemp redirects local data into the temp sandbox.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.forceTemp = force
	}
}

// WithDevSafety controls the sandbox applied under `go run` and `go test`.
// It is on by default.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}

// WithWatch starts the filesystem watcher so changes made by other
// processes reach subscribers.
func WithWatch(enabled bool) Option {
	return func(o *options) {
		o.watch = enabled
	}
}

// WithErrorHandler receives background errors (watcher, reconcile, malformed rows).
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}

// WithFirestore sets the Firestore connection settings.
func WithFirestore(settings FirestoreSettings) Option {
	return func(o *options) {
		o.firestore = settings
	}
}
