package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/firekit/pkg/adapters/firestore"
	"github.com/aretw0/firekit/pkg/adapters/fs"
	"github.com/aretw0/firekit/pkg/adapters/memory"
	"github.com/aretw0/firekit/pkg/adapters/sqlite"
	"github.com/aretw0/firekit/pkg/core"
)

// Open builds the store selected by the options. The uri is adapter
// specific: a directory for "fs", a database file or directory for
// "sqlite", the project id for "firestore" (unless set through
// WithFirestore), and ignored for "memory".
func Open(ctx context.Context, uri string, opts ...Option) (core.Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.store != nil {
		return o.store, nil
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	switch o.adapter {
	case AdapterMemory:
		return memory.New(memory.Config{Logger: o.logger, EventBuffer: o.eventBuffer}), nil
	case AdapterFS, "":
		return openFS(ctx, uri, o)
	case AdapterSQLite:
		return sqlite.New(ctx, sqlite.Config{
			Path:         resolveLocalPath(uri, o),
			Logger:       o.logger,
			ErrorHandler: o.errorHandler,
			EventBuffer:  o.eventBuffer,
		})
	case AdapterFirestore:
		settings := o.firestore
		if settings.ProjectID == "" {
			settings.ProjectID = uri
		}
		return firestore.New(ctx, firestore.Config{
			ProjectID:       settings.ProjectID,
			DatabaseID:      settings.DatabaseID,
			CredentialsFile: settings.CredentialsFile,
			Endpoint:        settings.Endpoint,
			Logger:          o.logger,
			EventBuffer:     o.eventBuffer,
		})
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
}

func openFS(ctx context.Context, uri string, o *options) (core.Store, error) {
	store, err := fs.New(ctx, fs.Config{
		Path:         resolveLocalPath(uri, o),
		Format:       o.format,
		ReadOnly:     o.readOnly,
		Versioning:   o.versioning,
		MustExist:    o.mustExist,
		SystemDir:    o.systemDir,
		Logger:       o.logger,
		ErrorHandler: o.errorHandler,
		EventBuffer:  o.eventBuffer,
	})
	if err != nil {
		return nil, err
	}
	if o.watch {
		if err := store.StartWatcher(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// resolveLocalPath applies the dev sandbox to file based adapters.
// Read-only access cannot damage data, so it skips the sandbox.
func resolveLocalPath(uri string, o *options) string {
	bypass := o.readOnly || !o.devSafety
	sandbox := o.forceTemp || (IsDevRun() && !bypass)
	path := ResolveDataPath(uri, sandbox)

	if sandbox && path != uri {
		o.logger.Warn("running in SAFE MODE (dev sandbox)", "original_path", uri, "resolved_path", path)
	} else if IsDevRun() && bypass && !o.readOnly {
		o.logger.Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", path)
	}
	return path
}
