// Package sqlite implements core.Store on a single SQLite database file.
//
// Every document is one row of the documents table, keyed by collection and
// ID, with its payload stored as JSON text. Filters are evaluated in Go so
// results match the other local adapters exactly.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aretw0/firekit/pkg/adapters/hub"
	"github.com/aretw0/firekit/pkg/adapters/query"
	"github.com/aretw0/firekit/pkg/adapters/sqlite/migrations"
	"github.com/aretw0/firekit/pkg/core"
)

// DefaultFileName is used when Config.Path names a directory.
const DefaultFileName = "firekit.db"

// Config holds the configuration for the SQLite store.
type Config struct {
	Path         string // database file, or a directory to hold DefaultFileName
	Logger       *slog.Logger
	ErrorHandler func(error)
	EventBuffer  int
}

// Store is a SQLite-backed core.Store. Writes are serialized in process;
// changes made by other processes are not pushed to subscribers.
type Store struct {
	db     *sql.DB
	path   string
	hub    *hub.Hub
	logger *slog.Logger
	onErr  func(error)

	writeMu sync.Mutex
}

var (
	_ core.Store            = (*Store)(nil)
	_ core.CollectionLister = (*Store)(nil)
	_ core.Watchable        = (*Store)(nil)
	_ core.Closer           = (*Store)(nil)
)

// New opens (creating if needed) the database and applies pending migrations.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Path == "" {
		return nil, errors.New("sqlite store: path is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dbPath := config.Path
	if info, err := os.Stat(dbPath); err == nil && info.IsDir() {
		dbPath = filepath.Join(dbPath, DefaultFileName)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode lets readers proceed while a write is in flight.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:     db,
		path:   dbPath,
		logger: logger.With("adapter", "sqlite"),
		onErr:  config.ErrorHandler,
	}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	s.hub = hub.New(s, hub.WithLogger(s.logger), hub.WithEventBuffer(config.EventBuffer))
	return s, nil
}

// migrate runs every embedded NNN_name.up.sql file newer than the recorded version.
func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		s.logger.Debug("migration applied", "name", name)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func decodePayload(raw string) (map[string]any, error) {
	var data map[string]any
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&data); err != nil {
		return nil, err
	}
	out, _ := query.Normalize(data).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// GetDocument reads one row.
func (s *Store) GetDocument(ctx context.Context, c core.Collection, id string) (core.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?", string(c), id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Document{}, fmt.Errorf("%w: %s/%s", core.ErrNotFound, c, id)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("getting document: %w", err)
	}

	data, err := decodePayload(raw)
	if err != nil {
		return core.Document{}, fmt.Errorf("unmarshalling %s/%s: %w", c, id, err)
	}
	return core.Document{ID: id, Data: data}, nil
}

// SetDocument upserts a row, merging into the stored payload when asked.
func (s *Store) SetDocument(ctx context.Context, c core.Collection, id string, data map[string]any, merge bool) error {
	if id == "" {
		return fmt.Errorf("%w: document has no ID", core.ErrInvalidArgument)
	}
	payload, _ := query.Normalize(data).(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}

	s.writeMu.Lock()
	existed, err := s.write(ctx, c, id, payload, merge)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}

	eType := core.EventCreate
	if existed {
		eType = core.EventModify
	}
	s.logger.Debug("document written", "collection", c, "id", id, "merge", merge)
	s.hub.Publish(core.NewEvent(eType, c, id))
	return nil
}

func (s *Store) write(ctx context.Context, c core.Collection, id string, payload map[string]any, merge bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var prevRaw string
	err = tx.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?", string(c), id,
	).Scan(&prevRaw)
	existed := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("reading document: %w", err)
	}

	if merge && existed {
		prev, err := decodePayload(prevRaw)
		if err != nil {
			return false, fmt.Errorf("unmarshalling %s/%s for merge: %w", c, id, err)
		}
		payload = query.Merge(prev, payload)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshalling document: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, string(c), id, string(raw), now, now)
	if err != nil {
		return false, fmt.Errorf("saving document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing document: %w", err)
	}
	return existed, nil
}

// AllocateID returns a random UUID.
func (s *Store) AllocateID(c core.Collection) string {
	return uuid.NewString()
}

// QueryDocuments loads the rows of c and evaluates f. Rows whose JSON cannot
// be parsed are skipped and reported.
func (s *Store) QueryDocuments(ctx context.Context, c core.Collection, f core.Filter) ([]core.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, data FROM documents WHERE collection = ? ORDER BY id", string(c))
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []core.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		data, err := decodePayload(raw)
		if err != nil {
			if !core.ReportDrop(ctx, core.DropEvent{Collection: c, ID: id, Err: err}) {
				s.reportError(fmt.Errorf("skipping %s/%s: %w", c, id, err))
			}
			continue
		}
		docs = append(docs, core.Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return query.Filter(docs, f)
}

// DeleteDocument removes a row. A missing document is not an error.
func (s *Store) DeleteDocument(ctx context.Context, c core.Collection, id string) error {
	s.writeMu.Lock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", string(c), id)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
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

// Collections lists every collection holding at least one row.
func (s *Store) Collections(ctx context.Context) ([]core.Collection, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT collection FROM documents ORDER BY collection")
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var out []core.Collection
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		out = append(out, core.Collection(name))
	}
	return out, rows.Err()
}

func (s *Store) reportError(err error) {
	s.logger.Warn("sqlite store error", "error", err)
	if s.onErr != nil {
		s.onErr(err)
	}
}

// Close releases watchers and closes the database.
func (s *Store) Close() error {
	return errors.Join(s.hub.Close(), s.db.Close())
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Path          string `json:"path"`
	Documents     int    `json:"documents"`
	Subscriptions int    `json:"subscriptions"`
	OpenConns     int    `json:"open_connections"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	state := StoreState{
		Path:          s.path,
		Subscriptions: s.hub.Len(),
		OpenConns:     s.db.Stats().OpenConnections,
	}
	_ = s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&state.Documents)
	return state
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "sqlite-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
