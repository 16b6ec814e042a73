// Package fs implements core.Store on top of a directory tree.
//
// Each collection is a directory under the root and each document is a JSON
// or YAML file named after its ID:
//
//	<root>/expenses/lunch.json
//	<root>/expenses/rent.yaml
//
// Writes are atomic (temp file + rename). Changes made by other processes
// are picked up by an optional fsnotify watcher, and every write can be
// committed to git when versioning is enabled.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/aretw0/firekit/pkg/adapters/hub"
	"github.com/aretw0/firekit/pkg/adapters/query"
	"github.com/aretw0/firekit/pkg/core"
	"github.com/aretw0/firekit/pkg/git"
)

// DefaultSystemDir holds the reconcile index. It is ignored by scans.
const DefaultSystemDir = ".firekit"

// Config holds the configuration for the filesystem store.
type Config struct {
	Path         string
	Format       string // FormatJSON (default) or FormatYAML, used for new files
	ReadOnly     bool
	Versioning   bool // commit every write to git
	MustExist    bool
	SystemDir    string
	WatchPattern string // doublestar pattern over "<collection>/<file>", default "**"
	Logger       *slog.Logger
	ErrorHandler func(error)
	EventBuffer  int
}

// Store is a filesystem-backed core.Store.
type Store struct {
	root        string
	config      Config
	ext         string
	serializers map[string]Serializer
	git         *git.Client
	cache       *cache
	hub         *hub.Hub
	logger      *slog.Logger

	writeMu sync.Mutex // serializes read-modify-write cycles

	watchMu sync.Mutex
	watcher supervisor.Supervisor

	mu            sync.RWMutex
	watcherActive bool
	lastReconcile *time.Time
}

var (
	_ core.Store            = (*Store)(nil)
	_ core.CollectionLister = (*Store)(nil)
	_ core.Watchable        = (*Store)(nil)
	_ core.Closer           = (*Store)(nil)
)

// New opens (and unless MustExist is set, creates) a store rooted at config.Path.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Path == "" {
		return nil, errors.New("fs store: path is required")
	}
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	if config.WatchPattern == "" {
		config.WatchPattern = "**"
	}
	if !doublestar.ValidatePattern(config.WatchPattern) {
		return nil, fmt.Errorf("fs store: invalid watch pattern %q", config.WatchPattern)
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	ext, err := extensionFor(config.Format)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, fmt.Errorf("fs store: %w", err)
	}

	s := &Store{
		root:        root,
		config:      config,
		ext:         ext,
		serializers: DefaultSerializers(),
		cache:       newCache(root, config.SystemDir),
		logger:      config.Logger.With("adapter", "fs"),
	}
	s.hub = hub.New(s, hub.WithLogger(s.logger), hub.WithEventBuffer(config.EventBuffer))

	if err := s.initialize(ctx); err != nil {
		return nil, err
	}
	if err := s.cache.Load(); err != nil {
		s.logger.Warn("ignoring unreadable index", "error", err)
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.config.MustExist || s.config.ReadOnly {
		info, err := os.Stat(s.root)
		if os.IsNotExist(err) {
			return fmt.Errorf("store path does not exist: %s", s.root)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", s.root)
		}
	} else if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	if !s.config.Versioning {
		return nil
	}
	if !git.IsInstalled() {
		return errors.New("versioning requires git, which is not installed")
	}
	s.git = git.NewClient(s.root, s.logger)
	if !s.git.IsRepo(ctx) {
		if s.config.ReadOnly {
			return fmt.Errorf("path is not a git repository: %s", s.root)
		}
		if err := s.git.Init(ctx); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
	}
	if s.config.ReadOnly {
		return nil
	}
	changed, err := s.ensureIgnore()
	if err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}
	if changed {
		return s.commit(ctx, "chore: ignore firekit system files", []string{".gitignore"}, nil)
	}
	return nil
}

// ensureIgnore keeps the system dir and lock file out of version control.
func (s *Store) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(s.root, ".gitignore")
	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(content), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, entry := range []string{s.config.SystemDir + "/", git.DefaultLockName} {
		if !present[entry] {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	var buf bytes.Buffer
	buf.Write(content)
	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		buf.WriteByte('\n')
	}
	for _, entry := range missing {
		buf.WriteString(entry + "\n")
	}
	return true, writeFileAtomic(ignorePath, buf.Bytes(), 0644)
}

// Path returns the absolute store root.
func (s *Store) Path() string {
	return s.root
}

// validateName rejects names that would escape the root or collide with
// hidden bookkeeping files.
func validateName(kind, name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: %s name is empty", core.ErrInvalidArgument, kind)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %s name %q", core.ErrInvalidArgument, kind, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %s name %q must not start with a dot", core.ErrInvalidArgument, kind, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %s name %q must not contain path separators", core.ErrInvalidArgument, kind, name)
	}
	return nil
}

func (s *Store) collectionDir(c core.Collection) string {
	return filepath.Join(s.root, string(c))
}

func (s *Store) relPath(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// findFile locates the file backing a document, preferring the configured format.
func (s *Store) findFile(c core.Collection, id string) (string, bool) {
	dir := s.collectionDir(c)
	candidates := []string{s.ext, ".json", ".yaml", ".yml"}
	for _, ext := range candidates {
		p := filepath.Join(dir, id+ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

func (s *Store) readFile(path string) (map[string]any, error) {
	serializer, ok := s.serializers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("no serializer for %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return serializer.Parse(f)
}

// GetDocument reads one document file.
func (s *Store) GetDocument(ctx context.Context, c core.Collection, id string) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}
	if err := validateName("collection", string(c)); err != nil {
		return core.Document{}, err
	}
	if err := validateName("document", id); err != nil {
		return core.Document{}, err
	}

	path, ok := s.findFile(c, id)
	if !ok {
		return core.Document{}, fmt.Errorf("%w: %s/%s", core.ErrNotFound, c, id)
	}
	data, err := s.readFile(path)
	if os.IsNotExist(err) {
		return core.Document{}, fmt.Errorf("%w: %s/%s", core.ErrNotFound, c, id)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("failed to read %s: %w", s.relPath(path), err)
	}
	return core.Document{ID: id, Data: data}, nil
}

// SetDocument writes a document file, merging into the existing payload when asked.
func (s *Store) SetDocument(ctx context.Context, c core.Collection, id string, data map[string]any, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.config.ReadOnly {
		return core.ErrReadOnly
	}
	if err := validateName("collection", string(c)); err != nil {
		return err
	}
	if err := validateName("document", id); err != nil {
		return err
	}

	s.writeMu.Lock()
	existing, existed := s.findFile(c, id)
	payload, _ := query.Normalize(data).(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}
	if merge && existed {
		prev, err := s.readFile(existing)
		if err != nil {
			s.writeMu.Unlock()
			return fmt.Errorf("failed to read %s for merge: %w", s.relPath(existing), err)
		}
		payload = query.Merge(prev, payload)
	}

	target := filepath.Join(s.collectionDir(c), id+s.ext)
	err := s.writeDocument(target, payload)
	if err == nil && existed && existing != target {
		err = os.Remove(existing)
	}
	if err == nil {
		s.track(target, c, id)
		if s.git != nil {
			var removed []string
			if existed && existing != target {
				removed = append(removed, s.relPath(existing))
			}
			err = s.commit(ctx, fmt.Sprintf("set %s/%s", c, id), []string{s.relPath(target)}, removed)
		}
	}
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

func (s *Store) writeDocument(target string, payload map[string]any) error {
	raw, err := s.serializers[s.ext].Serialize(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", s.relPath(target), err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}
	return writeFileAtomic(target, raw, 0644)
}

func (s *Store) track(path string, c core.Collection, id string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	s.cache.Set(s.relPath(path), &indexEntry{Collection: c, ID: id, LastModified: info.ModTime()})
}

func (s *Store) commit(ctx context.Context, msg string, added, removed []string) error {
	unlock, err := s.git.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.git.Add(ctx, added...); err != nil {
		return err
	}
	if err := s.git.Rm(ctx, removed...); err != nil {
		return err
	}
	return s.git.Commit(ctx, msg)
}

// AllocateID returns a random UUID.
func (s *Store) AllocateID(c core.Collection) string {
	return uuid.NewString()
}

// QueryDocuments parses every document file of c and evaluates f.
// Files that cannot be parsed are skipped and reported.
func (s *Store) QueryDocuments(ctx context.Context, c core.Collection, f core.Filter) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName("collection", string(c)); err != nil {
		return nil, err
	}

	files, err := s.scanCollection(c)
	if err != nil {
		return nil, err
	}

	docs := make([]core.Document, 0, len(files))
	for _, file := range files {
		data, err := s.readFile(file.path)
		if err != nil {
			if !core.ReportDrop(ctx, core.DropEvent{Collection: c, ID: file.id, Err: err}) {
				s.reportError(fmt.Errorf("skipping %s: %w", s.relPath(file.path), err))
			}
			continue
		}
		docs = append(docs, core.Document{ID: file.id, Data: data})
	}
	return query.Filter(docs, f)
}

type docFile struct {
	path    string
	id      string
	modTime time.Time
}

// scanCollection lists the document files of c, one per ID.
func (s *Store) scanCollection(c core.Collection) ([]docFile, error) {
	entries, err := os.ReadDir(s.collectionDir(c))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c, err)
	}

	seen := make(map[string]int)
	var out []docFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !isDocumentFile(name) {
			continue
		}
		ext := filepath.Ext(name)
		id := strings.TrimSuffix(name, ext)
		info, err := entry.Info()
		if err != nil {
			continue
		}
		file := docFile{path: filepath.Join(s.collectionDir(c), name), id: id, modTime: info.ModTime()}
		if i, dup := seen[id]; dup {
			// Two formats for one ID: the configured one wins.
			if ext == s.ext {
				out[i] = file
			}
			continue
		}
		seen[id] = len(out)
		out = append(out, file)
	}
	return out, nil
}

// DeleteDocument removes a document file. A missing document is not an error.
func (s *Store) DeleteDocument(ctx context.Context, c core.Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.config.ReadOnly {
		return core.ErrReadOnly
	}
	if err := validateName("collection", string(c)); err != nil {
		return err
	}
	if err := validateName("document", id); err != nil {
		return err
	}

	s.writeMu.Lock()
	path, ok := s.findFile(c, id)
	if !ok {
		s.writeMu.Unlock()
		return nil
	}
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		err = nil
		s.cache.Delete(s.relPath(path))
		if s.git != nil {
			err = s.commit(ctx, fmt.Sprintf("delete %s/%s", c, id), nil, []string{s.relPath(path)})
		}
	}
	s.writeMu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Debug("document deleted", "collection", c, "id", id)
	s.hub.Publish(core.NewEvent(core.EventDelete, c, id))
	return nil
}

// Subscribe streams the matching set of c on every change.
func (s *Store) Subscribe(ctx context.Context, c core.Collection, f core.Filter) (<-chan core.QuerySnapshot, error) {
	if err := validateName("collection", string(c)); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, c, f)
}

// SubscribeDocument streams one document on every change.
func (s *Store) SubscribeDocument(ctx context.Context, c core.Collection, id string) (<-chan core.DocumentSnapshot, error) {
	if err := validateName("collection", string(c)); err != nil {
		return nil, err
	}
	return s.hub.SubscribeDocument(ctx, c, id)
}

// Watch streams raw change events. Changes made by other processes are only
// seen while the watcher runs (see StartWatcher).
func (s *Store) Watch(ctx context.Context, c core.Collection) (<-chan core.Event, error) {
	return s.hub.Watch(ctx, c)
}

// Collections lists the directories holding at least one document.
func (s *Store) Collections(ctx context.Context) ([]core.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	var out []core.Collection
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		c := core.Collection(entry.Name())
		files, err := s.scanCollection(c)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Reconcile compares the tree with the index, publishes an event for every
// difference and returns them.
func (s *Store) Reconcile(ctx context.Context) ([]core.Event, error) {
	collections, err := s.Collections(ctx)
	if err != nil {
		return nil, err
	}

	var events []core.Event
	keep := make(map[string]bool)
	for _, c := range collections {
		files, err := s.scanCollection(c)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			rel := s.relPath(file.path)
			keep[rel] = true
			prev, ok := s.cache.Get(rel)
			switch {
			case !ok:
				events = append(events, core.NewEvent(core.EventCreate, c, file.id))
			case !prev.LastModified.Equal(file.modTime):
				events = append(events, core.NewEvent(core.EventModify, c, file.id))
			default:
				continue
			}
			s.cache.Set(rel, &indexEntry{Collection: c, ID: file.id, LastModified: file.modTime})
		}
	}
	for _, gone := range s.cache.Prune(keep) {
		events = append(events, core.NewEvent(core.EventDelete, gone.Collection, gone.ID))
	}

	s.recordReconcile()
	if !s.config.ReadOnly {
		if err := s.cache.Save(); err != nil {
			s.reportError(fmt.Errorf("failed to save index: %w", err))
		}
	}

	if len(events) > 0 {
		s.logger.Debug("reconciled", "events", len(events))
		s.hub.Publish(events...)
	}
	return events, nil
}

// matchesWatchPattern reports whether a slash-separated relative path is in scope.
func (s *Store) matchesWatchPattern(rel string) bool {
	ok, err := doublestar.Match(s.config.WatchPattern, rel)
	return err == nil && ok
}

func (s *Store) reportError(err error) {
	s.logger.Warn("fs store error", "error", err)
	if s.config.ErrorHandler != nil {
		s.config.ErrorHandler(err)
	}
}

// Close stops the watcher and releases watch channels.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := s.StopWatcher(ctx); err != nil {
		errs = append(errs, err)
	}
	if !s.config.ReadOnly {
		if err := s.cache.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.hub.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
