package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/firekit/pkg/core"
)

// DebounceDelay is the quiet period before a filesystem change is published.
const DebounceDelay = 50 * time.Millisecond

// StartWatcher starts a supervised fsnotify watcher that publishes changes
// made by other processes to subscribers. It runs a reconcile pass first so
// changes made while nothing was watching are reported too.
func (s *Store) StartWatcher(ctx context.Context) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return errors.New("watcher already started")
	}

	if _, err := s.Reconcile(ctx); err != nil {
		return fmt.Errorf("initial reconcile failed: %w", err)
	}

	spec := supervisor.Spec{
		Name: "fs-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return newWatchWorker(s), nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			ResetDuration:   time.Minute,
			MaxRestarts:     10,
			MaxDuration:     5 * time.Minute,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}
	sup := supervisor.New("fs-store", supervisor.StrategyOneForOne, spec)
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	s.watcher = sup
	return nil
}

// StopWatcher stops the watcher if it runs.
func (s *Store) StopWatcher(ctx context.Context) error {
	s.watchMu.Lock()
	sup := s.watcher
	s.watcher = nil
	s.watchMu.Unlock()

	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

type watchWorker struct {
	*worker.BaseWorker
	store     *Store
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc
}

func newWatchWorker(s *Store) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("fs-watcher"),
		store:      s,
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.store.addWatches(watcher); err != nil {
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	w.debouncer = newDebouncer(DebounceDelay)
	w.store.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

// addWatches registers the root, every collection directory and, when
// versioning, the .git directory (to notice git holding its index lock).
func (s *Store) addWatches(watcher *fsnotify.Watcher) error {
	if err := watcher.Add(s.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.root, err)
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", s.root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := watcher.Add(filepath.Join(s.root, entry.Name())); err != nil {
			return fmt.Errorf("failed to watch %s: %w", entry.Name(), err)
		}
	}
	if s.git != nil {
		_ = watcher.Add(filepath.Join(s.root, ".git"))
	}
	return nil
}

// resolve maps a document file path to its collection and ID.
func (s *Store) resolve(path string) (core.Collection, string, bool) {
	rel := s.relPath(path)
	parts := strings.Split(rel, "/")
	if len(parts) != 2 {
		return "", "", false
	}
	name := parts[1]
	if strings.HasPrefix(parts[0], ".") || strings.HasPrefix(name, ".") || !isDocumentFile(name) {
		return "", "", false
	}
	if !s.matchesWatchPattern(rel) {
		return "", "", false
	}
	return core.Collection(parts[0]), strings.TrimSuffix(name, filepath.Ext(name)), true
}

func mapEventType(event fsnotify.Event) core.EventType {
	switch {
	case event.Has(fsnotify.Create):
		return core.EventCreate
	case event.Has(fsnotify.Write):
		return core.EventModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return core.EventDelete
	default:
		return ""
	}
}

// handleGitLockEvent reports whether event concerns .git/index.lock and,
// if so, whether git now holds the lock.
func (w *watchWorker) handleGitLockEvent(event fsnotify.Event, locked bool) (handled, lockedNow bool) {
	if filepath.Base(event.Name) != "index.lock" || filepath.Base(filepath.Dir(event.Name)) != ".git" {
		return false, locked
	}
	switch {
	case event.Has(fsnotify.Create):
		w.store.logger.Debug("git operation detected, pausing watcher")
		return true, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.store.logger.Debug("git operation finished, reconciling")
		return true, false
	}
	return true, locked
}

func (w *watchWorker) reconcile(ctx context.Context) {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		_, err := w.store.Reconcile(ctx)
		return err
	}, lifecycle.WithErrorHandler(func(err error) {
		w.store.reportError(fmt.Errorf("reconcile failed: %w", err))
	}))
}

// processFilesystemEvent maps a raw event onto a document change and queues it.
func (w *watchWorker) processFilesystemEvent(ctx context.Context, event fsnotify.Event) bool {
	w.store.logger.Debug("event received", "name", event.Name, "op", event.Op.String())

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if filepath.Dir(event.Name) == w.store.root && !strings.HasPrefix(filepath.Base(event.Name), ".") {
				if err := w.watcher.Add(event.Name); err != nil {
					w.store.reportError(fmt.Errorf("failed to watch new collection %s: %w", event.Name, err))
				}
				// Files may have landed before the watch was added.
				w.reconcile(ctx)
			}
			return false
		}
	}

	c, id, ok := w.store.resolve(event.Name)
	if !ok {
		return false
	}
	eType := mapEventType(event)
	if eType == "" {
		return false
	}

	w.debouncer.add(core.NewEvent(eType, c, id), func(e core.Event) {
		if ctx.Err() != nil {
			return
		}
		w.store.applyExternal(e, event.Name)
	})
	return true
}

// applyExternal updates the index for a change made outside the store and
// publishes it. A delete may be a rename-over, so the file is checked again.
func (s *Store) applyExternal(e core.Event, path string) {
	rel := s.relPath(path)
	info, err := os.Stat(path)
	if err != nil {
		if _, tracked := s.cache.Get(rel); !tracked && e.Type != core.EventDelete {
			return
		}
		s.cache.Delete(rel)
		e.Type = core.EventDelete
	} else {
		if e.Type == core.EventDelete {
			e.Type = core.EventModify
		}
		s.cache.Set(rel, &indexEntry{Collection: e.Collection, ID: e.ID, LastModified: info.ModTime()})
	}
	s.hub.Publish(e)
}

// run is the main event loop for the watcher worker.
func (w *watchWorker) run(ctx context.Context) (err error) {
	logger := w.store.logger
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := fmt.Errorf("watcher panic: %v", recovered)
			if logger.Enabled(ctx, slog.LevelDebug) {
				logger.Error("watcher panic", "error", panicErr, "stack", string(debug.Stack()))
			} else {
				logger.Error("watcher panic", "error", panicErr)
			}
			err = panicErr
		}
	}()
	defer w.store.setWatcherActive(false)
	defer w.watcher.Close()

	err = w.loop(ctx)

	// Let in-flight callbacks finish before the watcher goes away.
	w.debouncer.stopAndWait(5 * time.Second)
	return err
}

func (w *watchWorker) loop(ctx context.Context) error {
	gitLocked := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher events channel closed")
			}

			if handled, locked := w.handleGitLockEvent(event, gitLocked); handled {
				if gitLocked && !locked {
					w.reconcile(ctx)
				}
				gitLocked = locked
				continue
			}
			if gitLocked {
				continue
			}
			w.processFilesystemEvent(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher errors channel closed")
			}
			w.store.reportError(fmt.Errorf("fsnotify: %w", wErr))
		}
	}
}
