package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/firekit/pkg/core"
)

// indexEntry records the last known state of one document file.
type indexEntry struct {
	Collection   core.Collection `json:"collection"`
	ID           string          `json:"id"`
	LastModified time.Time       `json:"lastModified"`
}

// index is the persisted form of the cache.
type index struct {
	Version int                    `json:"version"`
	Entries map[string]*indexEntry `json:"entries"` // keyed by slash-separated relative path
}

// cache remembers which document files existed, and when they last changed,
// so a reconcile pass can tell what happened while nobody was watching.
type cache struct {
	path string

	mu    sync.RWMutex
	index index
	dirty bool
}

func newCache(root, systemDir string) *cache {
	return &cache{
		path:  filepath.Join(root, systemDir, "index.json"),
		index: index{Version: 1, Entries: make(map[string]*indexEntry)},
	}
}

// Load reads the index from disk. A missing or corrupted index starts empty.
func (c *cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	var idx index
	if err := json.Unmarshal(raw, &idx); err != nil || idx.Entries == nil {
		c.index.Entries = make(map[string]*indexEntry)
		return nil
	}
	c.index = idx
	c.dirty = false
	return nil
}

// Save persists the index if it changed since the last Load or Save.
func (c *cache) Save() error {
	c.mu.RLock()
	if !c.dirty {
		c.mu.RUnlock()
		return nil
	}
	raw, err := json.MarshalIndent(c.index, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	if err := writeFileAtomic(c.path, raw, 0644); err != nil {
		return err
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// Get returns the entry for relPath.
func (c *cache) Get(relPath string) (*indexEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.index.Entries[relPath]
	return e, ok
}

// Set records the state of relPath.
func (c *cache) Set(relPath string, e *indexEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Entries[relPath] = e
	c.dirty = true
}

// Delete forgets relPath.
func (c *cache) Delete(relPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index.Entries[relPath]; ok {
		delete(c.index.Entries, relPath)
		c.dirty = true
	}
}

// Prune drops every entry not in keep and returns the dropped entries.
func (c *cache) Prune(keep map[string]bool) []*indexEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []*indexEntry
	for p, e := range c.index.Entries {
		if !keep[p] {
			removed = append(removed, e)
			delete(c.index.Entries, p)
			c.dirty = true
		}
	}
	return removed
}

// Len returns the number of tracked files.
func (c *cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index.Entries)
}
