package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCache_Load(t *testing.T) {
	t.Run("Starts Empty if File Missing", func(t *testing.T) {
		c := newCache(t.TempDir(), ".cache")
		if err := c.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if c.Len() != 0 {
			t.Errorf("Expected empty entries, got %d", c.Len())
		}
	})

	t.Run("Loads Valid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		cacheDir := filepath.Join(tmpDir, ".cache")
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			t.Fatal(err)
		}
		content := `{
			"version": 1,
			"entries": {
				"expenses/lunch.json": {"collection": "expenses", "id": "lunch"}
			}
		}`
		if err := os.WriteFile(filepath.Join(cacheDir, "index.json"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		c := newCache(tmpDir, ".cache")
		if err := c.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		entry, ok := c.Get("expenses/lunch.json")
		if !ok {
			t.Fatal("Expected entry expenses/lunch.json not found")
		}
		if entry.Collection != "expenses" || entry.ID != "lunch" {
			t.Errorf("unexpected entry %+v", entry)
		}
	})

	t.Run("Resets on Corrupted JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		cacheDir := filepath.Join(tmpDir, ".cache")
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(cacheDir, "index.json"), []byte("{ invalid json"), 0644); err != nil {
			t.Fatal(err)
		}

		c := newCache(tmpDir, ".cache")
		if err := c.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if c.Len() != 0 {
			t.Errorf("Expected empty entries after corruption, got %d", c.Len())
		}
	})
}

func TestCache_Save(t *testing.T) {
	t.Run("Does Not Save if Not Dirty", func(t *testing.T) {
		c := newCache(t.TempDir(), ".cache")
		if err := c.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if _, err := os.Stat(c.path); !os.IsNotExist(err) {
			t.Error("Expected index.json NOT to exist")
		}
	})

	t.Run("Saves if Dirty and Round Trips", func(t *testing.T) {
		tmpDir := t.TempDir()
		c := newCache(tmpDir, ".cache")

		now := time.Now().Truncate(time.Second)
		c.Set("expenses/a.json", &indexEntry{Collection: "expenses", ID: "a", LastModified: now})
		if err := c.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if c.dirty {
			t.Error("Expected dirty to be false after save")
		}

		reloaded := newCache(tmpDir, ".cache")
		if err := reloaded.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		entry, ok := reloaded.Get("expenses/a.json")
		if !ok || !entry.LastModified.Equal(now) {
			t.Errorf("entry not persisted: %+v", entry)
		}
	})
}

func TestCache_Prune(t *testing.T) {
	c := newCache(t.TempDir(), ".firekit")
	c.Set("expenses/keep.json", &indexEntry{Collection: "expenses", ID: "keep"})
	c.Set("expenses/drop.json", &indexEntry{Collection: "expenses", ID: "drop"})
	c.dirty = false

	removed := c.Prune(map[string]bool{"expenses/keep.json": true})

	if _, ok := c.Get("expenses/keep.json"); !ok {
		t.Error("Expected keep.json to remain")
	}
	if _, ok := c.Get("expenses/drop.json"); ok {
		t.Error("Expected drop.json to be removed")
	}
	if len(removed) != 1 || removed[0].ID != "drop" {
		t.Errorf("unexpected removed entries: %+v", removed)
	}
	if !c.dirty {
		t.Error("Expected dirty to be true after pruning")
	}
}
