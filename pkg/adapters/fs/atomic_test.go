package fs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	tests := []struct {
		name    string
		initial []byte
		payload []byte
	}{
		{"new document", nil, []byte(`{"title":"Rent"}`)},
		{"replaces document", []byte(`{"title":"Old"}`), []byte(`{"title":"New"}`)},
		{"shrinks document", []byte(`{"title":"a much longer payload"}`), []byte(`{}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "doc.json")
			if tt.initial != nil {
				require.NoError(t, os.WriteFile(path, tt.initial, 0o644))
			}

			require.NoError(t, writeFileAtomic(path, tt.payload, 0o644))

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, string(tt.payload), string(got))
		})
	}
}

func TestWriteFileAtomic_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	path := filepath.Join(t.TempDir(), "private.json")
	require.NoError(t, writeFileAtomic(path, []byte(`{}`), 0o600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteFileAtomic_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	for range 3 {
		require.NoError(t, writeFileAtomic(filepath.Join(dir, "doc.json"), []byte(`{}`), 0o644))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), TempFilePrefix))
}

func TestWriteFileAtomic_MissingCollectionDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses", "doc.json")
	assert.Error(t, writeFileAtomic(path, []byte(`{}`), 0o644))
}
