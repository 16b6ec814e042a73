package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigFileName is the project configuration file looked up by FindRoot.
const ConfigFileName = "firekit.toml"

// ErrRootNotFound is returned by FindRoot when no marker is found.
var ErrRootNotFound = errors.New("root not found")

// FindRoot walks upwards from startDir looking for a firekit.toml file or
// a .firekit directory and returns the absolute path of the first match.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if hasFile(dir, ConfigFileName) || hasFile(dir, ".firekit") {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrRootNotFound
		}
		dir = parent
	}
}

func hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
