package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override the configuration file.
const (
	EnvAdapter   = "FIREKIT_ADAPTER"
	EnvPath      = "FIREKIT_PATH"
	EnvProjectID = "FIRESTORE_PROJECT_ID"
)

// Config is the content of firekit.toml.
type Config struct {
	Adapter    string            `toml:"adapter"`
	Path       string            `toml:"path"`
	Format     string            `toml:"format"`
	ReadOnly   bool              `toml:"read_only"`
	Versioning bool              `toml:"versioning"`
	Firestore  FirestoreSettings `toml:"firestore"`
	Server     ServerSettings    `toml:"server"`

	// dir is the directory holding the file; relative paths are resolved against it.
	dir string
}

// ServerSettings configures `firekit serve`.
type ServerSettings struct {
	Addr string `toml:"addr"`
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		Adapter: AdapterFS,
		Path:    ".",
		Format:  "json",
		Server:  ServerSettings{Addr: "127.0.0.1:8080"},
	}
}

// LoadConfig reads a firekit.toml file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg.dir = abs
	return cfg, nil
}

// LocateConfig finds firekit.toml above startDir and loads it. Without a
// file it returns the defaults. Environment overrides are applied either way.
func LocateConfig(startDir string) (*Config, error) {
	cfg := DefaultConfig()
	if root, err := FindRoot(startDir); err == nil {
		path := filepath.Join(root, ConfigFileName)
		if _, statErr := os.Stat(path); statErr == nil {
			if cfg, err = LoadConfig(path); err != nil {
				return nil, err
			}
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides values with the FIREKIT_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAdapter); v != "" {
		c.Adapter = v
	}
	if v := os.Getenv(EnvPath); v != "" {
		c.Path = v
		c.dir = ""
	}
	if v := os.Getenv(EnvProjectID); v != "" {
		c.Firestore.ProjectID = v
	}
}

// DataPath returns Path, resolved against the config file directory when relative.
func (c *Config) DataPath() string {
	if c.dir == "" || c.Path == "" || filepath.IsAbs(c.Path) {
		return c.Path
	}
	return filepath.Join(c.dir, c.Path)
}

// Options translates the configuration into Open options.
func (c *Config) Options() []Option {
	return []Option{
		WithAdapter(c.Adapter),
		WithFormat(c.Format),
		WithReadOnly(c.ReadOnly),
		WithVersioning(c.Versioning),
		WithFirestore(c.Firestore),
	}
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	raw, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}
