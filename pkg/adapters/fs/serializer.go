package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/firekit/pkg/adapters/query"
)

// Serializer defines how a document payload is stored in a file.
type Serializer interface {
	// Parse reads a payload from r.
	Parse(r io.Reader) (map[string]any, error)
	// Serialize converts a payload to file contents.
	Serialize(data map[string]any) ([]byte, error)
}

// Supported document formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// DefaultSerializers returns the serializer for every recognized extension.
func DefaultSerializers() map[string]Serializer {
	return map[string]Serializer{
		".json": JSONSerializer{},
		".yaml": YAMLSerializer{},
		".yml":  YAMLSerializer{},
	}
}

// extensionFor maps a format name to the extension used for new files.
func extensionFor(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return ".json", nil
	case FormatYAML, "yml":
		return ".yaml", nil
	default:
		return "", fmt.Errorf("unsupported document format %q", format)
	}
}

func isDocumentFile(name string) bool {
	_, ok := DefaultSerializers()[strings.ToLower(filepath.Ext(name))]
	return ok
}

// JSONSerializer stores payloads as indented JSON objects.
type JSONSerializer struct{}

func (JSONSerializer) Parse(r io.Reader) (map[string]any, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return normalize(payload), nil
}

func (JSONSerializer) Serialize(data map[string]any) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}

// YAMLSerializer stores payloads as YAML mappings.
type YAMLSerializer struct{}

func (YAMLSerializer) Parse(r io.Reader) (map[string]any, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	return normalize(payload), nil
}

func (YAMLSerializer) Serialize(data map[string]any) ([]byte, error) {
	return yaml.Marshal(data)
}

// normalize maps decoder-specific number and map types onto the shapes the
// query package compares.
func normalize(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	out, ok := query.Normalize(payload).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return out
}
