package typed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aretw0/firekit/pkg/core"
)

// Encode converts an entity into its document ID and payload.
// The ID key is removed from the payload.
func Encode[T Entity](v T) (string, map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal entity: %w", err)
	}

	// Numbers stay json.Number so integers keep their precision.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return "", nil, fmt.Errorf("failed to convert entity to map: %w", err)
	}
	if data == nil {
		return "", nil, fmt.Errorf("entity %T does not encode to a JSON object", v)
	}
	delete(data, IDField)

	return v.DocumentID(), data, nil
}

// Decode converts a stored document into T, restoring the ID field.
func Decode[T Entity](doc core.Document) (T, error) {
	var out T

	payload := make(map[string]any, len(doc.Data)+1)
	for k, v := range doc.Data {
		payload[k] = v
	}
	payload[IDField] = doc.ID

	raw, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("metadata marshal failed: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("unmarshal to target type failed: %w", err)
	}
	return out, nil
}
