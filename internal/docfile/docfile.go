// Package docfile loads input documents and shape descriptors from JSON or
// YAML files.
package docfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ggoodman/optshape/shape"
)

// Format of a document.
type Format int

const (
	FormatAuto Format = iota
	FormatJSON
	FormatYAML
)

// FormatFor picks the format from a file extension. Unknown extensions are
// FormatAuto: JSON is tried first, then YAML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatAuto
}

// Load reads the document at path.
func Load(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := Decode(b, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Decode parses b. JSON numbers stay json.Number so Int and Number remain
// distinguishable; YAML mappings become map[string]any.
func Decode(b []byte, f Format) (any, error) {
	switch f {
	case FormatJSON:
		return decodeJSON(b)
	case FormatYAML:
		return decodeYAML(b)
	}
	if v, err := decodeJSON(b); err == nil {
		return v, nil
	}
	return decodeYAML(b)
}

func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode json: trailing data")
	}
	return v, nil
}

func decodeYAML(b []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return normalize(v), nil
}

// normalize turns the map[any]any that YAML produces for non-string keys
// into map[string]any.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = normalize(val)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range x {
			x[i] = normalize(val)
		}
		return x
	}
	return v
}

// LoadShape reads a descriptor from path. The document is either the
// canonical encoding (it has a "kind" member) or a JSON Schema.
func LoadShape(path string) (shape.Shape, error) {
	v, err := Load(path)
	if err != nil {
		return nil, err
	}
	s, err := ShapeFrom(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ShapeFrom converts a decoded document into a descriptor.
func ShapeFrom(v any) (shape.Shape, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("descriptor must be an object, got %T", v)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if _, canonical := m["kind"].(string); canonical {
		return shape.Unmarshal(b)
	}
	return shape.ParseJSONSchema(b)
}
