package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToMap converts a JSON-tagged value into a plain key/value tree of maps,
// slices, strings, bools, int64 and float64. Field names follow the json
// tags, so the tree matches what encoding/json would emit.
func ToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	m, ok := normalize(out).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value of type %T is not a JSON object", v)
	}
	return m, nil
}

// normalize replaces json.Number with int64 where the value is integral and
// float64 otherwise, so YAML encoders render plain scalars.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalize(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = normalize(child)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
