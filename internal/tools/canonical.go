package tools

import "encoding/json"

// CanonicalJSON renders a JSON-shaped value with sorted object keys and no
// insignificant whitespace. Two argument mappings that differ only in key
// order or formatting produce identical strings, which makes the output
// usable as a cache key component.
func CanonicalJSON(v any) string {
	// encoding/json sorts map keys; round-trip non-map values through a
	// generic decode so nested structs normalize the same way.
	switch v.(type) {
	case map[string]any, []any, string, float64, bool, nil:
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "null"
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return string(data)
		}
		v = generic
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
