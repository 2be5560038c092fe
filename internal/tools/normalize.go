package tools

import "encoding/json"

// NormalizeArguments coerces the accepted argument shapes into a mapping.
//
// Accepted inputs:
//   - a mapping (returned as-is)
//   - a JSON-encoded string or byte slice (parsed; parse failure yields an
//     empty mapping)
//   - a key/value sequence: [[k, v], ...] or [{"key": k, "value": v}, ...]
//
// Anything else normalizes to an empty mapping. The function is idempotent:
// normalizing an already-normalized value returns it unchanged.
func NormalizeArguments(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case json.RawMessage:
		return parseJSONArguments([]byte(v))
	case []byte:
		return parseJSONArguments(v)
	case string:
		return parseJSONArguments([]byte(v))
	case []any:
		return pairsToArguments(v)
	default:
		return map[string]any{}
	}
}

func parseJSONArguments(data []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

func pairsToArguments(items []any) map[string]any {
	out := make(map[string]any, len(items))
	for _, item := range items {
		switch pair := item.(type) {
		case []any:
			if len(pair) == 2 {
				if k, ok := pair[0].(string); ok {
					out[k] = pair[1]
				}
			}
		case map[string]any:
			k, kok := pair["key"].(string)
			if !kok {
				continue
			}
			out[k] = pair["value"]
		}
	}
	return out
}
