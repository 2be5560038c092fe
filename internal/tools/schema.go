package tools

import (
	"fmt"
	"strings"
)

// ValidateArguments checks an argument mapping against a tool's declared
// parameter schema and returns the list of issue messages, empty when the
// arguments conform.
//
// The dialect is a restricted subset of JSON Schema draft-07: type in
// {object, string, number, boolean, array}, properties, required, items,
// enum, minLength, and additionalProperties (false recognized). A schema
// whose type is not "object" (or a missing schema) performs no validation.
func ValidateArguments(schema map[string]any, args map[string]any) []string {
	if schema == nil {
		return nil
	}
	if t, _ := schema["type"].(string); t != "object" {
		return nil
	}

	var issues []string
	properties, _ := schema["properties"].(map[string]any)

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			key, ok := r.(string)
			if !ok {
				continue
			}
			if v, present := args[key]; !present || v == nil {
				issues = append(issues, fmt.Sprintf("Missing required property %q.", key))
			}
		}
	}

	for key, value := range args {
		propSchema, known := properties[key].(map[string]any)
		if !known {
			if properties != nil {
				if ap, ok := schema["additionalProperties"].(bool); ok && !ap {
					issues = append(issues, fmt.Sprintf("Unknown property %q.", key))
				}
			}
			continue
		}
		if value == nil {
			continue // nil presence is handled by the required check
		}
		issues = append(issues, validateValue(key, value, propSchema)...)
	}

	return issues
}

func validateValue(path string, value any, schema map[string]any) []string {
	var issues []string
	declared, _ := schema["type"].(string)

	switch declared {
	case "string":
		s, ok := value.(string)
		if !ok {
			return []string{fmt.Sprintf("Property %q must be a string.", path)}
		}
		if min, ok := numberValue(schema["minLength"]); ok && len(s) < int(min) {
			issues = append(issues, fmt.Sprintf("Property %q must have length >= %d.", path, int(min)))
		}
	case "number":
		if _, ok := numberValue(value); !ok {
			return []string{fmt.Sprintf("Property %q must be a number.", path)}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return []string{fmt.Sprintf("Property %q must be a boolean.", path)}
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return []string{fmt.Sprintf("Property %q must be a array.", path)}
		}
		if itemSchema, ok := schema["items"].(map[string]any); ok {
			for i, item := range items {
				issues = append(issues, validateValue(fmt.Sprintf("%s[%d]", path, i), item, itemSchema)...)
			}
		}
	}

	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		matched := false
		for _, allowed := range enum {
			if enumEqual(value, allowed) {
				matched = true
				break
			}
		}
		if !matched {
			rendered := make([]string, len(enum))
			for i, allowed := range enum {
				rendered[i] = fmt.Sprintf("%v", allowed)
			}
			issues = append(issues, fmt.Sprintf("Property %q must be one of: %s.", path, strings.Join(rendered, ", ")))
		}
	}

	return issues
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func enumEqual(value, allowed any) bool {
	if av, ok := numberValue(allowed); ok {
		if vv, ok := numberValue(value); ok {
			return av == vv
		}
		return false
	}
	return value == allowed
}
