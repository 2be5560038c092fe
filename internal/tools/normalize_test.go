package tools

import (
	"reflect"
	"testing"
)

func TestNormalizeArguments(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want map[string]any
	}{
		{"mapping", map[string]any{"a": 1.0}, map[string]any{"a": 1.0}},
		{"json string", `{"a":1}`, map[string]any{"a": 1.0}},
		{"bad json string", `{oops`, map[string]any{}},
		{"byte slice", []byte(`{"k":"v"}`), map[string]any{"k": "v"}},
		{"pair sequence", []any{[]any{"a", "x"}, []any{"b", "y"}}, map[string]any{"a": "x", "b": "y"}},
		{"kv objects", []any{map[string]any{"key": "a", "value": 1.0}}, map[string]any{"a": 1.0}},
		{"nil", nil, map[string]any{}},
		{"unsupported", 42, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeArguments(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []any{
		map[string]any{"a": 1.0, "b": []any{"x"}},
		`{"nested":{"k":"v"}}`,
		[]any{[]any{"a", "x"}},
		nil,
	}
	for _, in := range inputs {
		once := NormalizeArguments(in)
		twice := NormalizeArguments(any(once))
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("not idempotent for %v: %v vs %v", in, once, twice)
		}
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a := CanonicalJSON(map[string]any{"b": 2.0, "a": map[string]any{"y": 1.0, "x": 0.0}})
	b := CanonicalJSON(map[string]any{"a": map[string]any{"x": 0.0, "y": 1.0}, "b": 2.0})
	if a != b {
		t.Fatalf("canonical forms differ: %s vs %s", a, b)
	}
	if a != `{"a":{"x":0,"y":1},"b":2}` {
		t.Fatalf("unexpected canonical form: %s", a)
	}
}
