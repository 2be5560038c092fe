package tools

import (
	"errors"
	"fmt"
)

// RegistryErrorKind categorizes registration failures.
type RegistryErrorKind string

const (
	// KindDuplicateTool indicates a tool name already owned by another suite.
	KindDuplicateTool RegistryErrorKind = "duplicate_tool"

	// KindInvalidName indicates a tool name outside the allowed character set.
	KindInvalidName RegistryErrorKind = "invalid_name"

	// KindReservedName indicates a local suite claiming the mcp__ namespace.
	KindReservedName RegistryErrorKind = "reserved_name"
)

// ErrDuplicateTool is matched by errors.Is against any duplicate-kind
// RegistryError, including reserved-prefix rejections.
var ErrDuplicateTool = errors.New("duplicate tool name")

// RegistryError is a structured registration failure.
type RegistryError struct {
	Kind  RegistryErrorKind
	Suite string
	Tool  string
}

func (e *RegistryError) Error() string {
	switch e.Kind {
	case KindInvalidName:
		return fmt.Sprintf("suite %q: invalid tool name %q", e.Suite, e.Tool)
	case KindReservedName:
		return fmt.Sprintf("suite %q: tool name %q uses the reserved mcp__ prefix", e.Suite, e.Tool)
	default:
		return fmt.Sprintf("suite %q: tool %q is already registered by another suite", e.Suite, e.Tool)
	}
}

// Is lets callers classify duplicate and reserved-name failures with a
// single sentinel.
func (e *RegistryError) Is(target error) bool {
	if target == ErrDuplicateTool {
		return e.Kind == KindDuplicateTool || e.Kind == KindReservedName
	}
	return false
}
