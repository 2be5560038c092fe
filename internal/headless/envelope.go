// Package headless drives agent runs over an NDJSON pipe: envelopes
// out on stdout, one prompt per stdin line in.
package headless

import "github.com/quarryhq/quarry/pkg/models"

// Envelope type discriminators.
const (
	TypeSession     = "session"
	TypeUserInput   = "user-input"
	TypeAgentEvent  = "agent-event"
	TypeRunComplete = "run-complete"
	TypeError       = "error"
)

// SessionEnvelope is emitted once at startup, before any run.
// WorkspaceContext is a pointer so a session without workspace notes
// serializes as null rather than "".
type SessionEnvelope struct {
	Type             string  `json:"type"`
	SessionID        string  `json:"sessionId"`
	Profile          string  `json:"profile"`
	Manifest         any     `json:"manifest"`
	WorkingDir       string  `json:"workingDir"`
	WorkspaceContext *string `json:"workspaceContext"`
	Version          string  `json:"version"`
}

// UserInputEnvelope echoes the prompt a run was started with.
type UserInputEnvelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Profile   string `json:"profile"`
	RunID     string `json:"runId"`
	Content   string `json:"content"`
}

// AgentEventEnvelope wraps one streamed agent event.
type AgentEventEnvelope struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId"`
	Profile   string            `json:"profile"`
	RunID     string            `json:"runId"`
	Event     models.AgentEvent `json:"event"`
}

// RunCompleteEnvelope marks the end of one run.
type RunCompleteEnvelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Profile   string `json:"profile"`
	RunID     string `json:"runId"`
}

// ErrorEnvelope reports a driver-level failure. RunID is empty for
// errors outside any run.
type ErrorEnvelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Profile   string `json:"profile"`
	RunID     string `json:"runId,omitempty"`
	Message   string `json:"message"`
}
