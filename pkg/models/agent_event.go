package models

import "time"

// EventType identifies an AgentEvent variant.
type EventType string

const (
	EventMessageStart    EventType = "message.start"
	EventMessageDelta    EventType = "message.delta"
	EventMessageComplete EventType = "message.complete"
	EventToolStart       EventType = "tool.start"
	EventToolComplete    EventType = "tool.complete"
	EventToolError       EventType = "tool.error"
	EventUsage           EventType = "usage"
	EventError           EventType = "error"
)

// AgentEvent is one entry in the structured event stream an agent run emits.
//
// The struct is a tagged union: Type selects the variant and only that
// variant's fields are populated, so each event serializes with exactly the
// keys its variant defines. Every event carries a wall-clock timestamp.
type AgentEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// message.delta / message.complete
	Content   string `json:"content,omitempty"`
	IsFinal   *bool  `json:"isFinal,omitempty"`
	ElapsedMs int64  `json:"elapsedMs,omitempty"`

	// tool.start / tool.complete / tool.error
	Name   string         `json:"name,omitempty"`
	ID     string         `json:"id,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Result string         `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`

	// usage
	InputTokens  *int `json:"inputTokens,omitempty"`
	OutputTokens *int `json:"outputTokens,omitempty"`
	TotalTokens  *int `json:"totalTokens,omitempty"`

	// error
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// NewMessageStart signals the beginning of an assistant turn.
func NewMessageStart() AgentEvent {
	return AgentEvent{Type: EventMessageStart, Timestamp: time.Now()}
}

// NewMessageDelta carries incremental assistant text. Non-final deltas stream
// model output; a final delta never occurs (completion uses NewMessageComplete).
func NewMessageDelta(content string, isFinal bool) AgentEvent {
	return AgentEvent{
		Type:      EventMessageDelta,
		Timestamp: time.Now(),
		Content:   content,
		IsFinal:   &isFinal,
	}
}

// NewMessageComplete carries the terminal assistant text for a turn.
func NewMessageComplete(content string, elapsed time.Duration) AgentEvent {
	return AgentEvent{
		Type:      EventMessageComplete,
		Timestamp: time.Now(),
		Content:   content,
		ElapsedMs: elapsed.Milliseconds(),
	}
}

// NewToolStart signals that a tool call is about to execute.
func NewToolStart(name, id string, params map[string]any) AgentEvent {
	return AgentEvent{Type: EventToolStart, Timestamp: time.Now(), Name: name, ID: id, Params: params}
}

// NewToolComplete carries a successful tool result.
func NewToolComplete(name, id, result string) AgentEvent {
	return AgentEvent{Type: EventToolComplete, Timestamp: time.Now(), Name: name, ID: id, Result: result}
}

// NewToolError carries an in-band tool failure.
func NewToolError(name, id, errMsg string) AgentEvent {
	return AgentEvent{Type: EventToolError, Timestamp: time.Now(), Name: name, ID: id, Error: errMsg}
}

// NewUsage reports token consumption for the turn.
func NewUsage(u Usage) AgentEvent {
	in, out, total := u.InputTokens, u.OutputTokens, u.TotalTokens
	ev := AgentEvent{Type: EventUsage, Timestamp: time.Now()}
	if in > 0 {
		ev.InputTokens = &in
	}
	if out > 0 {
		ev.OutputTokens = &out
	}
	if total > 0 {
		ev.TotalTokens = &total
	}
	return ev
}

// NewError reports a fatal run failure.
func NewError(message, code string) AgentEvent {
	return AgentEvent{Type: EventError, Timestamp: time.Now(), Message: message, Code: code}
}
