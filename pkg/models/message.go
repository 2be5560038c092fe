package models

import "time"

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation transcript.
//
// Assistant messages may carry tool calls; tool messages carry the result of
// one call and reference it through ToolCallID. Tool messages for the same
// assistant turn appear in the order the calls were issued.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and ToolName are set only on tool messages and reference
	// the originating assistant tool call.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
// Arguments carry the JSON-shaped value tree decoded from the provider payload.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSchema is the provider-facing description of a callable tool.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage reports token consumption for one provider call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// ModelSelection is the resolved provider/model choice for one agent
// instance. It is immutable for the lifetime of the agent; switching models
// rebuilds the agent from cached history.
type ModelSelection struct {
	Provider        string   `json:"provider"`
	Model           string   `json:"model"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxTokens       int      `json:"max_tokens,omitempty"`
	SystemPrompt    string   `json:"system_prompt"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`
	Verbosity       string   `json:"verbosity,omitempty"`
}

// ContextStats summarizes context-window pressure for the active history.
// Derived on demand; never persisted.
type ContextStats struct {
	TotalTokens        int     `json:"total_tokens"`
	Percentage         float64 `json:"percentage"`
	IsApproachingLimit bool    `json:"is_approaching_limit"`
	IsOverLimit        bool    `json:"is_over_limit"`
}

// Snapshot is a resumable transcript of a sub-agent session.
// The core treats it as an opaque blob; stores decide the layout.
type Snapshot struct {
	ID        string    `json:"id"`
	History   []Message `json:"history"`
	Profile   string    `json:"profile,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
