// Package providers adapts model backends to one uniform interface.
// Each adapter converts the shared message shapes to its SDK's wire
// format, streams deltas back as chunks, and classifies failures into
// typed errors the agent loop can act on.
package providers

import (
	"context"

	"github.com/quarryhq/quarry/pkg/models"
)

// Provider is one model backend.
type Provider interface {
	// Name is the stable adapter identifier ("anthropic", "openai",
	// "deepseek", "xai", "google", "bedrock").
	Name() string

	// Generate performs one non-streaming completion.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Stream performs one streaming completion. The channel yields
	// zero or more Text/ToolCall chunks, optionally a Usage chunk,
	// then exactly one terminal chunk (Done or Err) and closes.
	Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error)
}

// Request is a provider-neutral completion request.
type Request struct {
	Model    string
	System   string
	Messages []models.Message
	Tools    []models.ToolSchema

	Temperature     *float64
	MaxTokens       int
	ReasoningEffort string
	Verbosity       string
}

// ResponseKind discriminates what a completion produced.
type ResponseKind string

const (
	// ResponseMessage is plain assistant text.
	ResponseMessage ResponseKind = "message"

	// ResponseToolCalls carries one or more tool invocations, with
	// optional narration text alongside.
	ResponseToolCalls ResponseKind = "tool_calls"
)

// Response is the uniform completion result.
type Response struct {
	Kind      ResponseKind
	Content   string
	ToolCalls []models.ToolCall
	Usage     *models.Usage
}

// StreamChunk is one increment of a streaming completion.
type StreamChunk struct {
	Text     string
	ToolCall *models.ToolCall
	Usage    *models.Usage
	Err      error
	Done     bool
}

// collapseSystem joins the request system prompt with any system-role
// messages, for backends with a dedicated system slot.
func collapseSystem(req *Request) string {
	parts := make([]string, 0, 2)
	if req.System != "" {
		parts = append(parts, req.System)
	}
	for _, msg := range req.Messages {
		if msg.Role == models.RoleSystem && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return joinBlankLine(parts)
}

// requiredList extracts the required-property names from a JSON schema
// map, tolerating both []string and decoded []any shapes.
func requiredList(parameters map[string]any) []string {
	switch req := parameters["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func joinBlankLine(parts []string) string {
	out := ""
	for _, p := range parts {
		if out != "" {
			out += "\n\n"
		}
		out += p
	}
	return out
}
