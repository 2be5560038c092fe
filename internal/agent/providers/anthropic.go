package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/quarryhq/quarry/internal/secrets"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/pkg/models"
)

const anthropicDefaultMaxTokens = 8192

// Anthropic adapts the Anthropic Messages API. Safe for concurrent
// use; each Stream call owns an independent SSE stream and goroutine.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic builds the adapter from ANTHROPIC_API_KEY.
func NewAnthropic(store secrets.Store) (Provider, error) {
	key, ok := store.Get("ANTHROPIC_API_KEY")
	if !ok {
		return nil, NewMissingSecret("anthropic", "ANTHROPIC_API_KEY")
	}
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(key)),
	}, nil
}

// Name implements Provider.
func (p *Anthropic) Name() string { return "anthropic" }

// Generate implements Provider by draining the stream. The Messages
// API is consumed streaming-only here; non-streaming callers get the
// accumulated result.
func (p *Anthropic) Generate(ctx context.Context, req *Request) (*Response, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return accumulate(chunks)
}

// Stream implements Provider.
func (p *Anthropic) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		retry := newRetrier(p.Name(), req.Model)
		err := retry.doStream(ctx, func() (bool, error) {
			return p.streamOnce(ctx, params, out)
		})
		if err != nil {
			out <- StreamChunk{Err: p.wrapError(err, req.Model)}
			return
		}
		out <- StreamChunk{Done: true}
	}()
	return out, nil
}

// streamOnce runs one SSE attempt. The emitted result tells the
// retrier whether any chunk already reached the consumer, which rules
// out a replay.
func (p *Anthropic) streamOnce(ctx context.Context, params anthropic.MessageNewParams, out chan<- StreamChunk) (emitted bool, err error) {
	stream := p.client.Messages.NewStreaming(ctx, params)

	var toolCall *models.ToolCall
	var toolInput strings.Builder
	var usage models.Usage

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			usage.InputTokens = int(start.Message.Usage.InputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				use := block.AsToolUse()
				toolCall = &models.ToolCall{ID: use.ID, Name: use.Name}
				toolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					emitted = true
					out <- StreamChunk{Text: delta.Text}
				}
			case "input_json_delta":
				toolInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if toolCall != nil {
				toolCall.Arguments = tools.NormalizeArguments(toolInput.String())
				emitted = true
				out <- StreamChunk{ToolCall: toolCall}
				toolCall = nil
			}

		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(delta.Usage.OutputTokens)
			}

		case "message_stop":
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens
			out <- StreamChunk{Usage: &usage}
			return true, nil
		}
	}

	if err := stream.Err(); err != nil {
		return emitted, p.wrapError(err, string(params.Model))
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	out <- StreamChunk{Usage: &usage}
	return true, nil
}

func (p *Anthropic) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if system := collapseSystem(req); system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	for _, tool := range req.Tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := tool.Parameters["properties"]; ok {
			schema.Properties = props
		}
		schema.Required = requiredList(tool.Parameters)
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if tool.Description != "" {
			param.OfTool.Description = anthropic.String(tool.Description)
		}
		params.Tools = append(params.Tools, param)
	}

	return params, nil
}

// convertAnthropicMessages maps the shared history onto Anthropic
// content blocks. System messages are carried in params.System; tool
// messages become tool_result blocks inside a user message. The final
// user block is marked cache-eligible so repeated context hits the
// prompt cache.
func convertAnthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		case models.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := call.Arguments
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(content) == 0 {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	markTrailingUserCacheable(result)
	return result, nil
}

// markTrailingUserCacheable sets ephemeral cache_control on the last
// text block of the last user message. Observationally neutral:
// responses are identical whether or not the cache hits.
func markTrailingUserCacheable(messages []anthropic.MessageParam) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != anthropic.MessageParamRoleUser {
			continue
		}
		blocks := messages[i].Content
		for j := len(blocks) - 1; j >= 0; j-- {
			if blocks[j].OfText != nil {
				blocks[j].OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
				return
			}
		}
		return
	}
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Anthropic) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		perr := NewError(p.Name(), model, err).WithStatus(apiErr.StatusCode)
		if apiErr.Response != nil {
			if d := parseRetryAfter(apiErr.Response.Header); d > 0 {
				perr = perr.WithRetryAfter(d)
			}
		}
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil && payload.Error.Message != "" {
				perr = perr.WithMessage(payload.Error.Message)
			}
		}
		return perr
	}

	return NewError(p.Name(), model, err)
}

// accumulate drains a chunk channel into a non-streaming response.
func accumulate(chunks <-chan StreamChunk) (*Response, error) {
	resp := &Response{Kind: ResponseMessage}
	var content strings.Builder

	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			return nil, chunk.Err
		case chunk.Text != "":
			content.WriteString(chunk.Text)
		case chunk.ToolCall != nil:
			resp.ToolCalls = append(resp.ToolCalls, *chunk.ToolCall)
		case chunk.Usage != nil:
			resp.Usage = chunk.Usage
		}
	}

	resp.Content = content.String()
	if len(resp.ToolCalls) > 0 {
		resp.Kind = ResponseToolCalls
	}
	return resp, nil
}
