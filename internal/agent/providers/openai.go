package providers

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"github.com/quarryhq/quarry/internal/secrets"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/pkg/models"
)

// OpenAI adapts the Chat Completions API. The same adapter serves any
// OpenAI-compatible backend through a base URL override; DeepSeek and
// xAI are wired that way.
type OpenAI struct {
	name   string
	client *openai.Client
}

// NewOpenAI builds the adapter from OPENAI_API_KEY.
func NewOpenAI(store secrets.Store) (Provider, error) {
	return newOpenAICompatible(store, "openai", "OPENAI_API_KEY", "")
}

// NewDeepSeek builds an OpenAI-compatible adapter against the
// DeepSeek endpoint.
func NewDeepSeek(store secrets.Store) (Provider, error) {
	return newOpenAICompatible(store, "deepseek", "DEEPSEEK_API_KEY", "https://api.deepseek.com/v1")
}

// NewXAI builds an OpenAI-compatible adapter against the xAI
// endpoint.
func NewXAI(store secrets.Store) (Provider, error) {
	return newOpenAICompatible(store, "xai", "XAI_API_KEY", "https://api.x.ai/v1")
}

func newOpenAICompatible(store secrets.Store, name, secretID, baseURL string) (Provider, error) {
	key, ok := store.Get(secretID)
	if !ok {
		return nil, NewMissingSecret(name, secretID)
	}
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		name:   name,
		client: openai.NewClientWithConfig(cfg),
	}, nil
}

// Name implements Provider.
func (p *OpenAI) Name() string { return p.name }

// Generate implements Provider.
func (p *OpenAI) Generate(ctx context.Context, req *Request) (*Response, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return accumulate(chunks)
}

// Stream implements Provider.
func (p *OpenAI) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	chatReq := p.buildRequest(req)

	var stream *openai.ChatCompletionStream
	retry := newRetrier(p.name, req.Model)
	err := retry.do(ctx, func() error {
		var openErr error
		stream, openErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if openErr != nil {
			return p.wrapError(openErr, req.Model)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go p.processStream(stream, req.Model, out)
	return out, nil
}

func (p *OpenAI) buildRequest(req *Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if system := collapseSystem(req); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})

		case models.RoleAssistant:
			m := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: tools.CanonicalJSON(call.Arguments),
					},
				})
			}
			messages = append(messages, m)

		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.ReasoningEffort != "" {
		chatReq.ReasoningEffort = req.ReasoningEffort
	}
	if req.Verbosity != "" {
		chatReq.Verbosity = req.Verbosity
	}

	for _, tool := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return chatReq
}

// processStream accumulates incremental tool calls by index and emits
// them once the stream finishes. Text deltas pass through immediately.
func (p *OpenAI) processStream(stream *openai.ChatCompletionStream, model string, out chan<- StreamChunk) {
	defer close(out)
	defer stream.Close()

	type partial struct {
		id   string
		name string
		args string
	}
	partials := make(map[int]*partial)
	var order []int
	var usage *models.Usage

	flush := func() {
		for _, idx := range order {
			tc := partials[idx]
			if tc == nil || tc.id == "" || tc.name == "" {
				continue
			}
			out <- StreamChunk{ToolCall: &models.ToolCall{
				ID:        tc.id,
				Name:      tc.name,
				Arguments: tools.NormalizeArguments(tc.args),
			}}
		}
		partials = make(map[int]*partial)
		order = nil
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				if usage != nil {
					out <- StreamChunk{Usage: usage}
				}
				out <- StreamChunk{Done: true}
				return
			}
			out <- StreamChunk{Err: p.wrapError(err, model)}
			return
		}

		if response.Usage != nil {
			usage = &models.Usage{
				InputTokens:  response.Usage.PromptTokens,
				OutputTokens: response.Usage.CompletionTokens,
				TotalTokens:  response.Usage.TotalTokens,
			}
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			out <- StreamChunk{Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if partials[index] == nil {
				partials[index] = &partial{}
				order = append(order, index)
			}
			if tc.ID != "" {
				partials[index].id = tc.ID
			}
			if tc.Function.Name != "" {
				partials[index].name = tc.Function.Name
			}
			partials[index].args += tc.Function.Arguments
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

func (p *OpenAI) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr := NewError(p.name, model, err).WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Message != "" {
			perr = perr.WithMessage(apiErr.Message)
		}
		return perr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewError(p.name, model, err).WithStatus(reqErr.HTTPStatusCode)
	}

	return NewError(p.name, model, err)
}
