package providers

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/quarryhq/quarry/internal/secrets"
	"github.com/quarryhq/quarry/pkg/models"
)

// Google adapts the Gemini API through google.golang.org/genai.
type Google struct {
	client *genai.Client
}

// NewGoogle builds the adapter from GEMINI_API_KEY.
func NewGoogle(store secrets.Store) (Provider, error) {
	key, ok := store.Get("GEMINI_API_KEY")
	if !ok {
		return nil, NewMissingSecret("google", "GEMINI_API_KEY")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewError("google", "", err)
	}
	return &Google{client: client}, nil
}

// Name implements Provider.
func (p *Google) Name() string { return "google" }

// Generate implements Provider.
func (p *Google) Generate(ctx context.Context, req *Request) (*Response, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return accumulate(chunks)
}

// Stream implements Provider.
func (p *Google) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	contents := convertGeminiMessages(req.Messages)
	config := p.buildConfig(req)

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		retry := newRetrier(p.Name(), req.Model)
		err := retry.doStream(ctx, func() (bool, error) {
			return p.streamOnce(ctx, req.Model, contents, config, out)
		})
		if err != nil {
			out <- StreamChunk{Err: err}
			return
		}
		out <- StreamChunk{Done: true}
	}()
	return out, nil
}

// streamOnce runs one attempt; emitted reports whether any chunk
// already reached the consumer, which rules out a replay.
func (p *Google) streamOnce(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig, out chan<- StreamChunk) (emitted bool, err error) {
	var usage *models.Usage
	callSeq := 0

	for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			return emitted, NewError(p.Name(), model, err)
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			usage = &models.Usage{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
			}
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					emitted = true
					out <- StreamChunk{Text: part.Text}
				}
				if part.FunctionCall != nil {
					callSeq++
					id := part.FunctionCall.ID
					if id == "" {
						// Gemini omits call ids; synthesize stable ones
						// so tool results can reference them.
						id = fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, callSeq)
					}
					emitted = true
					out <- StreamChunk{ToolCall: &models.ToolCall{
						ID:        id,
						Name:      part.FunctionCall.Name,
						Arguments: part.FunctionCall.Args,
					}}
				}
			}
		}
	}

	if usage != nil {
		out <- StreamChunk{Usage: usage}
	}
	return true, nil
}

func (p *Google) buildConfig(req *Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if system := collapseSystem(req); system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}

	if len(req.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGeminiSchema(tool.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	return config
}

// convertGeminiMessages maps shared history to Gemini contents. Tool
// results become function responses on the user side; the tool name is
// required because Gemini correlates by name, not id.
func convertGeminiMessages(messages []models.Message) []*genai.Content {
	var result []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			result = append(result, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:   msg.ToolCallID,
						Name: msg.ToolName,
						Response: map[string]any{
							"result": msg.Content,
						},
					},
				}},
			})

		case models.RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: call.Arguments,
					},
				})
			}
			if len(content.Parts) > 0 {
				result = append(result, content)
			}

		default:
			result = append(result, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	return result
}

// toGeminiSchema converts a JSON-schema map to Gemini's typed schema.
func toGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	schema.Required = requiredList(schemaMap)
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}
	return schema
}
