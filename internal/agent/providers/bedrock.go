package providers

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/quarryhq/quarry/internal/secrets"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/pkg/models"
)

// Bedrock adapts the AWS Bedrock Converse API.
type Bedrock struct {
	client *bedrockruntime.Client
}

// NewBedrock builds the adapter. Keys in the secret store take
// precedence; otherwise the AWS default chain (env, shared config,
// instance role) applies.
func NewBedrock(store secrets.Store) (Provider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if accessKey, ok := store.Get("AWS_ACCESS_KEY_ID"); ok {
		secretKey, sok := store.Get("AWS_SECRET_ACCESS_KEY")
		if !sok {
			return nil, NewMissingSecret("bedrock", "AWS_SECRET_ACCESS_KEY")
		}
		session, _ := store.Get("AWS_SESSION_TOKEN")
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, session)))
	}
	if region, ok := store.Get("AWS_REGION"); ok {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, NewError("bedrock", "", err)
	}
	return &Bedrock{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

// Name implements Provider.
func (p *Bedrock) Name() string { return "bedrock" }

// Generate implements Provider.
func (p *Bedrock) Generate(ctx context.Context, req *Request) (*Response, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return accumulate(chunks)
}

// Stream implements Provider.
func (p *Bedrock) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	input := p.buildInput(req)

	var stream *bedrockruntime.ConverseStreamOutput
	retry := newRetrier(p.Name(), req.Model)
	err := retry.do(ctx, func() error {
		var callErr error
		stream, callErr = p.client.ConverseStream(ctx, input)
		if callErr != nil {
			return NewError(p.Name(), req.Model, callErr)
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

func (p *Bedrock) buildInput(req *Request) *bedrockruntime.ConverseStreamInput {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(req.Model),
		Messages: convertBedrockMessages(req.Messages),
	}

	if system := collapseSystem(req); system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}

	inference := &types.InferenceConfiguration{}
	configured := false
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(req.MaxTokens))
		configured = true
	}
	if req.Temperature != nil {
		inference.Temperature = aws.Float32(float32(*req.Temperature))
		configured = true
	}
	if configured {
		input.InferenceConfig = inference
	}

	if len(req.Tools) > 0 {
		bedrockTools := make([]types.Tool, 0, len(req.Tools))
		for _, tool := range req.Tools {
			bedrockTools = append(bedrockTools, &types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name:        aws.String(tool.Name),
					Description: aws.String(tool.Description),
					InputSchema: &types.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(tool.Parameters),
					},
				},
			})
		}
		input.ToolConfig = &types.ToolConfiguration{Tools: bedrockTools}
	}

	return input
}

func (p *Bedrock) processStream(stream *bedrockruntime.ConverseStreamOutput, model string, out chan<- StreamChunk) {
	defer close(out)

	eventStream := stream.GetStream()
	defer eventStream.Close()

	var toolCall *models.ToolCall
	var toolInput strings.Builder
	var usage *models.Usage

	finish := func() {
		if usage != nil {
			out <- StreamChunk{Usage: usage}
		}
		out <- StreamChunk{Done: true}
	}

	for event := range eventStream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				toolCall = &models.ToolCall{
					ID:   aws.ToString(toolUse.Value.ToolUseId),
					Name: aws.ToString(toolUse.Value.Name),
				}
				toolInput.Reset()
			}

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				if delta.Value != "" {
					out <- StreamChunk{Text: delta.Value}
				}
			case *types.ContentBlockDeltaMemberToolUse:
				if delta.Value.Input != nil {
					toolInput.WriteString(*delta.Value.Input)
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockStop:
			if toolCall != nil {
				toolCall.Arguments = tools.NormalizeArguments(toolInput.String())
				out <- StreamChunk{ToolCall: toolCall}
				toolCall = nil
			}

		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				usage = &models.Usage{
					InputTokens:  int(aws.ToInt32(ev.Value.Usage.InputTokens)),
					OutputTokens: int(aws.ToInt32(ev.Value.Usage.OutputTokens)),
					TotalTokens:  int(aws.ToInt32(ev.Value.Usage.TotalTokens)),
				}
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			// Metadata can still follow message_stop; keep draining.
		}
	}

	if err := eventStream.Err(); err != nil {
		out <- StreamChunk{Err: NewError(p.Name(), model, err)}
		return
	}
	finish()
}

// convertBedrockMessages maps shared history to Converse messages.
// Tool results ride in user-role messages, matching the Converse
// contract.
func convertBedrockMessages(messages []models.Message) []types.Message {
	result := make([]types.Message, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			result = append(result, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberToolResult{
						Value: types.ToolResultBlock{
							ToolUseId: aws.String(msg.ToolCallID),
							Content: []types.ToolResultContentBlock{
								&types.ToolResultContentBlockMemberText{Value: msg.Content},
							},
						},
					},
				},
			})

		case models.RoleAssistant:
			var content []types.ContentBlock
			if msg.Content != "" {
				content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				input := call.Arguments
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(call.ID),
						Name:      aws.String(call.Name),
						Input:     document.NewLazyDocument(input),
					},
				})
			}
			if len(content) == 0 {
				continue
			}
			result = append(result, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: content,
			})

		default:
			result = append(result, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: msg.Content},
				},
			})
		}
	}

	return result
}
