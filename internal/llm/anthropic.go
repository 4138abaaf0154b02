package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/tools"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicStep is a decision step backed by the Anthropic Messages API.
type AnthropicStep struct {
	client       anthropic.Client
	model        anthropic.Model
	tools        []anthropic.ToolUnionParam
	temperature  float64
	maxTokens    int64
	textProtocol bool
}

// NewAnthropic creates an Anthropic decision step.
func NewAnthropic(cfg Config, ts []tools.Tool, extra ...option.RequestOption) (*AnthropicStep, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicStep{
		client:       anthropic.NewClient(opts...),
		model:        model,
		tools:        toAnthropicTools(ts),
		temperature:  cfg.Temperature,
		maxTokens:    maxTokens,
		textProtocol: cfg.TextToolCalls,
	}, nil
}

// Decide sends the conversation to Claude and converts the reply.
func (s *AnthropicStep) Decide(ctx context.Context, req assistant.DecisionRequest) (domain.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt(req.Identity, clock(), s.textProtocol)},
		},
		Messages: toAnthropicMessages(req.Messages),
		Tools:    s.tools,
	}
	if s.temperature > 0 {
		// The Messages API caps temperature at 1.
		params.Temperature = anthropic.Float(min(s.temperature, 1))
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return domain.Message{}, fmt.Errorf("anthropic messages: %w", err)
	}

	msg := fromAnthropicResponse(resp)
	if s.textProtocol {
		msg = ApplyTextProtocol(msg)
	}
	return msg, nil
}

func toAnthropicTools(ts []tools.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(ts))
	for _, t := range ts {
		props, required := schemaParts(t.Parameters)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return out
}

// toAnthropicMessages converts history, folding tool results into user
// turns and merging consecutive turns of the same role.
func toAnthropicMessages(history []domain.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	push := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, m := range history {
		switch m.Role {
		case domain.RoleUser, domain.RoleSystem:
			if text := m.Text(); text != "" {
				push(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(text))
			}
		case domain.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := m.Text(); strings.TrimSpace(text) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range m.ToolCalls {
				input := tc.Args
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			push(anthropic.MessageParamRoleAssistant, blocks...)
		case domain.RoleTool:
			push(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError))
		}
	}
	return out
}

func fromAnthropicResponse(resp *anthropic.Message) domain.Message {
	msg := domain.NewAssistantMessage("")
	if resp == nil {
		return msg
	}
	msg.ID = resp.ID

	var text []string
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			msg.Parts = append(msg.Parts, domain.ContentPart{Type: "text", Text: variant.Text})
			if variant.Text != "" {
				text = append(text, variant.Text)
			}
		case anthropic.ToolUseBlock:
			msg.Parts = append(msg.Parts, domain.ContentPart{Type: "tool_use"})
			var args map[string]any
			if len(variant.Input) > 0 {
				if err := json.Unmarshal(variant.Input, &args); err != nil {
					slog.Warn("discarding undecodable tool arguments",
						"tool", variant.Name,
						"error", err)
					args = nil
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, domain.ToolInvocation{
				ID:   variant.ID,
				Name: variant.Name,
				Args: args,
			})
		}
	}
	msg.Content = strings.Join(text, "\n")
	return msg
}
