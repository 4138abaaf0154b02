package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/tools"
)

const defaultOpenAIModel = "gpt-4"

// OpenAIStep is a decision step backed by an OpenAI-compatible chat model.
type OpenAIStep struct {
	model        llms.Model
	tools        []llms.Tool
	temperature  float64
	maxTokens    int
	textProtocol bool
}

// NewOpenAI creates an OpenAI decision step.
func NewOpenAI(cfg Config, ts []tools.Tool) (*OpenAIStep, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return newOpenAIStep(client, cfg, ts), nil
}

func newOpenAIStep(model llms.Model, cfg Config, ts []tools.Tool) *OpenAIStep {
	return &OpenAIStep{
		model:        model,
		tools:        toLangchainTools(ts),
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		textProtocol: cfg.TextToolCalls,
	}
}

// Decide sends the conversation to the model and converts its first choice.
func (s *OpenAIStep) Decide(ctx context.Context, req assistant.DecisionRequest) (domain.Message, error) {
	messages := toLangchainMessages(SystemPrompt(req.Identity, clock(), s.textProtocol), req.Messages)

	var opts []llms.CallOption
	if s.temperature > 0 {
		opts = append(opts, llms.WithTemperature(s.temperature))
	}
	if s.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(s.maxTokens))
	}
	if len(s.tools) > 0 {
		opts = append(opts, llms.WithTools(s.tools))
	}

	resp, err := s.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return domain.Message{}, fmt.Errorf("openai generate: %w", err)
	}

	msg := fromLangchainResponse(resp)
	if s.textProtocol {
		msg = ApplyTextProtocol(msg)
	}
	return msg, nil
}

func toLangchainTools(ts []tools.Tool) []llms.Tool {
	if len(ts) == 0 {
		return nil
	}
	out := make([]llms.Tool, 0, len(ts))
	for _, t := range ts {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func toLangchainMessages(system string, history []domain.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history)+1)
	out = append(out, llms.MessageContent{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart(system)},
	})

	callNames := map[string]string{}
	for _, m := range history {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, llms.MessageContent{
				Role:  llms.ChatMessageTypeSystem,
				Parts: []llms.ContentPart{llms.TextPart(m.Text())},
			})
		case domain.RoleUser:
			out = append(out, llms.MessageContent{
				Role:  llms.ChatMessageTypeHuman,
				Parts: []llms.ContentPart{llms.TextPart(m.Text())},
			})
		case domain.RoleAssistant:
			var parts []llms.ContentPart
			if text := m.Text(); text != "" {
				parts = append(parts, llms.TextPart(text))
			}
			for _, tc := range m.ToolCalls {
				callNames[tc.ID] = tc.Name
				args, err := json.Marshal(tc.Args)
				if err != nil || tc.Args == nil {
					args = []byte("{}")
				}
				parts = append(parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case domain.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       callNames[m.ToolCallID],
					Content:    m.Content,
				}},
			})
		}
	}
	return out
}

func fromLangchainResponse(resp *llms.ContentResponse) domain.Message {
	msg := domain.NewAssistantMessage("")
	if resp == nil || len(resp.Choices) == 0 {
		return msg
	}

	choice := resp.Choices[0]
	msg.Content = choice.Content
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		var args map[string]any
		if tc.FunctionCall.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
				slog.Warn("discarding undecodable tool arguments",
					"tool", tc.FunctionCall.Name,
					"error", err)
				args = nil
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolInvocation{
			ID:   tc.ID,
			Name: tc.FunctionCall.Name,
			Args: args,
		})
	}
	return msg
}
