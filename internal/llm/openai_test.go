package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/tools"
)

type fakeModel struct {
	got  []llms.MessageContent
	opts llms.CallOptions
	resp *llms.ContentResponse
	err  error
}

func (f *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = msgs
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

var testTools = []tools.Tool{
	{
		Name:        "add_to_cart",
		Description: "Adds an item",
		Parameters:  tools.Object(map[string]any{"product_id": tools.Prop("integer", "id")}, "product_id"),
	},
}

func TestOpenAIStepConvertsConversation(t *testing.T) {
	fake := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content: "",
		ToolCalls: []llms.ToolCall{{
			ID:           "call_9",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "add_to_cart", Arguments: `{"product_id": 5}`},
		}},
	}}}}
	step := newOpenAIStep(fake, Config{Temperature: 0.95}, testTools)

	history := []domain.Message{
		domain.NewUserMessage("add phone 2"),
		domain.NewAssistantMessage("", domain.ToolInvocation{ID: "c1", Name: "add_to_cart", Args: map[string]any{"product_id": float64(2)}}),
		domain.NewToolMessage("c1", `{"message":"ok"}`, false),
	}
	msg, err := step.Decide(context.Background(), assistant.DecisionRequest{Messages: history, Identity: "u1"})
	require.NoError(t, err)

	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_9", msg.ToolCalls[0].ID)
	assert.Equal(t, float64(5), msg.ToolCalls[0].Args["product_id"])

	require.Len(t, fake.got, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.got[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, fake.got[2].Role)
	call, ok := fake.got[2].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.JSONEq(t, `{"product_id":2}`, call.FunctionCall.Arguments)
	resp, ok := fake.got[3].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "c1", resp.ToolCallID)
	assert.Equal(t, "add_to_cart", resp.Name)

	assert.InDelta(t, 0.95, fake.opts.Temperature, 0.0001)
	require.Len(t, fake.opts.Tools, 1)
	assert.Equal(t, "add_to_cart", fake.opts.Tools[0].Function.Name)
}

func TestOpenAIStepTextProtocol(t *testing.T) {
	fake := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Tool: fetch_all_categories()"}}}}
	step := newOpenAIStep(fake, Config{TextToolCalls: true}, nil)

	msg, err := step.Decide(context.Background(), assistant.DecisionRequest{Messages: []domain.Message{domain.NewUserMessage("hi")}})
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "fetch_all_categories", msg.ToolCalls[0].Name)
	assert.Contains(t, fake.got[0].Parts[0].(llms.TextContent).Text, "Tool: tool_name")
}

func TestOpenAIStepPropagatesErrors(t *testing.T) {
	step := newOpenAIStep(&fakeModel{err: errors.New("rate limited")}, Config{}, nil)
	_, err := step.Decide(context.Background(), assistant.DecisionRequest{})
	require.Error(t, err)

	_, err = NewOpenAI(Config{}, nil)
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "parrot", APIKey: "k"}, nil)
	require.Error(t, err)
}
