package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/store"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/tools"
)

// scriptedStep replays canned decision results in order.
type scriptedStep struct {
	mu       sync.Mutex
	replies  []func(req DecisionRequest) (domain.Message, error)
	requests []DecisionRequest
}

func (s *scriptedStep) then(msg domain.Message) *scriptedStep {
	s.replies = append(s.replies, func(DecisionRequest) (domain.Message, error) { return msg, nil })
	return s
}

func (s *scriptedStep) thenFunc(fn func(req DecisionRequest) (domain.Message, error)) *scriptedStep {
	s.replies = append(s.replies, fn)
	return s
}

func (s *scriptedStep) Decide(_ context.Context, req DecisionRequest) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := req
	snapshot.Messages = append([]domain.Message(nil), req.Messages...)
	s.requests = append(s.requests, snapshot)

	if len(s.replies) == 0 {
		return domain.Message{}, errors.New("script exhausted")
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return next(req)
}

func (s *scriptedStep) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedStep) lastRequest() DecisionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func text(content string) domain.Message {
	return domain.Message{Role: domain.RoleAssistant, Content: content}
}

func call(id, name string, args map[string]any) domain.ToolInvocation {
	return domain.ToolInvocation{ID: id, Name: name, Args: args}
}

func calls(invs ...domain.ToolInvocation) domain.Message {
	return domain.Message{Role: domain.RoleAssistant, ToolCalls: invs}
}

// fakeTools records executions per tool name.
type fakeTools struct {
	mu    sync.Mutex
	ran   []tools.Call
	names []string
}

func (f *fakeTools) record(name string, c tools.Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	f.ran = append(f.ran, c)
}

func (f *fakeTools) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func (f *fakeTools) registry(t *testing.T, extra ...tools.Tool) *tools.Registry {
	t.Helper()
	base := []tools.Tool{
		{
			Name: "search",
			Run: func(_ context.Context, c tools.Call) (any, error) {
				f.record("search", c)
				return map[string]any{"results": []string{"phone"}}, nil
			},
		},
		{
			Name:              "add_to_cart",
			NeedsConfirmation: true,
			Run: func(_ context.Context, c tools.Call) (any, error) {
				f.record("add_to_cart", c)
				return map[string]any{"message": "Item has been added in your cart."}, nil
			},
		},
		{
			Name: "explode",
			Run: func(context.Context, tools.Call) (any, error) {
				f.record("explode", tools.Call{})
				return nil, errors.New("database exploded")
			},
		},
		{
			Name: "panic",
			Run: func(context.Context, tools.Call) (any, error) {
				f.record("panic", tools.Call{})
				panic("boom")
			},
		},
	}
	reg, err := tools.NewRegistry(append(base, extra...)...)
	require.NoError(t, err)
	return reg
}

// failingStore fails every operation.
type failingStore struct{ store.CheckpointStore }

var errDiskGone = errors.New("disk gone")

func (failingStore) Load(context.Context, string) (*domain.Checkpoint, error) {
	return nil, errDiskGone
}

func (failingStore) Save(context.Context, *domain.Checkpoint) error { return errDiskGone }

// saveFailingStore loads from an inner store but refuses writes.
type saveFailingStore struct{ store.CheckpointStore }

func (saveFailingStore) Save(context.Context, *domain.Checkpoint) error { return errDiskGone }

type recorderFunc func(ctx context.Context, sessionID, userID string, msgs []domain.Message)

func (f recorderFunc) Record(ctx context.Context, sessionID, userID string, msgs []domain.Message) {
	f(ctx, sessionID, userID, msgs)
}
