package rpc

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/store"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/tools"
)

func step(_ context.Context, req assistant.DecisionRequest) (domain.Message, error) {
	last := req.Messages[len(req.Messages)-1]
	if last.Role == domain.RoleUser && strings.Contains(last.Content, "remove") {
		return domain.NewAssistantMessage("", domain.ToolInvocation{
			ID: "call_r", Name: "remove_from_cart", Args: map[string]any{"product_id": float64(4)},
		}), nil
	}
	if last.Role == domain.RoleTool {
		return domain.NewAssistantMessage("ok: " + last.Content), nil
	}
	return domain.NewAssistantMessage("Welcome!"), nil
}

func startServer(t *testing.T) *Client {
	t.Helper()

	reg, err := tools.NewRegistry(tools.Tool{
		Name:              "remove_from_cart",
		NeedsConfirmation: true,
		Run: func(context.Context, tools.Call) (any, error) {
			return map[string]string{"message": "removed"}, nil
		},
	})
	require.NoError(t, err)
	engine, err := assistant.New(assistant.DecisionStepFunc(step), reg, store.NewMemory(), assistant.DefaultConfig())
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	Register(gs, NewServer(engine, nil))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	client, err := NewClient(ClientConfig{Address: lis.Addr().String(), RequestTimeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestRemoteConversation(t *testing.T) {
	client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))

	res, err := client.Advance(ctx, "s1", "u1", "hi")
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, res.State)
	require.NotNil(t, res.Reply)
	assert.Equal(t, "Welcome!", res.Reply.Content)

	res, err = client.Advance(ctx, "s1", "u1", "remove item 4")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSuspended, res.State)
	require.NotNil(t, res.Pending)
	assert.Equal(t, "remove_from_cart", res.Pending.Name)
	assert.Equal(t, float64(4), res.Pending.Args["product_id"])

	res, err = client.Resume(ctx, "s1", true, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, res.State)
	assert.Contains(t, res.Reply.Content, "removed")

	cp, err := client.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", cp.UserID)
	assert.Len(t, cp.Messages, 6)
	assert.EqualValues(t, 3, cp.Version)
}

func TestRemoteErrorsKeepTheirClass(t *testing.T) {
	client := startServer(t)
	ctx := context.Background()

	_, err := client.Resume(ctx, "nobody", false, "no")
	require.Error(t, err)
	assert.True(t, errdefs.IsFailedPrecondition(err), err.Error())

	_, err = client.Advance(ctx, "s2", "u2", "  ")
	require.Error(t, err)
	assert.True(t, errdefs.IsInvalidArgument(err), err.Error())
}
