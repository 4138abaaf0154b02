package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/config"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		CheckpointBackend: backend,
		DBPath:            filepath.Join(dir, "assistant.db"),
		BoltPath:          filepath.Join(dir, "checkpoints.bolt"),
		CatalogDBPath:     filepath.Join(dir, "catalog.db"),
		LLM:               config.LLMConfig{Provider: "openai"},
		Orchestrator: config.OrchestratorConfig{
			DecisionMaxAttempts: 3,
			DecisionTimeout:     time.Second,
			ToolTimeout:         time.Second,
			MaxToolRounds:       5,
		},
		ConversationLog: config.ConversationLogConfig{
			Enabled:   true,
			Dir:       filepath.Join(dir, "logs"),
			QueueSize: 8,
		},
	}
}

func TestBuildWiresCatalogToolsAndStore(t *testing.T) {
	for _, backend := range []string{"sqlite", "bolt", "memory"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)

			step := assistant.DecisionStepFunc(func(_ context.Context, req assistant.DecisionRequest) (domain.Message, error) {
				last := req.Messages[len(req.Messages)-1]
				if last.Role == domain.RoleUser {
					return domain.NewAssistantMessage("", domain.ToolInvocation{ID: "c1", Name: "fetch_all_categories"}), nil
				}
				return domain.NewAssistantMessage(last.Content), nil
			})

			a, err := Build(context.Background(), cfg,
				WithDecisionStep(step),
				WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }))
			require.NoError(t, err)
			defer func() { require.NoError(t, a.Close()) }()

			require.NoError(t, a.Ping(context.Background()))
			assert.ElementsMatch(t, []string{"add_to_cart", "remove_from_cart"}, a.Tools.ConfirmationRequired())

			res, err := a.Engine.Advance(context.Background(), "u1:tab", "u1", "what do you sell?")
			require.NoError(t, err)
			require.NotNil(t, res.Reply)

			var categories []string
			require.NoError(t, json.Unmarshal([]byte(res.Reply.Content), &categories))
			assert.Contains(t, categories, "smartphones")
		})
	}
}

func TestBuildRequiresAPIKeyWithoutInjectedStep(t *testing.T) {
	cfg := testConfig(t, "memory")
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}
