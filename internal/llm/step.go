package llm

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/tools"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config selects and tunes a model provider.
type Config struct {
	Provider      string
	Model         string
	BaseURL       string
	APIKey        string
	Temperature   float64
	MaxTokens     int
	TextToolCalls bool
}

// ErrMissingAPIKey is returned when the selected provider has no key.
var ErrMissingAPIKey = errors.New("llm api key is required")

// New constructs the decision step for cfg.Provider with ts bound as
// callable tools.
func New(cfg Config, ts []tools.Tool) (assistant.DecisionStep, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		step, err := NewOpenAI(cfg, ts)
		if err != nil {
			return nil, err
		}
		return step, nil
	case ProviderAnthropic:
		step, err := NewAnthropic(cfg, ts)
		if err != nil {
			return nil, err
		}
		return step, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// clock is overridden in tests.
var clock = time.Now

// schemaParts splits a JSON schema object into its properties and required list.
func schemaParts(schema map[string]any) (map[string]any, []string) {
	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = r
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return props, required
}
