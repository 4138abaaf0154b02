// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string
	FrontendURL string

	DBPath            string
	CatalogDBPath     string
	CatalogSeedPath   string
	CheckpointBackend string
	BoltPath          string
	SessionTTL        time.Duration
	SweepInterval     time.Duration

	LLM          LLMConfig
	Orchestrator OrchestratorConfig
	RateLimit    RateLimitConfig

	ConversationLog ConversationLogConfig
}

// LLMConfig selects and configures the decision-step provider.
type LLMConfig struct {
	Provider        string
	Model           string
	BaseURL         string
	Temperature     float64
	MaxTokens       int
	TextToolCalls   bool
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// APIKey returns the key for the configured provider.
func (c LLMConfig) APIKey() string {
	if c.Provider == "anthropic" {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// OrchestratorConfig bounds retries, rounds and external call durations.
type OrchestratorConfig struct {
	DecisionMaxAttempts int
	DecisionTimeout     time.Duration
	ToolTimeout         time.Duration
	MaxToolRounds       int
	FailClosed          bool
}

// RateLimitConfig controls per-user request throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		GRPCPort:          getEnv("GRPC_PORT", "50051"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		DBPath:            getEnv("DB_PATH", "./data/assistant.db"),
		CatalogDBPath:     getEnv("CATALOG_DB_PATH", "./data/catalog.db"),
		CatalogSeedPath:   getEnv("CATALOG_SEED_PATH", ""),
		CheckpointBackend: strings.ToLower(getEnv("CHECKPOINT_BACKEND", "sqlite")),
		BoltPath:          getEnv("BOLT_PATH", "./data/checkpoints.bolt"),
		SessionTTL:        getEnvDuration("SESSION_TTL", 24*time.Hour),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
		LLM: LLMConfig{
			Provider:        strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:           getEnv("LLM_MODEL", ""),
			BaseURL:         getEnv("LLM_BASE_URL", ""),
			Temperature:     getEnvFloat("LLM_TEMPERATURE", 0.95),
			MaxTokens:       getEnvInt("LLM_MAX_TOKENS", 1024),
			TextToolCalls:   getEnvBool("LLM_TEXT_TOOL_CALLS", false),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		},
		Orchestrator: OrchestratorConfig{
			DecisionMaxAttempts: getEnvInt("DECISION_MAX_ATTEMPTS", 5),
			DecisionTimeout:     getEnvDuration("DECISION_TIMEOUT", 60*time.Second),
			ToolTimeout:         getEnvDuration("TOOL_TIMEOUT", 15*time.Second),
			MaxToolRounds:       getEnvInt("MAX_TOOL_ROUNDS", 25),
			FailClosed:          getEnvBool("ROUTER_FAIL_CLOSED", false),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.CheckpointBackend {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "bolt":
		if c.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH cannot be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("CHECKPOINT_BACKEND must be sqlite, bolt or memory, got %q", c.CheckpointBackend)
	}
	if c.CatalogDBPath == "" {
		return fmt.Errorf("CATALOG_DB_PATH cannot be empty")
	}
	if c.LLM.Provider != "openai" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("LLM_PROVIDER must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	if c.Orchestrator.DecisionMaxAttempts < 0 {
		return fmt.Errorf("DECISION_MAX_ATTEMPTS must be >= 0")
	}
	if c.Orchestrator.DecisionTimeout <= 0 || c.Orchestrator.ToolTimeout <= 0 {
		return fmt.Errorf("DECISION_TIMEOUT and TOOL_TIMEOUT must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("90s") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
