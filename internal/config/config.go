// Package config loads and validates the runtime configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the runtime.
type Config struct {
	// Provider selects and configures the completion backend.
	Provider ProviderConfig `yaml:"provider" json:"provider"`

	// Agent configures run behavior.
	Agent AgentConfig `yaml:"agent" json:"agent"`

	// Storage configures session and books persistence.
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Gateway configures the HTTP streaming gateway.
	Gateway GatewayConfig `yaml:"gateway" json:"gateway"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" json:"log"`
}

// ProviderConfig selects the completion provider.
type ProviderConfig struct {
	// Name is "anthropic" or "openai".
	Name string `yaml:"name" json:"name"`

	// APIKey authenticates against the provider. Supports ${ENV} expansion.
	APIKey string `yaml:"api_key" json:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model overrides the provider's default model.
	Model string `yaml:"model" json:"model"`

	// MaxRetries bounds transport-level retries. Default: 3.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// RetryDelay is the base backoff delay. Default: 1s.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// AgentConfig configures run behavior.
type AgentConfig struct {
	// MaxSteps is the completion-step ceiling per run. Default: 5.
	MaxSteps int `yaml:"max_steps" json:"max_steps"`

	// MaxTokens limits each completion response. Default: 4096.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// SystemPrompt is the system instruction for every run.
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`

	// CompletionTimeout bounds a single completion call. Default: 120s.
	CompletionTimeout time.Duration `yaml:"completion_timeout" json:"completion_timeout"`

	// ToolTimeout is the per-tool-call execution budget. Default: 30s.
	ToolTimeout time.Duration `yaml:"tool_timeout" json:"tool_timeout"`

	// ToolConcurrency caps parallel tool calls in one step. Default: 4.
	ToolConcurrency int `yaml:"tool_concurrency" json:"tool_concurrency"`

	// HistoryLimit caps seeded session history. Default: 50.
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	// Driver is "memory" or "sqlite". Default: "memory".
	Driver string `yaml:"driver" json:"driver"`

	// Path is the SQLite database file for the sqlite driver.
	Path string `yaml:"path" json:"path"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	// Addr is the listen address. Default: ":8080".
	Addr string `yaml:"addr" json:"addr"`

	// ReadTimeout bounds request header reads. Default: 10s.
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error". Default: "info".
	Level string `yaml:"level" json:"level"`

	// Format is "json" or "text". Default: "json".
	Format string `yaml:"format" json:"format"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = "anthropic"
	}
	if c.Provider.MaxRetries <= 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Provider.RetryDelay <= 0 {
		c.Provider.RetryDelay = time.Second
	}

	if c.Agent.MaxSteps <= 0 {
		c.Agent.MaxSteps = 5
	}
	if c.Agent.MaxTokens <= 0 {
		c.Agent.MaxTokens = 4096
	}
	if c.Agent.CompletionTimeout <= 0 {
		c.Agent.CompletionTimeout = 120 * time.Second
	}
	if c.Agent.ToolTimeout <= 0 {
		c.Agent.ToolTimeout = 30 * time.Second
	}
	if c.Agent.ToolConcurrency <= 0 {
		c.Agent.ToolConcurrency = 4
	}
	if c.Agent.HistoryLimit <= 0 {
		c.Agent.HistoryLimit = 50
	}
	if c.Agent.SystemPrompt == "" {
		c.Agent.SystemPrompt = defaultSystemPrompt
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.Gateway.Addr == "" {
		c.Gateway.Addr = ":8080"
	}
	if c.Gateway.ReadTimeout <= 0 {
		c.Gateway.ReadTimeout = 10 * time.Second
	}
	if c.Gateway.ShutdownTimeout <= 0 {
		c.Gateway.ShutdownTimeout = 10 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("provider.name must be \"anthropic\" or \"openai\", got %q", c.Provider.Name)
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("storage.driver must be \"memory\" or \"sqlite\", got %q", c.Storage.Driver)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}

	if c.Agent.MaxSteps > 50 {
		return fmt.Errorf("agent.max_steps %d is unreasonably high (max 50)", c.Agent.MaxSteps)
	}

	return nil
}

const defaultSystemPrompt = `You are Numera, a careful bookkeeping assistant. ` +
	`You help with ledgers, invoices, and bank activity using the tools ` +
	`available to you. Never invent financial figures: if a tool call fails ` +
	`or data is missing, say so.`
