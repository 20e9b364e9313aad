package providers

import (
	"fmt"
	"time"

	"github.com/numera-ai/numera/internal/agent"
)

// Options carries the provider-neutral connection settings.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

// New constructs the named completion provider.
// Supported names: "anthropic", "openai".
func New(name string, opts Options) (agent.CompletionProvider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:       opts.APIKey,
			BaseURL:      opts.BaseURL,
			DefaultModel: opts.Model,
			MaxRetries:   opts.MaxRetries,
			RetryDelay:   opts.RetryDelay,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:       opts.APIKey,
			BaseURL:      opts.BaseURL,
			DefaultModel: opts.Model,
			MaxRetries:   opts.MaxRetries,
			RetryDelay:   opts.RetryDelay,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
