// Package llm provides a provider-agnostic text generation client.
package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// Client sends a prompt to a language model and returns the raw text
// response. No retry happens at this layer; retry policy belongs to the
// caller. Errors (auth, provider-side failure) surface to the caller.
type Client interface {
	Send(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Config selects and configures a backend.
type Config struct {
	Provider  string // anthropic, openai
	Model     string
	APIKey    string
	MaxTokens int
}

const defaultMaxTokens = 4096

// New builds the client for the configured provider.
func New(cfg Config, logger *slog.Logger) (Client, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	switch cfg.Provider {
	case "anthropic":
		return newAnthropic(cfg, logger), nil
	case "openai":
		return newOpenAI(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}
