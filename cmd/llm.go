package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/prclass/internal/llm"
)

// newLLMClient creates an LLM client from config/env. The API key is
// required; which env var backs it depends on the configured provider.
func newLLMClient() (llm.Client, error) {
	provider := viper.GetString("llm.provider")

	apiKey := viper.GetString("llm.api_key")
	if apiKey == "" {
		switch provider {
		case "openai":
			apiKey = os.Getenv("OPENAI_API_KEY")
		default:
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key for llm provider %q (set the provider env var or llm.api_key in config)", provider)
	}

	return llm.New(llm.Config{
		Provider:  provider,
		Model:     viper.GetString("llm.model"),
		APIKey:    apiKey,
		MaxTokens: viper.GetInt("llm.max_tokens"),
	}, logger)
}
