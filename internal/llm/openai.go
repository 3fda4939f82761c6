package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// openaiClient backs the Client interface with the OpenAI API via
// langchaingo.
type openaiClient struct {
	llm       llms.Model
	model     string
	maxTokens int
	logger    *slog.Logger
}

func newOpenAI(cfg Config, logger *slog.Logger) (*openaiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return &openaiClient{
		llm:       model,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}

func (c *openaiClient) Send(ctx context.Context, prompt string) (string, error) {
	resp, err := c.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeHuman, prompt),
		},
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("openai API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	choice := resp.Choices[0]

	attrs := []any{
		"provider", "openai",
		"model", c.model,
	}
	if n, ok := choice.GenerationInfo["PromptTokens"]; ok {
		attrs = append(attrs, "input_tokens", n)
	}
	if n, ok := choice.GenerationInfo["CompletionTokens"]; ok {
		attrs = append(attrs, "output_tokens", n)
	}
	c.logger.Debug("llm call complete", attrs...)

	return choice.Content, nil
}
