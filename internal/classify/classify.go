package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joescharf/prclass/internal/llm"
	"github.com/joescharf/prclass/internal/models"
)

const (
	defaultMaxRetries = 2
	defaultRetryDelay = 2 * time.Second
)

// Classifier orchestrates context building, prompting, and response
// validation for one LLM backend.
type Classifier struct {
	llm        llm.Client
	logger     *slog.Logger
	maxRetries int
	sleep      func(time.Duration)
	retryDelay time.Duration
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithMaxRetries sets how many extra attempts follow a parse or
// validation failure.
func WithMaxRetries(n int) ClassifierOption {
	return func(c *Classifier) { c.maxRetries = n }
}

// WithSleep replaces the delay between validation retries.
func WithSleep(fn func(time.Duration)) ClassifierOption {
	return func(c *Classifier) { c.sleep = fn }
}

// NewClassifier builds a classifier on top of an LLM client.
func NewClassifier(client llm.Client, logger *slog.Logger, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		llm:        client,
		logger:     logger,
		maxRetries: defaultMaxRetries,
		sleep:      time.Sleep,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// classificationResult is the JSON shape the model is asked to return.
type classificationResult struct {
	Difficulty            string   `json:"difficulty"`
	TaskClarity           string   `json:"task_clarity"`
	IsReproducible        string   `json:"is_reproducible"`
	OnboardingSuitability string   `json:"onboarding_suitability"`
	Categories            []string `json:"categories"`
	ConceptsTaught        []string `json:"concepts_taught"`
	Prerequisites         []string `json:"prerequisites"`
	Reasoning             string   `json:"reasoning"`
}

// Classify runs the full classification loop for one enriched item.
//
// Parse failures get a follow-up prompt asking the model to fix its own
// JSON; validation failures resend the original prompt. Either way the
// total attempt count is bounded. Provider errors are not retried here.
func (c *Classifier) Classify(ctx context.Context, item *models.Item) (*models.Classification, error) {
	prompt := BuildClassificationPrompt(BuildContext(item))
	c.logger.Debug("built classification prompt", "item", item.Number, "chars", len(prompt))

	var response string
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		if response == "" {
			var err error
			response, err = c.llm.Send(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("llm call: %w", err)
			}
		}

		result, parseErr := parseClassification(response)
		if parseErr != nil {
			c.logger.Warn("failed to parse classification response",
				"item", item.Number,
				"attempt", attempt,
				"error", parseErr,
			)
			if attempt > c.maxRetries {
				return nil, fmt.Errorf("parse classification after %d attempts: %w", attempt, parseErr)
			}
			fixed, err := c.llm.Send(ctx, fixJSONPrompt(response))
			if err != nil {
				return nil, fmt.Errorf("llm call: %w", err)
			}
			response = fixed
			continue
		}

		if err := validateClassification(result); err != nil {
			c.logger.Warn("classification failed validation",
				"item", item.Number,
				"attempt", attempt,
				"error", err,
			)
			if attempt > c.maxRetries {
				return nil, fmt.Errorf("invalid classification after %d attempts: %w", attempt, err)
			}
			response = ""
			c.sleep(c.retryDelay)
			continue
		}

		c.logger.Info("classified item",
			"item", item.Number,
			"difficulty", result.Difficulty,
			"attempt", attempt,
		)
		return &models.Classification{
			ItemID:                item.ID,
			Repo:                  item.Repo,
			Number:                item.Number,
			Title:                 item.Title,
			MergedAt:              item.MergedAt,
			SourceURL:             item.SourceURL(),
			Difficulty:            models.Difficulty(result.Difficulty),
			TaskClarity:           result.TaskClarity,
			IsReproducible:        result.IsReproducible,
			OnboardingSuitability: result.OnboardingSuitability,
			Categories:            result.Categories,
			ConceptsTaught:        result.ConceptsTaught,
			Prerequisites:         result.Prerequisites,
			Reasoning:             result.Reasoning,
		}, nil
	}

	return nil, fmt.Errorf("classification did not converge")
}

func fixJSONPrompt(malformed string) string {
	return "The following JSON is malformed. Please return a corrected, " +
		"properly formatted JSON object with the same content:\n\n" + malformed
}

// parseClassification extracts a JSON object from the raw model response,
// tolerating markdown fences and surrounding prose.
func parseClassification(response string) (*classificationResult, error) {
	raw, err := extractJSON(response)
	if err != nil {
		return nil, err
	}
	var result classificationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("unmarshal classification: %w", err)
	}
	return &result, nil
}

func extractJSON(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	if idx := strings.Index(response, "```json"); idx >= 0 {
		rest := response[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end > 0 {
			candidate := strings.TrimSpace(rest[:end])
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		candidate := response[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

var (
	validDifficulties = []string{"trivial", "easy", "medium", "hard"}
	validClarity      = []string{"clear", "partial", "poor"}
	validReproducible = []string{"highly likely", "maybe", "unclear"}
	validSuitability  = []string{"excellent", "poor"}
)

func validateClassification(r *classificationResult) error {
	if err := oneOf("difficulty", r.Difficulty, validDifficulties); err != nil {
		return err
	}
	if err := oneOf("task_clarity", r.TaskClarity, validClarity); err != nil {
		return err
	}
	if err := oneOf("is_reproducible", r.IsReproducible, validReproducible); err != nil {
		return err
	}
	if err := oneOf("onboarding_suitability", r.OnboardingSuitability, validSuitability); err != nil {
		return err
	}
	for field, values := range map[string][]string{
		"categories":      r.Categories,
		"concepts_taught": r.ConceptsTaught,
		"prerequisites":   r.Prerequisites,
	} {
		if len(values) == 0 {
			return fmt.Errorf("%s must not be empty", field)
		}
	}
	if strings.TrimSpace(r.Reasoning) == "" {
		return fmt.Errorf("reasoning must be a non-empty string")
	}
	return nil
}

func oneOf(field, value string, valid []string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q, must be one of: %s", field, value, strings.Join(valid, ", "))
}
