package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/prclass/internal/models"
)

// stubLLM replays canned responses and records the prompts it received.
type stubLLM struct {
	responses []string
	err       error
	prompts   []string
}

func (s *stubLLM) Send(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	i := len(s.prompts) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *stubLLM) Model() string { return "stub" }

func newTestClassifier(stub *stubLLM) *Classifier {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClassifier(stub, logger, WithSleep(func(time.Duration) {}))
}

const validJSON = `{
	"difficulty": "easy",
	"task_clarity": "clear",
	"is_reproducible": "highly likely",
	"onboarding_suitability": "excellent",
	"categories": ["bug-fix"],
	"concepts_taught": ["error handling"],
	"prerequisites": ["basic Go"],
	"reasoning": "Small, well documented fix with reproduction steps."
}`

func enrichedItem() *models.Item {
	return &models.Item{
		ID:       "01TESTULID",
		Repo:     "acme/widget",
		Number:   42,
		Source:   models.SourceGitHub,
		Title:    "Fix widget crash",
		Body:     "Fixes #7",
		MergedAt: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		Enrichment: &models.Enrichment{
			Files: []models.ChangedFile{
				{Path: "main.go", Status: "modified", Additions: 3, Deletions: 1, Patch: "@@ -1 +1 @@"},
			},
		},
	}
}

func TestClassify_Success(t *testing.T) {
	stub := &stubLLM{responses: []string{validJSON}}
	c := newTestClassifier(stub)

	got, err := c.Classify(context.Background(), enrichedItem())
	require.NoError(t, err)

	assert.Equal(t, "01TESTULID", got.ItemID)
	assert.Equal(t, models.DifficultyEasy, got.Difficulty)
	assert.Equal(t, "clear", got.TaskClarity)
	assert.Equal(t, []string{"bug-fix"}, got.Categories)
	assert.Equal(t, "https://github.com/acme/widget/pull/42", got.SourceURL)
	assert.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], "Fix widget crash")
}

func TestClassify_FencedJSON(t *testing.T) {
	stub := &stubLLM{responses: []string{"Here is the classification:\n```json\n" + validJSON + "\n```\nDone."}}
	c := newTestClassifier(stub)

	got, err := c.Classify(context.Background(), enrichedItem())
	require.NoError(t, err)
	assert.Equal(t, models.DifficultyEasy, got.Difficulty)
	assert.Len(t, stub.prompts, 1, "extractable JSON must not trigger a retry")
}

func TestClassify_MalformedOnceThenFixed(t *testing.T) {
	stub := &stubLLM{responses: []string{"difficulty: easy, not json at all", validJSON}}
	c := newTestClassifier(stub)

	got, err := c.Classify(context.Background(), enrichedItem())
	require.NoError(t, err)
	assert.Equal(t, models.DifficultyEasy, got.Difficulty)

	// exactly one retry, and it asks the model to fix its own output
	require.Len(t, stub.prompts, 2)
	assert.Contains(t, stub.prompts[1], "malformed")
	assert.Contains(t, stub.prompts[1], "difficulty: easy, not json at all")
}

func TestClassify_InvalidFieldsResendOriginalPrompt(t *testing.T) {
	invalid := `{
		"difficulty": "impossible",
		"task_clarity": "clear",
		"is_reproducible": "maybe",
		"onboarding_suitability": "poor",
		"categories": ["bug-fix"],
		"concepts_taught": ["x"],
		"prerequisites": ["y"],
		"reasoning": "r"
	}`
	stub := &stubLLM{responses: []string{invalid, validJSON}}
	c := newTestClassifier(stub)

	got, err := c.Classify(context.Background(), enrichedItem())
	require.NoError(t, err)
	assert.Equal(t, models.DifficultyEasy, got.Difficulty)

	require.Len(t, stub.prompts, 2)
	assert.Equal(t, stub.prompts[0], stub.prompts[1], "validation failure resends the original prompt")
}

func TestClassify_PersistentFailure(t *testing.T) {
	stub := &stubLLM{responses: []string{"still not json"}}
	c := newTestClassifier(stub)

	_, err := c.Classify(context.Background(), enrichedItem())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse classification")
	// first attempt plus two fix attempts
	assert.Len(t, stub.prompts, 3)
}

func TestClassify_ProviderErrorNotRetried(t *testing.T) {
	stub := &stubLLM{err: errors.New("overloaded")}
	c := newTestClassifier(stub)

	_, err := c.Classify(context.Background(), enrichedItem())
	require.Error(t, err)
	assert.Len(t, stub.prompts, 1)
}

func TestValidateClassification_EmptyArrays(t *testing.T) {
	r := &classificationResult{
		Difficulty:            "easy",
		TaskClarity:           "clear",
		IsReproducible:        "maybe",
		OnboardingSuitability: "poor",
		Categories:            []string{},
		ConceptsTaught:        []string{"x"},
		Prerequisites:         []string{"y"},
		Reasoning:             "r",
	}
	err := validateClassification(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "categories")
}

func TestExtractJSON_BracesInProse(t *testing.T) {
	raw, err := extractJSON("Sure! " + validJSON + " Hope that helps.")
	require.NoError(t, err)
	assert.Contains(t, raw, `"difficulty"`)
}

func TestGenerateIssue_PassesThroughRawOutput(t *testing.T) {
	stub := &stubLLM{responses: []string{"## Motivation\nbroken output { not json"}}
	c := newTestClassifier(stub)

	md, err := c.GenerateIssue(context.Background(), enrichedItem(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "## Motivation\nbroken output { not json", md)

	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], "No classification available")
	assert.Contains(t, stub.prompts[0], "PULL REQUEST METADATA")
	assert.NotContains(t, stub.prompts[0], PlaceholderContext)
}

func TestGenerateIssue_OverrideTemplate(t *testing.T) {
	stub := &stubLLM{responses: []string{"generated"}}
	c := newTestClassifier(stub)

	cls := &models.Classification{
		Difficulty:     models.DifficultyHard,
		TaskClarity:    "partial",
		IsReproducible: "maybe",
		Categories:     []string{"refactor"},
		ConceptsTaught: []string{"interfaces"},
		Prerequisites:  []string{"Go generics"},
		Reasoning:      "complex",
	}
	_, err := c.GenerateIssue(context.Background(), enrichedItem(), cls,
		"CLS:\n{classification_info}\nCTX:\n{item_context}")
	require.NoError(t, err)

	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], "Difficulty: hard")
	assert.Contains(t, stub.prompts[0], "CLS:\n")
	assert.Contains(t, stub.prompts[0], "Repository: acme/widget")
}
