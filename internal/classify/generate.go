package classify

import (
	"context"
	"fmt"

	"github.com/joescharf/prclass/internal/models"
)

// GenerateIssue produces a practice-issue markdown document for an item.
// classification may be nil. template may be an operator override using
// the standard placeholders; empty means the default template.
//
// The raw model output is the result: no parsing, no validation, no
// retry. The operator judges quality and regenerates if needed.
func (c *Classifier) GenerateIssue(ctx context.Context, item *models.Item, classification *models.Classification, template string) (string, error) {
	if template == "" {
		template = DefaultIssuePrompt
	}

	prompt := FillIssuePrompt(template, BuildContext(item), FormatClassificationInfo(classification))
	c.logger.Debug("built issue generation prompt", "item", item.Number, "chars", len(prompt))

	markdown, err := c.llm.Send(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}

	c.logger.Info("generated issue", "item", item.Number, "chars", len(markdown))
	return markdown, nil
}
