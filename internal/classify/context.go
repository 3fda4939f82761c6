// Package classify turns enriched items into LLM classifications and
// generated practice issues.
package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/prclass/internal/forge"
	"github.com/joescharf/prclass/internal/models"
)

// MaxContextChars is the soft budget for a built context, roughly 20k
// tokens. Patches are truncated first to fit, then discussion comments;
// metadata and description are always kept verbatim.
const MaxContextChars = 80_000

const banner = "================================================================================"
const commentRule = "--------------------------------------------------------------------------------"

// BuildContext renders an item into the fixed-section prompt context.
// Pure and deterministic: same item, same output.
func BuildContext(item *models.Item) string {
	out := renderContext(item, forge.MaxPatchLines, -1)
	if len(out) <= MaxContextChars {
		return out
	}

	// Over budget: shrink patch budgets first.
	for _, patchLines := range []int{50, 25, 10, 5, 0} {
		out = renderContext(item, patchLines, -1)
		if len(out) <= MaxContextChars {
			return out
		}
	}

	// Still over: drop discussion comments from the end.
	maxComments := 0
	if item.Enrichment != nil {
		maxComments = len(item.Enrichment.IssueComments)
	}
	for maxComments > 0 {
		maxComments--
		out = renderContext(item, 0, maxComments)
		if len(out) <= MaxContextChars {
			return out
		}
	}
	return out
}

// renderContext does the actual layout. maxComments < 0 means all.
func renderContext(item *models.Item, patchLines, maxComments int) string {
	var sections []string
	add := func(lines ...string) {
		sections = append(sections, lines...)
	}

	add(banner, "PULL REQUEST METADATA", banner)
	add(fmt.Sprintf("Repository: %s", item.Repo))
	add(fmt.Sprintf("PR Number: #%d", item.Number))
	add(fmt.Sprintf("Title: %s", item.Title))
	add(fmt.Sprintf("Merged At: %s", item.MergedAt.UTC().Format(time.RFC3339)))
	add("")

	add(banner, "PR DESCRIPTION", banner)
	if item.Body != "" {
		add(item.Body)
	} else {
		add("(No description provided)")
	}
	add("")

	add(banner, "CHANGED FILES AND DIFFS", banner)
	if item.Enrichment != nil && len(item.Enrichment.Files) > 0 {
		add(fmt.Sprintf("Total files changed: %d", len(item.Enrichment.Files)))
		add("")
		for i, f := range item.Enrichment.Files {
			add(fmt.Sprintf("File %d: %s", i+1, f.Path))
			add(fmt.Sprintf("Status: %s (+%d -%d)", f.Status, f.Additions, f.Deletions))
			switch {
			case f.Patch == "":
				add("(No diff available - likely binary or too large)")
			case patchLines == 0:
				add("(Diff omitted to fit context budget)")
			default:
				patch, _ := forge.TruncatePatch(f.Patch, patchLines)
				add("```diff", patch, "```")
			}
			add("")
		}
	} else {
		add("(No files information available)", "")
	}

	if item.Enrichment != nil && item.Enrichment.LinkedIssue != nil {
		issue := item.Enrichment.LinkedIssue
		add(banner, "LINKED ISSUE", banner)
		add(fmt.Sprintf("Issue Number: #%d", issue.Number))
		add(fmt.Sprintf("Title: %s", issue.Title))
		add(fmt.Sprintf("State: %s", issue.State))
		add("")
		add("Issue Body:")
		if issue.Body != "" {
			add(issue.Body)
		} else {
			add("(No issue description)")
		}
		add("")
	}

	if item.Enrichment != nil && len(item.Enrichment.IssueComments) > 0 {
		comments := item.Enrichment.IssueComments
		if maxComments >= 0 && maxComments < len(comments) {
			comments = comments[:maxComments]
		}
		if len(comments) > 0 {
			add(banner, "ISSUE DISCUSSION", banner)
			add(fmt.Sprintf("Total comments: %d", len(comments)))
			add("")
			for i, c := range comments {
				add(fmt.Sprintf("Comment %d by %s at %s:", i+1, c.Author, c.CreatedAt.UTC().Format(time.RFC3339)))
				add(c.Body)
				add("", commentRule)
			}
		}
	}

	return strings.Join(sections, "\n")
}

// FormatClassificationInfo renders a stored classification for prompt use.
// A nil classification is allowed; generation works without one.
func FormatClassificationInfo(c *models.Classification) string {
	if c == nil {
		return "No classification available"
	}
	return fmt.Sprintf(`Difficulty: %s
Task Clarity: %s
Onboarding Suitability: %s
Is Reproducible: %s
Categories: %s
Concepts Taught: %s
Prerequisites: %s
Reasoning: %s`,
		c.Difficulty,
		c.TaskClarity,
		c.OnboardingSuitability,
		c.IsReproducible,
		strings.Join(c.Categories, ", "),
		strings.Join(c.ConceptsTaught, ", "),
		strings.Join(c.Prerequisites, ", "),
		c.Reasoning,
	)
}
