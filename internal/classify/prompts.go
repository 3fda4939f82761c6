package classify

import "strings"

// Placeholders shared by the prompt templates. Operator-supplied override
// templates use the same contract.
const (
	PlaceholderContext        = "{item_context}"
	PlaceholderClassification = "{classification_info}"
)

const classificationPrompt = `You are helping identify merged pull requests that are good learning opportunities for developers new to a codebase.

Your task is to analyze the pull request and classify it based on technical complexity and onboarding suitability.

CLASSIFICATION FIELDS:

1. **difficulty**: Technical complexity level
   - "trivial": Very simple changes (typos, comments, formatting)
   - "easy": Simple bug fixes or small features requiring basic understanding
   - "medium": Moderate complexity requiring understanding of multiple components
   - "hard": Complex changes requiring deep system knowledge or architectural changes

2. **task_clarity**: Could you write an issue with enough context for someone else to solve this?
   - "clear": problem is documented with context, reproduction steps are provided or obvious, success criteria are clear
   - "partial": general problem described but lacks specifics; you would need to ask clarifying questions
   - "poor": relies on undocumented author knowledge; you cannot write a task others could complete

3. **is_reproducible**: Can someone reproduce the ORIGINAL PROBLEM that this change fixes?
   - "highly likely": explicit reproduction steps, a clear error message, or an obvious visual/UX issue
   - "maybe": no direct steps, but the problem is implied by the code or tests
   - "unclear": no problem statement, one-off administrative tasks, or a "refactor" without explaining what was wrong

4. **onboarding_suitability**: How good is this for onboarding?
   - "excellent": reproducible, verifiable for its difficulty level, teaches transferable patterns, and has a clear motivation. Medium/hard changes CAN be excellent if they teach valuable concepts with clear reproduction.
   - "poor": cannot be reproduced or verified without extensive system knowledge, is infrastructure/release/admin work, is translation-only, or has unclear motivation

5. **categories**: List of relevant categories (flexible - choose what fits best)
   Examples: bug-fix, feature, refactor, performance, documentation, testing, security, ui/ux, api, database, etc.

6. **concepts_taught**: What technical concepts would a developer learn from studying this change?
   Be specific - e.g., "SQL injection prevention", "event delegation", "context cancellation", etc.

7. **prerequisites**: What knowledge should someone have before studying this change?
   Be specific - e.g., "Basic Go understanding", "Familiarity with HTTP middleware", etc.

8. **reasoning**: Brief explanation (2-4 sentences) of your classification decisions.

OUTPUT FORMAT:

Return ONLY a valid JSON object with this exact structure:

{
  "difficulty": "trivial" | "easy" | "medium" | "hard",
  "task_clarity": "clear" | "partial" | "poor",
  "is_reproducible": "highly likely" | "maybe" | "unclear",
  "onboarding_suitability": "excellent" | "poor",
  "categories": ["category1", "category2"],
  "concepts_taught": ["concept1", "concept2"],
  "prerequisites": ["prerequisite1", "prerequisite2"],
  "reasoning": "Your explanation here"
}

IMPORTANT:
- Return ONLY valid JSON, no other text
- All fields are required
- categories, concepts_taught, and prerequisites must be non-empty arrays

Now, analyze the following pull request:

---

{item_context}

---

Return your classification as JSON:`

// DefaultIssuePrompt is the built-in issue generation template. Operators
// may supply their own template with the same placeholders.
const DefaultIssuePrompt = `You are writing a practice issue for a developer onboarding onto a codebase. The issue describes the problem that the pull request below solved, as if the fix had not been written yet. The developer will attempt to solve it themselves, so never reveal the actual solution or reference the pull request.

Write the issue in markdown with these sections:

## Motivation
Why this matters and who is affected.

## Current Behavior
What happens today, including error messages or broken output where known.

## Reproduction Steps
Concrete numbered steps to observe the problem. If exact steps are unknown, give your best reconstruction from the discussion.

## Expected Behavior
What should happen instead.

## Acceptance Criteria
A checklist the developer can use to know they are done.

## Verification
How to verify the fix works (commands to run, what to observe).

Calibrate the level of hints to the classified difficulty: give generous pointers for trivial and easy items, and only high-level direction for medium and hard items.

CLASSIFICATION:

{classification_info}

PULL REQUEST CONTEXT:

---

{item_context}

---

Return only the markdown issue, no preamble:`

// BuildClassificationPrompt fills the classification template.
func BuildClassificationPrompt(itemContext string) string {
	return strings.ReplaceAll(classificationPrompt, PlaceholderContext, itemContext)
}

// FillIssuePrompt fills an issue-generation template. Both placeholders
// are optional in override templates.
func FillIssuePrompt(template, itemContext, classificationInfo string) string {
	out := strings.ReplaceAll(template, PlaceholderContext, itemContext)
	return strings.ReplaceAll(out, PlaceholderClassification, classificationInfo)
}
