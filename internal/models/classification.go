package models

import "time"

// Difficulty is the LLM's estimate of an item's technical complexity.
type Difficulty string

const (
	DifficultyTrivial Difficulty = "trivial"
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
)

// Classification is the structured LLM output for one item, one row per
// item. Re-classification overwrites the row. Denormalized item fields are
// kept for export without a join.
type Classification struct {
	ID     string
	ItemID string

	// Denormalized from the item.
	Repo      string
	Number    int
	Title     string
	MergedAt  time.Time
	SourceURL string

	Difficulty            Difficulty
	TaskClarity           string // clear, partial, poor
	IsReproducible        string // highly likely, maybe, unclear
	OnboardingSuitability string // excellent, poor
	Categories            []string
	ConceptsTaught        []string
	Prerequisites         []string
	Reasoning             string

	ClassifiedAt time.Time
}
