package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/prclass/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(repo string, number int) *models.Item {
	merged := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	return &models.Item{
		Repo:      repo,
		Number:    number,
		Source:    models.SourceGitHub,
		Title:     fmt.Sprintf("PR %d", number),
		Body:      "Fixes #7",
		CreatedAt: merged.Add(-48 * time.Hour),
		MergedAt:  merged,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)

	err := s.Migrate(context.Background())
	assert.NoError(t, err)
}

func TestUpsertIndexBatch_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []*models.Item{
		testItem("acme/widget", 1),
		testItem("acme/widget", 2),
		testItem("acme/widget", 3),
	}

	n, err := s.UpsertIndexBatch(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Re-running the index with the same upstream listing must not create
	// duplicates or reset enrichment state.
	got, err := s.GetItem(ctx, "acme/widget", 2)
	require.NoError(t, err)
	require.NoError(t, s.UpdateEnrichmentSuccess(ctx, got.ID, &models.Enrichment{
		Summary: models.FileSummary{TotalFiles: 1, FilesIncluded: 1},
		Files:   []models.ChangedFile{{Path: "main.go", Status: "modified"}},
	}, time.Now()))

	again := []*models.Item{
		testItem("acme/widget", 1),
		testItem("acme/widget", 2),
		testItem("acme/widget", 3),
	}
	_, err = s.UpsertIndexBatch(ctx, again)
	require.NoError(t, err)

	pending, err := s.GetItemsNeedingEnrichment(ctx, "acme/widget", 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "enriched item must not be reset to pending")

	stats, err := s.EnrichmentStats(ctx, "acme/widget")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Success)
}

func TestGetItemsNeedingEnrichment_SelectsPendingAndFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertIndexBatch(ctx, []*models.Item{
		testItem("acme/widget", 1),
		testItem("acme/widget", 2),
		testItem("acme/widget", 3),
	})
	require.NoError(t, err)

	i1, err := s.GetItem(ctx, "acme/widget", 1)
	require.NoError(t, err)
	i2, err := s.GetItem(ctx, "acme/widget", 2)
	require.NoError(t, err)

	require.NoError(t, s.UpdateEnrichmentSuccess(ctx, i1.ID, &models.Enrichment{
		Files: []models.ChangedFile{{Path: "a.go"}},
	}, time.Now()))
	require.NoError(t, s.UpdateEnrichmentFailure(ctx, i2.ID, "boom", time.Now()))

	need, err := s.GetItemsNeedingEnrichment(ctx, "acme/widget", 0)
	require.NoError(t, err)
	require.Len(t, need, 2)
	for _, item := range need {
		assert.NotEqual(t, i1.ID, item.ID, "success items must never be re-selected")
	}

	// failed item is re-enterable and carries its error
	failed, err := s.GetItem(ctx, "acme/widget", 2)
	require.NoError(t, err)
	assert.Equal(t, models.EnrichmentFailed, failed.EnrichmentStatus)
	assert.Equal(t, "boom", failed.EnrichmentError)
	assert.NotNil(t, failed.EnrichmentAttemptedAt)
}

func TestGetItemsNeedingEnrichment_AllRepos(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertIndexBatch(ctx, []*models.Item{
		testItem("acme/widget", 1),
		testItem("other/repo", 9),
	})
	require.NoError(t, err)

	need, err := s.GetItemsNeedingEnrichment(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, need, 2)
}

func TestUpdateEnrichment_FullPayloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertIndexBatch(ctx, []*models.Item{testItem("acme/widget", 42)})
	require.NoError(t, err)
	item, err := s.GetItem(ctx, "acme/widget", 42)
	require.NoError(t, err)

	payload := &models.Enrichment{
		Summary: models.FileSummary{TotalFiles: 3, FilesWithPatches: 2, FilesIncluded: 2, TotalAdditions: 10, TotalDeletions: 4},
		Files: []models.ChangedFile{
			{Path: "a.go", Status: "modified", Additions: 8, Deletions: 2, Patch: "@@ -1 +1 @@"},
			{Path: "b.go", Status: "added", Additions: 2, Deletions: 2, Patch: "@@ -0 +1 @@", PatchTruncated: true},
		},
		LinkedIssue: &models.LinkedIssue{Number: 7, Title: "Widget broken", Body: "it's broken", State: "closed"},
		IssueComments: []models.IssueComment{
			{Author: "alice", Body: "repro attached", CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
			{Author: "bob", Body: "confirmed", CreatedAt: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
		},
	}
	require.NoError(t, s.UpdateEnrichmentSuccess(ctx, item.ID, payload, time.Now()))

	got, err := s.GetItem(ctx, "acme/widget", 42)
	require.NoError(t, err)
	assert.Equal(t, models.EnrichmentSuccess, got.EnrichmentStatus)
	require.NotNil(t, got.Enrichment)
	assert.Len(t, got.Enrichment.Files, 2)
	require.NotNil(t, got.Enrichment.LinkedIssue)
	assert.Equal(t, 7, got.Enrichment.LinkedIssue.Number)
	assert.Len(t, got.Enrichment.IssueComments, 2)
	assert.Empty(t, got.EnrichmentError)
}

func TestUpdateEnrichmentSuccess_RequiresPayload(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateEnrichmentSuccess(context.Background(), "someid", nil, time.Now())
	assert.Error(t, err)
}

func TestUpdateEnrichmentFailure_TruncatesError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertIndexBatch(ctx, []*models.Item{testItem("acme/widget", 1)})
	require.NoError(t, err)
	item, err := s.GetItem(ctx, "acme/widget", 1)
	require.NoError(t, err)

	long := ""
	for i := 0; i < 60; i++ {
		long += "0123456789"
	}
	require.NoError(t, s.UpdateEnrichmentFailure(ctx, item.ID, long, time.Now()))

	got, err := s.GetItem(ctx, "acme/widget", 1)
	require.NoError(t, err)
	assert.Len(t, got.EnrichmentError, maxErrorLen)
}

func TestGetItemsNeedingClassification(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertIndexBatch(ctx, []*models.Item{
		testItem("acme/widget", 1),
		testItem("acme/widget", 2),
	})
	require.NoError(t, err)

	i1, _ := s.GetItem(ctx, "acme/widget", 1)
	i2, _ := s.GetItem(ctx, "acme/widget", 2)
	require.NoError(t, s.UpdateEnrichmentSuccess(ctx, i1.ID, &models.Enrichment{Files: []models.ChangedFile{{Path: "a.go"}}}, time.Now()))
	require.NoError(t, s.UpdateEnrichmentSuccess(ctx, i2.ID, &models.Enrichment{Files: []models.ChangedFile{{Path: "b.go"}}}, time.Now()))

	need, err := s.GetItemsNeedingClassification(ctx, "acme/widget", 0)
	require.NoError(t, err)
	assert.Len(t, need, 2)

	require.NoError(t, s.SaveClassification(ctx, &models.Classification{
		ItemID:                i1.ID,
		Repo:                  "acme/widget",
		Number:                1,
		Title:                 "PR 1",
		MergedAt:              i1.MergedAt,
		Difficulty:            models.DifficultyEasy,
		TaskClarity:           "clear",
		IsReproducible:        "highly likely",
		OnboardingSuitability: "excellent",
		Categories:            []string{"bug-fix"},
		ConceptsTaught:        []string{"error handling"},
		Prerequisites:         []string{"basic Go"},
		Reasoning:             "small, well scoped",
	}))

	need, err = s.GetItemsNeedingClassification(ctx, "acme/widget", 0)
	require.NoError(t, err)
	require.Len(t, need, 1)
	assert.Equal(t, i2.ID, need[0].ID)
}

func TestSaveClassification_OverwritesOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertIndexBatch(ctx, []*models.Item{testItem("acme/widget", 1)})
	require.NoError(t, err)
	item, _ := s.GetItem(ctx, "acme/widget", 1)

	base := &models.Classification{
		ItemID:                item.ID,
		Repo:                  "acme/widget",
		Number:                1,
		Title:                 "PR 1",
		MergedAt:              item.MergedAt,
		Difficulty:            models.DifficultyEasy,
		TaskClarity:           "clear",
		IsReproducible:        "maybe",
		OnboardingSuitability: "poor",
		Categories:            []string{"bug-fix"},
		ConceptsTaught:        []string{"logging"},
		Prerequisites:         []string{"none"},
		Reasoning:             "first pass",
	}
	require.NoError(t, s.SaveClassification(ctx, base))

	updated := *base
	updated.ID = ""
	updated.Difficulty = models.DifficultyHard
	updated.Reasoning = "second pass"
	require.NoError(t, s.SaveClassification(ctx, &updated))

	got, err := s.GetClassification(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.DifficultyHard, got.Difficulty)
	assert.Equal(t, "second pass", got.Reasoning)
	assert.Equal(t, []string{"bug-fix"}, got.Categories)

	stats, err := s.ClassificationStats(ctx, "acme/widget")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total, "re-classification must overwrite, not version")
	assert.Equal(t, 1, stats.Hard)
}

func TestGetClassification_Missing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetClassification(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveGeneratedIssue_Overwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertIndexBatch(ctx, []*models.Item{testItem("acme/widget", 1)})
	require.NoError(t, err)
	item, _ := s.GetItem(ctx, "acme/widget", 1)

	require.NoError(t, s.SaveGeneratedIssue(ctx, item.ID, "# First", time.Now()))
	require.NoError(t, s.SaveGeneratedIssue(ctx, item.ID, "# Second", time.Now()))

	got, err := s.GetItem(ctx, "acme/widget", 1)
	require.NoError(t, err)
	assert.Equal(t, "# Second", got.GeneratedIssue)
	assert.NotNil(t, got.IssueGeneratedAt)
}
