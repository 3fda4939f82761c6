package store

import (
	"context"
	"time"

	"github.com/joescharf/prclass/internal/models"
)

// EnrichmentStats counts items by enrichment status.
type EnrichmentStats struct {
	Total   int
	Pending int
	Success int
	Failed  int
}

// ClassificationStats counts classified items by difficulty.
type ClassificationStats struct {
	Total   int
	Trivial int
	Easy    int
	Medium  int
	Hard    int
}

// Store defines the persistence interface for prclass. Every write is
// idempotent so phase drivers can be re-run after interruption.
type Store interface {
	// Items
	UpsertIndexBatch(ctx context.Context, items []*models.Item) (int, error)
	GetItem(ctx context.Context, repo string, number int) (*models.Item, error)
	GetItemsNeedingEnrichment(ctx context.Context, repo string, limit int) ([]*models.Item, error)
	UpdateEnrichmentSuccess(ctx context.Context, itemID string, payload *models.Enrichment, attemptedAt time.Time) error
	UpdateEnrichmentFailure(ctx context.Context, itemID string, errText string, attemptedAt time.Time) error
	EnrichmentStats(ctx context.Context, repo string) (*EnrichmentStats, error)

	// Classifications
	GetItemsNeedingClassification(ctx context.Context, repo string, limit int) ([]*models.Item, error)
	SaveClassification(ctx context.Context, c *models.Classification) error
	GetClassification(ctx context.Context, itemID string) (*models.Classification, error)
	ClassificationStats(ctx context.Context, repo string) (*ClassificationStats, error)

	// Generated issues
	SaveGeneratedIssue(ctx context.Context, itemID string, markdown string, generatedAt time.Time) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
