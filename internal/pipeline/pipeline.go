// Package pipeline drives the index, enrichment, classification, and
// issue-generation phases against the item store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/prclass/internal/classify"
	"github.com/joescharf/prclass/internal/forge"
	"github.com/joescharf/prclass/internal/models"
	"github.com/joescharf/prclass/internal/store"
)

// Summary reports the outcome of one phase run.
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
}

// ForgeFactory builds a host adapter for a repository. The enrichment
// phase uses it to serve items from multiple repositories in one run.
type ForgeFactory func(repo string, source models.Source) (forge.Forge, error)

// Pipeline owns phase execution. Items are processed sequentially; the
// external rate limit is the binding constraint, not local CPU.
type Pipeline struct {
	store  store.Store
	logger *slog.Logger
}

// New builds a pipeline over a store.
func New(s store.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{store: s, logger: logger}
}

// RunIndex pages through the adapter's list endpoint until the target
// count is reached or pagination is exhausted, upserting each page.
//
// A page failure aborts the whole phase: listing is a bulk, rarely
// failing operation, so no per-page isolation is attempted. Re-running
// is idempotent; already-indexed items keep their enrichment state.
func (p *Pipeline) RunIndex(ctx context.Context, f forge.Forge, target int) (*Summary, error) {
	pages := (target + forge.PerPage - 1) / forge.PerPage
	if pages < 1 {
		pages = 1
	}

	summary := &Summary{}
	for page := 1; page <= pages; page++ {
		items, err := f.ListMerged(ctx, page, forge.PerPage)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", page, err)
		}
		if len(items) == 0 {
			p.logger.Info("no more items, stopping pagination", "page", page)
			break
		}

		n, err := p.store.UpsertIndexBatch(ctx, items)
		if err != nil {
			return nil, fmt.Errorf("upserting page %d: %w", page, err)
		}
		summary.Processed += len(items)
		summary.Succeeded += n

		p.logger.Debug("indexed page", "page", page, "items", len(items))
		if summary.Processed >= target {
			break
		}
	}

	p.logger.Info("index phase complete",
		"processed", summary.Processed,
		"upserted", summary.Succeeded,
	)
	return summary, nil
}

// RunEnrichment processes every item with status pending or failed,
// one at a time. Individual failures are recorded on the item and the
// run continues; authentication failures abort the whole run since no
// later item can succeed either. repo may be empty to cover all
// repositories; limit <= 0 means no limit.
func (p *Pipeline) RunEnrichment(ctx context.Context, factory ForgeFactory, repo string, limit int) (*Summary, error) {
	items, err := p.store.GetItemsNeedingEnrichment(ctx, repo, limit)
	if err != nil {
		return nil, fmt.Errorf("querying items needing enrichment: %w", err)
	}
	p.logger.Info("starting enrichment phase", "items", len(items), "repo", repo)

	forges := make(map[string]forge.Forge)
	summary := &Summary{}
	for i, item := range items {
		f, ok := forges[item.Repo]
		if !ok {
			f, err = factory(item.Repo, item.Source)
			if err != nil {
				return summary, fmt.Errorf("building adapter for %s: %w", item.Repo, err)
			}
			forges[item.Repo] = f
		}

		summary.Processed++
		attemptedAt := time.Now().UTC()

		payload, err := f.Enrich(ctx, item)
		if err != nil {
			if errors.Is(err, forge.ErrAuth) {
				return summary, fmt.Errorf("enriching %s#%d: %w", item.Repo, item.Number, err)
			}
			summary.Failed++
			p.logger.Warn("enrichment failed",
				"repo", item.Repo,
				"number", item.Number,
				"error", err,
			)
			if serr := p.store.UpdateEnrichmentFailure(ctx, item.ID, err.Error(), attemptedAt); serr != nil {
				return summary, fmt.Errorf("recording enrichment failure for %s#%d: %w", item.Repo, item.Number, serr)
			}
			continue
		}

		if err := p.store.UpdateEnrichmentSuccess(ctx, item.ID, payload, attemptedAt); err != nil {
			return summary, fmt.Errorf("recording enrichment for %s#%d: %w", item.Repo, item.Number, err)
		}
		summary.Succeeded++

		if (i+1)%10 == 0 {
			p.logger.Info("enrichment progress",
				"done", i+1,
				"total", len(items),
				"failed", summary.Failed,
			)
		}
	}

	p.logger.Info("enrichment phase complete",
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary, nil
}

// RunClassification classifies enriched items that have no stored
// classification yet. Per-item failures are logged and skipped; the item
// stays eligible for the next run. limit <= 0 means no limit.
func (p *Pipeline) RunClassification(ctx context.Context, classifier *classify.Classifier, repo string, limit int) (*Summary, error) {
	items, err := p.store.GetItemsNeedingClassification(ctx, repo, limit)
	if err != nil {
		return nil, fmt.Errorf("querying items needing classification: %w", err)
	}
	p.logger.Info("starting classification phase", "items", len(items), "repo", repo)

	summary := &Summary{}
	for _, item := range items {
		summary.Processed++

		c, err := classifier.Classify(ctx, item)
		if err != nil {
			summary.Failed++
			p.logger.Warn("classification failed",
				"repo", item.Repo,
				"number", item.Number,
				"error", err,
			)
			continue
		}

		if err := p.store.SaveClassification(ctx, c); err != nil {
			return summary, fmt.Errorf("saving classification for %s#%d: %w", item.Repo, item.Number, err)
		}
		summary.Succeeded++
	}

	p.logger.Info("classification phase complete",
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary, nil
}

// GenerateIssue produces a practice issue for one item and stores it,
// replacing any earlier generation. template may be empty for the
// default, or an operator override.
func (p *Pipeline) GenerateIssue(ctx context.Context, classifier *classify.Classifier, repo string, number int, template string) (string, error) {
	item, err := p.store.GetItem(ctx, repo, number)
	if err != nil {
		return "", fmt.Errorf("loading item %s#%d: %w", repo, number, err)
	}
	if item == nil {
		return "", fmt.Errorf("item %s#%d not found", repo, number)
	}

	classification, err := p.store.GetClassification(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("loading classification for %s#%d: %w", repo, number, err)
	}
	if classification == nil {
		p.logger.Warn("generating issue for unclassified item", "repo", repo, "number", number)
	}

	markdown, err := classifier.GenerateIssue(ctx, item, classification, template)
	if err != nil {
		return "", fmt.Errorf("generating issue for %s#%d: %w", repo, number, err)
	}

	if err := p.store.SaveGeneratedIssue(ctx, item.ID, markdown, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("saving generated issue for %s#%d: %w", repo, number, err)
	}
	return markdown, nil
}
