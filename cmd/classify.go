package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/prclass/internal/classify"
	"github.com/joescharf/prclass/internal/pipeline"
)

var (
	classifyRepo  string
	classifyLimit int
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify enriched items with an LLM",
	Long: `Classify enriched items for difficulty, task clarity, reproducibility,
and onboarding suitability. Only fully enriched items are eligible; items
whose classification fails stay eligible for the next run.

Requires an API key for the configured LLM provider (llm.provider).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return classifyRun()
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyRepo, "repo", "", "Only classify items from this repository (owner/repo)")
	classifyCmd.Flags().IntVar(&classifyLimit, "limit", 0, "Max items to classify this run (0 = all eligible)")
	rootCmd.AddCommand(classifyCmd)
}

func classifyRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		stats, err := s.ClassificationStats(ctx, classifyRepo)
		if err != nil {
			return err
		}
		es, err := s.EnrichmentStats(ctx, classifyRepo)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would classify up to %d unclassified items (%d enriched, %d already classified)",
			es.Success-stats.Total, es.Success, stats.Total)
		return nil
	}

	client, err := newLLMClient()
	if err != nil {
		return err
	}
	classifier := classify.NewClassifier(client, logger)

	ui.Info("Classifying items with %s (%s)...", viper.GetString("llm.provider"), client.Model())
	p := pipeline.New(s, logger)
	sum, err := p.RunClassification(ctx, classifier, classifyRepo, classifyLimit)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	if sum.Failed > 0 {
		ui.Warning("Classified %d items, %d failed (still eligible next run)", sum.Succeeded, sum.Failed)
	} else {
		ui.Success("Classified %d items", sum.Succeeded)
	}

	return nil
}
