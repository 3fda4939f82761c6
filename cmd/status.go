package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/prclass/internal/output"
)

var statusRepo string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress",
	Long: `Show how far the pipeline has progressed: items indexed, enrichment
outcomes, and classification counts by difficulty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusOverviewRun()
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRepo, "repo", "", "Only count items from this repository (owner/repo)")
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	es, err := s.EnrichmentStats(ctx, statusRepo)
	if err != nil {
		return err
	}
	cs, err := s.ClassificationStats(ctx, statusRepo)
	if err != nil {
		return err
	}

	if es.Total == 0 {
		ui.Info("No items indexed. Use 'prclass fetch <owner/repo>' to get started.")
		return nil
	}

	ui.Info("Enrichment (%d items)", es.Total)
	table := ui.Table([]string{"Status", "Count"})
	_ = table.Append([]string{output.EnrichmentColor("pending"), fmt.Sprintf("%d", es.Pending)})
	_ = table.Append([]string{output.EnrichmentColor("success"), fmt.Sprintf("%d", es.Success)})
	_ = table.Append([]string{output.EnrichmentColor("failed"), fmt.Sprintf("%d", es.Failed)})
	_ = table.Render()

	fmt.Fprintln(ui.Out)
	ui.Info("Classification (%d of %d enriched items classified)", cs.Total, es.Success)
	if cs.Total > 0 {
		table = ui.Table([]string{"Difficulty", "Count"})
		_ = table.Append([]string{output.DifficultyColor("trivial"), fmt.Sprintf("%d", cs.Trivial)})
		_ = table.Append([]string{output.DifficultyColor("easy"), fmt.Sprintf("%d", cs.Easy)})
		_ = table.Append([]string{output.DifficultyColor("medium"), fmt.Sprintf("%d", cs.Medium)})
		_ = table.Append([]string{output.DifficultyColor("hard"), fmt.Sprintf("%d", cs.Hard)})
		_ = table.Render()
	}

	return nil
}
