package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/prclass/internal/forge"
	"github.com/joescharf/prclass/internal/pipeline"
)

var (
	fetchLimit       int
	fetchEnrichLimit int
	fetchNoEnrich    bool
	fetchEnrichOnly  bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [repository]",
	Short: "Index and enrich merged pull/merge requests",
	Long: `Fetch merged pull/merge requests from a repository in two phases:
a fast index pass that lists merged items, then an enrichment pass that
fetches per-item file diffs, the linked issue, and its discussion.

The repository is 'owner/repo' (GitHub assumed) or a full
https://github.com/... or https://gitlab.com/... URL. Enrichment failures
are recorded per item and retried on the next run.

Requires GITHUB_TOKEN or GITLAB_TOKEN for the repository's platform.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoArg := ""
		if len(args) == 1 {
			repoArg = args[0]
		}
		return fetchRun(repoArg)
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 0, "Max items to index (default from config, 50)")
	fetchCmd.Flags().IntVar(&fetchEnrichLimit, "enrich-limit", 0, "Max items to enrich this run (0 = all pending)")
	fetchCmd.Flags().BoolVar(&fetchNoEnrich, "no-enrich", false, "Index only, skip the enrichment phase")
	fetchCmd.Flags().BoolVar(&fetchEnrichOnly, "enrich-only", false, "Skip indexing, enrich pending items (all repositories if none given)")
	rootCmd.AddCommand(fetchCmd)
}

func fetchRun(repoArg string) error {
	if fetchNoEnrich && fetchEnrichOnly {
		return fmt.Errorf("--no-enrich and --enrich-only are mutually exclusive")
	}
	if repoArg == "" && !fetchEnrichOnly {
		return fmt.Errorf("repository argument required (or use --enrich-only to resume enrichment)")
	}

	repoFilter := ""
	var ref forge.RepoRef
	if repoArg != "" {
		var err error
		ref, err = forge.ParseRepo(repoArg)
		if err != nil {
			return err
		}
		repoFilter = ref.String()
	}

	limit := fetchLimit
	if limit <= 0 {
		limit = viper.GetInt("fetch.limit")
	}

	if dryRun {
		if !fetchEnrichOnly {
			ui.DryRunMsg("Would index up to %d merged items from %s", limit, repoFilter)
		}
		if !fetchNoEnrich {
			target := repoFilter
			if target == "" {
				target = "all repositories"
			}
			ui.DryRunMsg("Would enrich pending items for %s", target)
		}
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p := pipeline.New(s, logger)

	if !fetchEnrichOnly {
		f, err := newForge(ref)
		if err != nil {
			return err
		}

		ui.Info("Indexing merged items from %s (%s)...", repoFilter, f.Name())
		sum, err := p.RunIndex(ctx, f, limit)
		if err != nil {
			return fmt.Errorf("index %s: %w", repoFilter, err)
		}
		ui.Success("Indexed %d merged items", sum.Processed)
	}

	if fetchNoEnrich {
		return nil
	}

	ui.Info("Enriching pending items...")
	sum, err := p.RunEnrichment(ctx, forgeFactory(), repoFilter, fetchEnrichLimit)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	if sum.Failed > 0 {
		ui.Warning("Enriched %d items, %d failed (will retry on next run)", sum.Succeeded, sum.Failed)
	} else {
		ui.Success("Enriched %d items", sum.Succeeded)
	}

	return nil
}
