package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/prclass/internal/classify"
	"github.com/joescharf/prclass/internal/forge"
	"github.com/joescharf/prclass/internal/pipeline"
)

var generatePromptFile string

var generateCmd = &cobra.Command{
	Use:   "generate <repository> <number>",
	Short: "Generate a practice issue for a classified item",
	Long: `Generate a student-facing practice issue for one enriched item. The
generated markdown is printed and persisted on the item; regenerating
overwrites the previous version.

A custom prompt template can be supplied with --prompt-file. Templates may
use the {item_context} and {classification_info} placeholders.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid item number %q: %w", args[1], err)
		}
		return generateRun(args[0], number)
	},
}

func init() {
	generateCmd.Flags().StringVar(&generatePromptFile, "prompt-file", "", "Markdown file with a custom prompt template")
	rootCmd.AddCommand(generateCmd)
}

func generateRun(repoArg string, number int) error {
	ref, err := forge.ParseRepo(repoArg)
	if err != nil {
		return err
	}

	template := ""
	if generatePromptFile != "" {
		data, err := os.ReadFile(generatePromptFile)
		if err != nil {
			return fmt.Errorf("read prompt file: %w", err)
		}
		template = string(data)
	}

	if dryRun {
		ui.DryRunMsg("Would generate practice issue for %s#%d", ref, number)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	client, err := newLLMClient()
	if err != nil {
		return err
	}
	classifier := classify.NewClassifier(client, logger)

	ui.Info("Generating practice issue for %s#%d...", ref, number)
	p := pipeline.New(s, logger)
	markdown, err := p.GenerateIssue(ctx, classifier, ref.String(), number, template)
	if err != nil {
		return fmt.Errorf("generate issue: %w", err)
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, markdown)
	return nil
}
