package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/joescharf/prclass/internal/forge"
	ghforge "github.com/joescharf/prclass/internal/forge/github"
	glforge "github.com/joescharf/prclass/internal/forge/gitlab"
	"github.com/joescharf/prclass/internal/models"
	"github.com/joescharf/prclass/internal/pipeline"
)

// newForge builds the host adapter for a repository reference, failing
// fast when the platform token is missing.
func newForge(ref forge.RepoRef) (forge.Forge, error) {
	switch ref.Source {
	case models.SourceGitLab:
		token := viper.GetString("gitlab.token")
		if token == "" {
			token = os.Getenv("GITLAB_TOKEN")
		}
		if token == "" {
			return nil, fmt.Errorf("GITLAB_TOKEN not set (set env var or gitlab.token in config)")
		}
		return glforge.New(token, ref.Owner, ref.Name, logger), nil
	default:
		token := viper.GetString("github.token")
		if token == "" {
			token = os.Getenv("GITHUB_TOKEN")
		}
		if token == "" {
			return nil, fmt.Errorf("GITHUB_TOKEN not set (set env var or github.token in config)")
		}
		return ghforge.New(token, ref.Owner, ref.Name, logger), nil
	}
}

// forgeFactory adapts newForge for the enrichment phase, which resumes
// stored items and only knows their full repo path and source.
func forgeFactory() pipeline.ForgeFactory {
	return func(repo string, source models.Source) (forge.Forge, error) {
		idx := strings.LastIndex(repo, "/")
		if idx <= 0 || idx == len(repo)-1 {
			return nil, fmt.Errorf("invalid repository path: %q", repo)
		}
		return newForge(forge.RepoRef{
			Owner:  repo[:idx],
			Name:   repo[idx+1:],
			Source: source,
		})
	}
}
