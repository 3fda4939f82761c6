package cmd

import (
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/prclass/internal/models"
)

func TestNewForge_RequiresToken(t *testing.T) {
	testEnv(t)
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITLAB_TOKEN", "")

	_, err := forgeFactory()("acme/widget", models.SourceGitHub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")

	_, err = forgeFactory()("acme/widget", models.SourceGitLab)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITLAB_TOKEN")
}

func TestForgeFactory_BuildsAdapterPerSource(t *testing.T) {
	testEnv(t)
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	viper.Set("github.token", "gh-token")
	viper.Set("gitlab.token", "gl-token")

	f, err := forgeFactory()("acme/widget", models.SourceGitHub)
	require.NoError(t, err)
	assert.Equal(t, "github", f.Name())

	f, err = forgeFactory()("acme/widget", models.SourceGitLab)
	require.NoError(t, err)
	assert.Equal(t, "gitlab", f.Name())
}

func TestForgeFactory_SubgroupOwner(t *testing.T) {
	testEnv(t)
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	viper.Set("gitlab.token", "gl-token")

	// GitLab repos can nest under subgroups; only the last segment is the name.
	f, err := forgeFactory()("acme/tools/widget", models.SourceGitLab)
	require.NoError(t, err)
	assert.Equal(t, "gitlab", f.Name())
}

func TestForgeFactory_InvalidPath(t *testing.T) {
	testEnv(t)
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := forgeFactory()("widget", models.SourceGitHub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid repository path")
}

func TestFetchRun_FlagValidation(t *testing.T) {
	testEnv(t)

	fetchNoEnrich = true
	fetchEnrichOnly = true
	t.Cleanup(func() { fetchNoEnrich, fetchEnrichOnly = false, false })

	err := fetchRun("acme/widget")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestFetchRun_RequiresRepoUnlessEnrichOnly(t *testing.T) {
	testEnv(t)

	fetchNoEnrich = false
	fetchEnrichOnly = false

	err := fetchRun("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository argument required")
}

func TestFetchRun_DryRun(t *testing.T) {
	testEnv(t)
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	// Dry run never opens the store or talks to the network.
	err := fetchRun("acme/widget")
	assert.NoError(t, err)
}
