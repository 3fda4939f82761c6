package forge

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/prclass/internal/models"
)

func TestParseRepo_Shorthand(t *testing.T) {
	ref, err := ParseRepo("acme/widget")
	require.NoError(t, err)
	assert.Equal(t, "acme", ref.Owner)
	assert.Equal(t, "widget", ref.Name)
	assert.Equal(t, models.SourceGitHub, ref.Source)
	assert.Equal(t, "acme/widget", ref.String())
}

func TestParseRepo_GitHubURL(t *testing.T) {
	ref, err := ParseRepo("https://github.com/acme/widget.git")
	require.NoError(t, err)
	assert.Equal(t, "acme", ref.Owner)
	assert.Equal(t, "widget", ref.Name)
	assert.Equal(t, models.SourceGitHub, ref.Source)
}

func TestParseRepo_GitLabSubgroupURL(t *testing.T) {
	ref, err := ParseRepo("https://gitlab.com/group/subgroup/widget")
	require.NoError(t, err)
	assert.Equal(t, "group/subgroup", ref.Owner)
	assert.Equal(t, "widget", ref.Name)
	assert.Equal(t, models.SourceGitLab, ref.Source)
}

func TestParseRepo_Invalid(t *testing.T) {
	for _, input := range []string{"", "justaname", "a/b/c", "https://bitbucket.org/a/b"} {
		_, err := ParseRepo(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestExtractIssueNumbers(t *testing.T) {
	tests := []struct {
		body string
		want []int
	}{
		{"Fixes #123", []int{123}},
		{"fixes #123", []int{123}},
		{"Closes #1 and resolves #2", []int{1, 2}},
		{"Fixed #7, also fixed #7 again", []int{7}},
		{"see #99 for context", nil},
		{"", nil},
		{"Resolve    #4", []int{4}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractIssueNumbers(tt.body), "body %q", tt.body)
	}
}

func TestTruncatePatch_UnderBudget(t *testing.T) {
	patch := "@@ -1 +1 @@\n-old\n+new"
	got, truncated := TruncatePatch(patch, 100)
	assert.Equal(t, patch, got)
	assert.False(t, truncated)
}

func TestTruncatePatch_OverBudget(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&sb, "+line %d\n", i)
	}
	got, truncated := TruncatePatch(strings.TrimSuffix(sb.String(), "\n"), 100)

	assert.True(t, truncated)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 101)
	assert.Equal(t, "... [TRUNCATED: 50 more lines]", lines[100])
}
