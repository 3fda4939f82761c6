// Package forge talks to source-hosting APIs to index merged change
// requests and enrich them with diffs, linked issues, and discussion.
package forge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/joescharf/prclass/internal/models"
)

const (
	// PerPage is the list page size every adapter requests.
	PerPage = 100

	// MaxEnrichedFiles caps how many patch-bearing files an enrichment keeps.
	MaxEnrichedFiles = 10

	// MaxPatchLines caps the length of each kept patch.
	MaxPatchLines = 100

	// MaxCommentPages caps issue comment pagination (500 comments at PerPage).
	MaxCommentPages = 5
)

// ErrAuth marks authentication/authorization failures. These are fatal to
// the whole run and are never retried.
var ErrAuth = errors.New("authentication failed")

// Forge is a host adapter bound to a single repository.
type Forge interface {
	// Name returns the adapter name (github, gitlab).
	Name() string

	// ListMerged returns one page of merged items, oldest-page-first order
	// as the host lists them. An empty page means pagination is exhausted.
	ListMerged(ctx context.Context, page, perPage int) ([]*models.Item, error)

	// Enrich fetches changed files, the linked issue (if any), and issue
	// comments for one item. It returns a complete payload or an error;
	// partial payloads are never returned.
	Enrich(ctx context.Context, item *models.Item) (*models.Enrichment, error)
}

// RepoRef identifies a repository on a specific host.
type RepoRef struct {
	Owner  string
	Name   string
	Source models.Source
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepo accepts "owner/repo" shorthand or a full https URL on a known
// host. Shorthand defaults to GitHub; callers may override the source
// afterwards.
func ParseRepo(input string) (RepoRef, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return RepoRef{}, errors.New("empty repository reference")
	}

	if strings.Contains(input, "://") {
		u, err := url.Parse(input)
		if err != nil {
			return RepoRef{}, fmt.Errorf("parsing repository URL: %w", err)
		}

		var source models.Source
		switch u.Hostname() {
		case "github.com", "www.github.com":
			source = models.SourceGitHub
		case "gitlab.com", "www.gitlab.com":
			source = models.SourceGitLab
		default:
			return RepoRef{}, fmt.Errorf("unsupported host %q", u.Hostname())
		}

		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 {
			return RepoRef{}, fmt.Errorf("repository URL %q has no owner/name path", input)
		}
		name := strings.TrimSuffix(parts[len(parts)-1], ".git")
		// GitLab subgroups keep everything before the final segment as owner.
		return RepoRef{
			Owner:  strings.Join(parts[:len(parts)-1], "/"),
			Name:   name,
			Source: source,
		}, nil
	}

	parts := strings.Split(input, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("invalid repository %q, want owner/repo or URL", input)
	}
	return RepoRef{Owner: parts[0], Name: parts[1], Source: models.SourceGitHub}, nil
}

var closingRefs = regexp.MustCompile(`(?i)(?:fix|fixes|fixed|close|closes|closed|resolve|resolves|resolved)\s+#(\d+)`)

// ExtractIssueNumbers scans an item body for closing keywords ("Fixes #7",
// "closes #12") and returns the referenced issue numbers, deduplicated in
// order of first appearance.
func ExtractIssueNumbers(body string) []int {
	if body == "" {
		return nil
	}

	var numbers []int
	seen := make(map[int]bool)
	for _, m := range closingRefs.FindAllStringSubmatch(body, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		numbers = append(numbers, n)
	}
	return numbers
}

// TruncatePatch limits a unified diff to maxLines, appending a marker with
// the count of dropped lines. The second return reports whether truncation
// happened.
func TruncatePatch(patch string, maxLines int) (string, bool) {
	lines := strings.Split(patch, "\n")
	if len(lines) <= maxLines {
		return patch, false
	}
	remaining := len(lines) - maxLines
	return strings.Join(lines[:maxLines], "\n") +
		fmt.Sprintf("\n... [TRUNCATED: %d more lines]", remaining), true
}
