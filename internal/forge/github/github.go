// Package github adapts the GitHub REST API to the forge interface.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v60/github"

	"github.com/joescharf/prclass/internal/forge"
	"github.com/joescharf/prclass/internal/models"
)

// Client fetches pull request data for one repository.
type Client struct {
	gh     *github.Client
	owner  string
	repo   string
	logger *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at a different API root (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.gh.BaseURL, _ = c.gh.BaseURL.Parse(url + "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.gh = github.NewClient(h)
	}
}

// New builds a GitHub adapter for owner/repo. The HTTP layer carries the
// shared throttle/retry transport.
func New(token, owner, repo string, logger *slog.Logger, opts ...Option) *Client {
	httpClient := &http.Client{
		Transport: &tokenTransport{
			token: token,
			next:  forge.NewTransport(logger),
		},
	}

	c := &Client{
		gh:     github.NewClient(httpClient),
		owner:  owner,
		repo:   repo,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenTransport adds the authorization header to every request.
type tokenTransport struct {
	token string
	next  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	return t.next.RoundTrip(req)
}

// Name returns the adapter name.
func (c *Client) Name() string {
	return "github"
}

func (c *Client) repoName() string {
	return c.owner + "/" + c.repo
}

// wrapErr adds the operation and flags auth failures as fatal.
func wrapErr(op string, resp *github.Response, err error) error {
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return fmt.Errorf("%s: %w: %v", op, forge.ErrAuth, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ListMerged fetches one page of closed pull requests and keeps the merged
// ones. GitHub has no server-side merged filter, so merged status is
// decided client-side by the merged_at timestamp.
func (c *Client) ListMerged(ctx context.Context, page, perPage int) ([]*models.Item, error) {
	prs, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, &github.PullRequestListOptions{
		State:     "closed",
		Sort:      "created",
		Direction: "desc",
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: perPage,
		},
	})
	if err != nil {
		return nil, wrapErr("listing pull requests", resp, err)
	}

	items := make([]*models.Item, 0, len(prs))
	for _, pr := range prs {
		if pr.MergedAt == nil {
			continue
		}
		item := &models.Item{
			Repo:      c.repoName(),
			Number:    pr.GetNumber(),
			Source:    models.SourceGitHub,
			Title:     pr.GetTitle(),
			Body:      pr.GetBody(),
			CreatedAt: pr.GetCreatedAt().Time,
			MergedAt:  pr.GetMergedAt().Time,
		}
		if nums := forge.ExtractIssueNumbers(item.Body); len(nums) > 0 {
			item.LinkedIssueNumber = nums[0]
		}
		items = append(items, item)
	}

	c.logger.Debug("listed pull request page",
		"repo", c.repoName(),
		"page", page,
		"closed", len(prs),
		"merged", len(items),
	)
	return items, nil
}

// Enrich fetches changed files, the linked issue, and its comments. The
// linked issue comes from re-scanning the body for closing keywords; a 404
// on the issue means it was deleted or is private, which is not an error.
func (c *Client) Enrich(ctx context.Context, item *models.Item) (*models.Enrichment, error) {
	payload := &models.Enrichment{}

	if err := c.fetchFiles(ctx, item.Number, payload); err != nil {
		return nil, err
	}

	nums := forge.ExtractIssueNumbers(item.Body)
	if len(nums) == 0 {
		return payload, nil
	}

	issue, err := c.fetchIssue(ctx, nums[0])
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return payload, nil
	}
	payload.LinkedIssue = issue

	comments, err := c.fetchIssueComments(ctx, issue.Number)
	if err != nil {
		return nil, err
	}
	payload.IssueComments = comments

	return payload, nil
}

func (c *Client) fetchFiles(ctx context.Context, number int, payload *models.Enrichment) error {
	all, resp, err := c.gh.PullRequests.ListFiles(ctx, c.owner, c.repo, number, &github.ListOptions{
		PerPage: forge.PerPage,
	})
	if err != nil {
		return wrapErr(fmt.Sprintf("listing files for PR #%d", number), resp, err)
	}

	withPatches := 0
	for _, f := range all {
		payload.Summary.TotalAdditions += f.GetAdditions()
		payload.Summary.TotalDeletions += f.GetDeletions()
		if f.GetPatch() != "" {
			withPatches++
		}
	}

	for _, f := range all {
		if f.GetPatch() == "" {
			continue
		}
		if len(payload.Files) == forge.MaxEnrichedFiles {
			break
		}
		patch, truncated := forge.TruncatePatch(f.GetPatch(), forge.MaxPatchLines)
		payload.Files = append(payload.Files, models.ChangedFile{
			Path:           f.GetFilename(),
			Status:         f.GetStatus(),
			Additions:      f.GetAdditions(),
			Deletions:      f.GetDeletions(),
			Patch:          patch,
			PatchTruncated: truncated,
		})
	}

	payload.Summary.TotalFiles = len(all)
	payload.Summary.FilesWithPatches = withPatches
	payload.Summary.FilesIncluded = len(payload.Files)
	payload.Summary.Truncated = withPatches > len(payload.Files)
	return nil
}

func (c *Client) fetchIssue(ctx context.Context, number int) (*models.LinkedIssue, error) {
	issue, resp, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			c.logger.Debug("linked issue not found", "issue", number)
			return nil, nil
		}
		return nil, wrapErr(fmt.Sprintf("fetching issue #%d", number), resp, err)
	}
	return &models.LinkedIssue{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		State:  issue.GetState(),
	}, nil
}

func (c *Client) fetchIssueComments(ctx context.Context, number int) ([]models.IssueComment, error) {
	var comments []models.IssueComment
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: forge.PerPage},
	}
	for page := 1; page <= forge.MaxCommentPages; page++ {
		opts.Page = page
		batch, resp, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("listing comments for issue #%d", number), resp, err)
		}
		for _, cm := range batch {
			comments = append(comments, models.IssueComment{
				Author:    cm.GetUser().GetLogin(),
				Body:      cm.GetBody(),
				CreatedAt: cm.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
	}
	return comments, nil
}

var _ forge.Forge = (*Client)(nil)
