// Package gitlab adapts the GitLab API to the forge interface.
package gitlab

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xanzy/go-gitlab"

	"github.com/joescharf/prclass/internal/forge"
	"github.com/joescharf/prclass/internal/models"
)

// Client fetches merge request data for one project.
type Client struct {
	gl         *gitlab.Client
	httpClient *http.Client
	token      string
	owner      string
	repo       string
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at a different GitLab instance (for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.gl, _ = gitlab.NewClient(c.token,
			gitlab.WithBaseURL(baseURL+"/api/v4"),
			gitlab.WithHTTPClient(c.httpClient),
		)
	}
}

// New builds a GitLab adapter for owner/repo. The HTTP layer carries the
// shared throttle/retry transport.
func New(token, owner, repo string, logger *slog.Logger, opts ...Option) *Client {
	httpClient := &http.Client{
		Transport: forge.NewTransport(logger),
	}
	gl, _ := gitlab.NewClient(token, gitlab.WithHTTPClient(httpClient))

	c := &Client{
		gl:         gl,
		httpClient: httpClient,
		token:      token,
		owner:      owner,
		repo:       repo,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the adapter name.
func (c *Client) Name() string {
	return "gitlab"
}

func (c *Client) repoName() string {
	return c.owner + "/" + c.repo
}

// projectPath is the project identifier passed to the API client, which
// handles URL escaping itself.
func (c *Client) projectPath() string {
	return c.repoName()
}

func wrapErr(op string, resp *gitlab.Response, err error) error {
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return fmt.Errorf("%s: %w: %v", op, forge.ErrAuth, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ListMerged fetches one page of merge requests using GitLab's server-side
// merged-state filter.
func (c *Client) ListMerged(ctx context.Context, page, perPage int) ([]*models.Item, error) {
	mrs, resp, err := c.gl.MergeRequests.ListProjectMergeRequests(c.projectPath(), &gitlab.ListProjectMergeRequestsOptions{
		State:   gitlab.Ptr("merged"),
		OrderBy: gitlab.Ptr("created_at"),
		Sort:    gitlab.Ptr("desc"),
		ListOptions: gitlab.ListOptions{
			Page:    page,
			PerPage: perPage,
		},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("listing merge requests", resp, err)
	}

	items := make([]*models.Item, 0, len(mrs))
	for _, mr := range mrs {
		item := &models.Item{
			Repo:   c.repoName(),
			Number: mr.IID,
			Source: models.SourceGitLab,
			Title:  mr.Title,
			Body:   mr.Description,
		}
		if mr.CreatedAt != nil {
			item.CreatedAt = *mr.CreatedAt
		}
		if mr.MergedAt != nil {
			item.MergedAt = *mr.MergedAt
		}
		if nums := forge.ExtractIssueNumbers(item.Body); len(nums) > 0 {
			item.LinkedIssueNumber = nums[0]
		}
		items = append(items, item)
	}

	c.logger.Debug("listed merge request page",
		"repo", c.repoName(),
		"page", page,
		"merged", len(items),
	)
	return items, nil
}

// Enrich fetches diffs, the first issue closed by the merge request, and
// that issue's discussion notes. Linked issues come from the closes_issues
// relationship endpoint, which handles cross-project references; the call
// is cheap and made for every item.
func (c *Client) Enrich(ctx context.Context, item *models.Item) (*models.Enrichment, error) {
	payload := &models.Enrichment{}

	if err := c.fetchDiffs(ctx, item.Number, payload); err != nil {
		return nil, err
	}

	issues, resp, err := c.gl.MergeRequests.GetIssuesClosedOnMerge(c.projectPath(), item.Number, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("fetching issues closed by MR !%d", item.Number), resp, err)
	}
	if len(issues) == 0 {
		return payload, nil
	}

	issue := issues[0]
	payload.LinkedIssue = &models.LinkedIssue{
		Number: issue.IID,
		Title:  issue.Title,
		Body:   issue.Description,
		State:  issue.State,
	}

	notes, err := c.fetchIssueNotes(ctx, issue)
	if err != nil {
		return nil, err
	}
	payload.IssueComments = notes

	return payload, nil
}

func (c *Client) fetchDiffs(ctx context.Context, iid int, payload *models.Enrichment) error {
	all, resp, err := c.gl.MergeRequests.ListMergeRequestDiffs(c.projectPath(), iid, &gitlab.ListMergeRequestDiffsOptions{
		ListOptions: gitlab.ListOptions{PerPage: forge.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return wrapErr(fmt.Sprintf("fetching diffs for MR !%d", iid), resp, err)
	}

	withDiffs := 0
	for _, d := range all {
		if d.Diff == "" {
			continue
		}
		withDiffs++
		adds, dels := countDiffLines(d.Diff)
		payload.Summary.TotalAdditions += adds
		payload.Summary.TotalDeletions += dels
	}

	for _, d := range all {
		if d.Diff == "" {
			continue
		}
		if len(payload.Files) == forge.MaxEnrichedFiles {
			break
		}
		adds, dels := countDiffLines(d.Diff)
		patch, truncated := forge.TruncatePatch(d.Diff, forge.MaxPatchLines)
		payload.Files = append(payload.Files, models.ChangedFile{
			Path:           d.NewPath,
			Status:         diffStatus(d),
			Additions:      adds,
			Deletions:      dels,
			Patch:          patch,
			PatchTruncated: truncated,
		})
	}

	payload.Summary.TotalFiles = len(all)
	payload.Summary.FilesWithPatches = withDiffs
	payload.Summary.FilesIncluded = len(payload.Files)
	payload.Summary.Truncated = withDiffs > len(payload.Files)
	return nil
}

// fetchIssueNotes pulls user discussion for the linked issue, skipping
// system-generated notes. It uses the issue's own project ID so that
// cross-project issues resolve to the right project.
func (c *Client) fetchIssueNotes(ctx context.Context, issue *gitlab.Issue) ([]models.IssueComment, error) {
	if issue.UserNotesCount == 0 {
		return nil, nil
	}

	var pid any = issue.ProjectID
	if issue.ProjectID == 0 {
		pid = c.projectPath()
	}

	var comments []models.IssueComment
	opts := &gitlab.ListIssueNotesOptions{
		ListOptions: gitlab.ListOptions{PerPage: forge.PerPage},
	}
	for page := 1; page <= forge.MaxCommentPages; page++ {
		opts.Page = page
		notes, resp, err := c.gl.Notes.ListIssueNotes(pid, issue.IID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("listing notes for issue #%d", issue.IID), resp, err)
		}
		for _, n := range notes {
			if n.System {
				continue
			}
			comment := models.IssueComment{
				Author: n.Author.Username,
				Body:   n.Body,
			}
			if n.CreatedAt != nil {
				comment.CreatedAt = *n.CreatedAt
			}
			comments = append(comments, comment)
		}
		if resp.NextPage == 0 {
			break
		}
	}
	return comments, nil
}

func diffStatus(d *gitlab.MergeRequestDiff) string {
	switch {
	case d.NewFile:
		return "added"
	case d.DeletedFile:
		return "deleted"
	case d.RenamedFile:
		return "renamed"
	default:
		return "modified"
	}
}

// countDiffLines counts added/removed lines in a unified diff, ignoring
// the +++/--- file headers.
func countDiffLines(diff string) (adds, dels int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			adds++
		case strings.HasPrefix(line, "-"):
			dels++
		}
	}
	return adds, dels
}

var _ forge.Forge = (*Client)(nil)
