package models

import (
	"fmt"
	"time"
)

// Source identifies which host adapter produced an item.
type Source string

const (
	SourceGitHub Source = "github"
	SourceGitLab Source = "gitlab"
)

// EnrichmentStatus tracks an item's progress through the enrichment phase.
type EnrichmentStatus string

const (
	EnrichmentPending EnrichmentStatus = "pending"
	EnrichmentSuccess EnrichmentStatus = "success"
	EnrichmentFailed  EnrichmentStatus = "failed"
)

// ChangedFile is one file touched by a merged change request. Patch text is
// truncated at fetch time; PatchTruncated records whether lines were dropped.
type ChangedFile struct {
	Path           string `json:"path"`
	Status         string `json:"status"` // added, modified, deleted, renamed
	Additions      int    `json:"additions"`
	Deletions      int    `json:"deletions"`
	Patch          string `json:"patch"`
	PatchTruncated bool   `json:"patch_truncated"`
}

// FileSummary carries aggregate counts across ALL files in the change,
// including ones dropped from Files by the per-item cap.
type FileSummary struct {
	TotalFiles       int  `json:"total_files"`
	FilesWithPatches int  `json:"files_with_patches"`
	FilesIncluded    int  `json:"files_included"`
	TotalAdditions   int  `json:"total_additions"`
	TotalDeletions   int  `json:"total_deletions"`
	Truncated        bool `json:"truncated"`
}

// LinkedIssue is the issue a change request closes, when one was found.
type LinkedIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
}

// IssueComment is one comment from the linked issue's discussion.
type IssueComment struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrichment is the full per-item payload fetched in phase 2. An item is
// only marked success once every field here has been populated.
type Enrichment struct {
	Summary       FileSummary    `json:"summary"`
	Files         []ChangedFile  `json:"files"`
	LinkedIssue   *LinkedIssue   `json:"linked_issue,omitempty"`
	IssueComments []IssueComment `json:"issue_comments,omitempty"`
}

// Item is a merged pull/merge request tracked by the pipeline, unique on
// (Repo, Number).
type Item struct {
	ID     string
	Repo   string // "owner/repo"
	Number int    // PR number (GitHub) or MR iid (GitLab)
	Source Source
	Title  string
	Body   string

	CreatedAt time.Time
	MergedAt  time.Time

	// Linked issue number parsed from the body at index time. Zero = none
	// found. The enrichment phase is authoritative; this is a hint.
	LinkedIssueNumber int

	// Enrichment fields, nil until the enrichment phase succeeds.
	Enrichment *Enrichment

	EnrichmentStatus      EnrichmentStatus
	EnrichmentAttemptedAt *time.Time
	EnrichmentError       string

	// Generated student-facing exercise, empty until requested.
	GeneratedIssue   string
	IssueGeneratedAt *time.Time

	IndexedAt time.Time
}

// SourceURL returns the item's browser URL on its host.
func (i *Item) SourceURL() string {
	if i.Source == SourceGitLab {
		return fmt.Sprintf("https://gitlab.com/%s/-/merge_requests/%d", i.Repo, i.Number)
	}
	return fmt.Sprintf("https://github.com/%s/pull/%d", i.Repo, i.Number)
}
