package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/prclass/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Items ---

const itemColumns = `id, repo, number, source, title, body, created_at, merged_at,
	linked_issue_number, enrichment, enrichment_status, enrichment_attempted_at,
	enrichment_error, generated_issue, issue_generated_at, indexed_at`

// UpsertIndexBatch inserts or updates items keyed by (repo, number).
// Existing rows keep their enrichment payload and status; only the basic
// index-phase fields are refreshed. Returns the number of rows written.
func (s *SQLiteStore) UpsertIndexBatch(ctx context.Context, items []*models.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (id, repo, number, source, title, body, created_at, merged_at, linked_issue_number, enrichment_status, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)
		ON CONFLICT (repo, number) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			created_at = excluded.created_at,
			merged_at = excluded.merged_at,
			linked_issue_number = excluded.linked_issue_number,
			indexed_at = excluded.indexed_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	written := 0
	for _, item := range items {
		if item.ID == "" {
			item.ID = newULID()
		}
		item.IndexedAt = now
		if _, err := stmt.ExecContext(ctx,
			item.ID, item.Repo, item.Number, string(item.Source), item.Title, item.Body,
			item.CreatedAt, item.MergedAt, item.LinkedIssueNumber, now,
		); err != nil {
			return written, fmt.Errorf("upsert item %s#%d: %w", item.Repo, item.Number, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return written, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, repo string, number int) (*models.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE repo = ? AND number = ?`, repo, number)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item not found: %s#%d", repo, number)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetItemsNeedingEnrichment selects pending or failed items, newest merge
// first. An empty repo selects across all repositories.
func (s *SQLiteStore) GetItemsNeedingEnrichment(ctx context.Context, repo string, limit int) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE enrichment_status IN ('pending', 'failed')`
	var args []any
	if repo != "" {
		query += " AND repo = ?"
		args = append(args, repo)
	}
	query += " ORDER BY merged_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryItems(ctx, query, args...)
}

// UpdateEnrichmentSuccess atomically commits the full enrichment payload
// and flips the item to success.
func (s *SQLiteStore) UpdateEnrichmentSuccess(ctx context.Context, itemID string, payload *models.Enrichment, attemptedAt time.Time) error {
	if payload == nil {
		return fmt.Errorf("enrichment payload is required for success")
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal enrichment: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET enrichment = ?, enrichment_status = 'success', enrichment_attempted_at = ?, enrichment_error = ''
		WHERE id = ?`,
		string(blob), attemptedAt.UTC(), itemID)
	if err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("item not found: %s", itemID)
	}
	return nil
}

// maxErrorLen bounds stored enrichment error text.
const maxErrorLen = 500

// UpdateEnrichmentFailure records the error text and flips the item to
// failed, leaving any previously stored enrichment untouched.
func (s *SQLiteStore) UpdateEnrichmentFailure(ctx context.Context, itemID string, errText string, attemptedAt time.Time) error {
	if len(errText) > maxErrorLen {
		errText = errText[:maxErrorLen]
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET enrichment_status = 'failed', enrichment_attempted_at = ?, enrichment_error = ?
		WHERE id = ?`,
		attemptedAt.UTC(), errText, itemID)
	if err != nil {
		return fmt.Errorf("update enrichment failure: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("item not found: %s", itemID)
	}
	return nil
}

func (s *SQLiteStore) EnrichmentStats(ctx context.Context, repo string) (*EnrichmentStats, error) {
	query := `SELECT enrichment_status, COUNT(*) FROM items`
	var args []any
	if repo != "" {
		query += " WHERE repo = ?"
		args = append(args, repo)
	}
	query += " GROUP BY enrichment_status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("enrichment stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &EnrichmentStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.Total += count
		switch models.EnrichmentStatus(status) {
		case models.EnrichmentPending:
			stats.Pending = count
		case models.EnrichmentSuccess:
			stats.Success = count
		case models.EnrichmentFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// --- Classifications ---

// GetItemsNeedingClassification selects successfully enriched items that
// have no classification row yet.
func (s *SQLiteStore) GetItemsNeedingClassification(ctx context.Context, repo string, limit int) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items
		WHERE enrichment_status = 'success'
		AND id NOT IN (SELECT item_id FROM classifications)`
	var args []any
	if repo != "" {
		query += " AND repo = ?"
		args = append(args, repo)
	}
	query += " ORDER BY merged_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryItems(ctx, query, args...)
}

// SaveClassification upserts the classification for an item, one row per
// item. Re-classification overwrites rather than versions.
func (s *SQLiteStore) SaveClassification(ctx context.Context, c *models.Classification) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	if c.ClassifiedAt.IsZero() {
		c.ClassifiedAt = time.Now().UTC()
	}

	categories, err := json.Marshal(c.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	concepts, err := json.Marshal(c.ConceptsTaught)
	if err != nil {
		return fmt.Errorf("marshal concepts: %w", err)
	}
	prereqs, err := json.Marshal(c.Prerequisites)
	if err != nil {
		return fmt.Errorf("marshal prerequisites: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO classifications (id, item_id, repo, number, title, merged_at, source_url,
			difficulty, task_clarity, is_reproducible, onboarding_suitability,
			categories, concepts_taught, prerequisites, reasoning, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET
			repo = excluded.repo,
			number = excluded.number,
			title = excluded.title,
			merged_at = excluded.merged_at,
			source_url = excluded.source_url,
			difficulty = excluded.difficulty,
			task_clarity = excluded.task_clarity,
			is_reproducible = excluded.is_reproducible,
			onboarding_suitability = excluded.onboarding_suitability,
			categories = excluded.categories,
			concepts_taught = excluded.concepts_taught,
			prerequisites = excluded.prerequisites,
			reasoning = excluded.reasoning,
			classified_at = excluded.classified_at`,
		c.ID, c.ItemID, c.Repo, c.Number, c.Title, c.MergedAt.UTC(), c.SourceURL,
		string(c.Difficulty), c.TaskClarity, c.IsReproducible, c.OnboardingSuitability,
		string(categories), string(concepts), string(prereqs), c.Reasoning, c.ClassifiedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetClassification(ctx context.Context, itemID string) (*models.Classification, error) {
	c := &models.Classification{}
	var difficulty, categories, concepts, prereqs string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, item_id, repo, number, title, merged_at, source_url,
			difficulty, task_clarity, is_reproducible, onboarding_suitability,
			categories, concepts_taught, prerequisites, reasoning, classified_at
		FROM classifications WHERE item_id = ?`, itemID,
	).Scan(&c.ID, &c.ItemID, &c.Repo, &c.Number, &c.Title, &c.MergedAt, &c.SourceURL,
		&difficulty, &c.TaskClarity, &c.IsReproducible, &c.OnboardingSuitability,
		&categories, &concepts, &prereqs, &c.Reasoning, &c.ClassifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get classification: %w", err)
	}

	c.Difficulty = models.Difficulty(difficulty)
	_ = json.Unmarshal([]byte(categories), &c.Categories)
	_ = json.Unmarshal([]byte(concepts), &c.ConceptsTaught)
	_ = json.Unmarshal([]byte(prereqs), &c.Prerequisites)
	return c, nil
}

func (s *SQLiteStore) ClassificationStats(ctx context.Context, repo string) (*ClassificationStats, error) {
	query := `SELECT difficulty, COUNT(*) FROM classifications`
	var args []any
	if repo != "" {
		query += " WHERE repo = ?"
		args = append(args, repo)
	}
	query += " GROUP BY difficulty"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("classification stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &ClassificationStats{}
	for rows.Next() {
		var difficulty string
		var count int
		if err := rows.Scan(&difficulty, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.Total += count
		switch models.Difficulty(difficulty) {
		case models.DifficultyTrivial:
			stats.Trivial = count
		case models.DifficultyEasy:
			stats.Easy = count
		case models.DifficultyMedium:
			stats.Medium = count
		case models.DifficultyHard:
			stats.Hard = count
		}
	}
	return stats, rows.Err()
}

// --- Generated issues ---

// SaveGeneratedIssue overwrites any prior generation for the item.
func (s *SQLiteStore) SaveGeneratedIssue(ctx context.Context, itemID string, markdown string, generatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET generated_issue = ?, issue_generated_at = ? WHERE id = ?`,
		markdown, generatedAt.UTC(), itemID)
	if err != nil {
		return fmt.Errorf("save generated issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("item not found: %s", itemID)
	}
	return nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	item := &models.Item{}
	var source, status string
	var enrichment sql.NullString
	var attemptedAt, generatedAt sql.NullTime

	err := row.Scan(&item.ID, &item.Repo, &item.Number, &source, &item.Title, &item.Body,
		&item.CreatedAt, &item.MergedAt, &item.LinkedIssueNumber,
		&enrichment, &status, &attemptedAt,
		&item.EnrichmentError, &item.GeneratedIssue, &generatedAt, &item.IndexedAt)
	if err != nil {
		return nil, err
	}

	item.Source = models.Source(source)
	item.EnrichmentStatus = models.EnrichmentStatus(status)
	if attemptedAt.Valid {
		item.EnrichmentAttemptedAt = &attemptedAt.Time
	}
	if generatedAt.Valid {
		item.IssueGeneratedAt = &generatedAt.Time
	}
	if enrichment.Valid && enrichment.String != "" {
		payload := &models.Enrichment{}
		if err := json.Unmarshal([]byte(enrichment.String), payload); err != nil {
			return nil, fmt.Errorf("unmarshal enrichment: %w", err)
		}
		item.Enrichment = payload
	}
	return item, nil
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// compile-time interface check
var _ Store = (*SQLiteStore)(nil)
