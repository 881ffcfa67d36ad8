// Package tracker keeps the history of enhancement attempts in SQLite: what
// was tried, how it ended and what it cost.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/orpheus-ai/orpheus/pkg/models"
)

// Tracker records and queries enhancement attempts.
type Tracker interface {
	// Record stores an attempt. A missing ID or timestamp is filled in.
	Record(ctx context.Context, rec models.AttemptRecord) error
	// List returns attempts since a given time, newest first. limit <= 0 means all.
	List(ctx context.Context, since time.Time, limit int) ([]models.AttemptRecord, error)
	// Summary aggregates attempts since a given time by outcome.
	Summary(ctx context.Context, since time.Time) ([]models.AttemptSummary, error)
	// TotalCost returns the actual spend recorded since a given time.
	TotalCost(ctx context.Context, since time.Time) (float64, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

var _ Tracker = (*SQLiteTracker)(nil)

const createTable = `
CREATE TABLE IF NOT EXISTS enhancement_attempts (
	id TEXT PRIMARY KEY,
	creation_name TEXT NOT NULL,
	endpoint TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	estimated_cost REAL NOT NULL,
	actual_cost REAL NOT NULL,
	processing_ms INTEGER NOT NULL DEFAULT 0,
	boot_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_attempts_time ON enhancement_attempts(created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	if !columnExists(db, "enhancement_attempts", "boot_ms") {
		if _, err := db.Exec(`ALTER TABLE enhancement_attempts ADD COLUMN boot_ms INTEGER NOT NULL DEFAULT 0`); err != nil {
			db.Close()
			return nil, fmt.Errorf("add boot_ms column: %w", err)
		}
	}

	return &SQLiteTracker{db: db}, nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

// Record stores an attempt.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.AttemptRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO enhancement_attempts
		 (id, creation_name, endpoint, outcome, reason, estimated_cost, actual_cost, processing_ms, boot_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreationName, rec.Endpoint, string(rec.Outcome), rec.Reason,
		rec.EstimatedCost, rec.ActualCost, rec.ProcessingMs, rec.BootMs, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// List returns attempts since a given time, newest first.
func (t *SQLiteTracker) List(ctx context.Context, since time.Time, limit int) ([]models.AttemptRecord, error) {
	query := `SELECT id, creation_name, endpoint, outcome, reason, estimated_cost, actual_cost, processing_ms, boot_ms, created_at
		 FROM enhancement_attempts WHERE created_at >= ? ORDER BY created_at DESC`
	args := []any{since.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var records []models.AttemptRecord
	for rows.Next() {
		var r models.AttemptRecord
		var outcome string
		if err := rows.Scan(&r.ID, &r.CreationName, &r.Endpoint, &outcome, &r.Reason,
			&r.EstimatedCost, &r.ActualCost, &r.ProcessingMs, &r.BootMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		r.Outcome = models.AttemptOutcome(outcome)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns attempts since a given time grouped by outcome.
func (t *SQLiteTracker) Summary(ctx context.Context, since time.Time) ([]models.AttemptSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*), COALESCE(SUM(actual_cost), 0), COALESCE(CAST(AVG(processing_ms) AS INTEGER), 0)
		 FROM enhancement_attempts WHERE created_at >= ?
		 GROUP BY outcome ORDER BY outcome`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.AttemptSummary
	for rows.Next() {
		var s models.AttemptSummary
		var outcome string
		if err := rows.Scan(&outcome, &s.Count, &s.TotalCost, &s.AvgProcessMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Outcome = models.AttemptOutcome(outcome)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// TotalCost returns the actual spend recorded since a given time.
func (t *SQLiteTracker) TotalCost(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(actual_cost), 0) FROM enhancement_attempts WHERE created_at >= ?`,
		since.UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total cost: %w", err)
	}
	return total, nil
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
