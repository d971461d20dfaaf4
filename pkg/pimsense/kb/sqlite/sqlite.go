// Package sqlite persists the category knowledge base in an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/pimsense/pkg/pimsense/internalerr"
	"github.com/cognicore/pimsense/pkg/pimsense/kb"
)

type sqliteStore struct {
	db *sql.DB
}

// Open opens (or creates) a knowledge-base database with WAL mode enabled.
func Open(ctx context.Context, path string) (kb.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS kb_entries (
	category_key TEXT PRIMARY KEY,
	breadcrumb TEXT NOT NULL,
	product_count INTEGER NOT NULL DEFAULT 0,
	locale TEXT NOT NULL DEFAULT '',
	needs_review INTEGER NOT NULL DEFAULT 1,
	notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS kb_history (
	category_key TEXT NOT NULL,
	run_id TEXT NOT NULL,
	at TEXT NOT NULL,
	action TEXT NOT NULL,
	FOREIGN KEY(category_key) REFERENCES kb_entries(category_key) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_kb_history_key ON kb_history(category_key);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// Load reads all entries with their history.
func (s *sqliteStore) Load(ctx context.Context) (map[string]*kb.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category_key, breadcrumb, product_count, locale, needs_review, notes FROM kb_entries`)
	if err != nil {
		return nil, fmt.Errorf("kb load: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]*kb.Entry)
	for rows.Next() {
		var e kb.Entry
		var review int
		if err := rows.Scan(&e.CategoryKey, &e.Breadcrumb, &e.ProductCount, &e.Locale, &review, &e.Notes); err != nil {
			return nil, err
		}
		e.NeedsReview = review != 0
		entries[e.CategoryKey] = &e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hrows, err := s.db.QueryContext(ctx,
		`SELECT category_key, run_id, at, action FROM kb_history ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("kb load history: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var key, runID, at, action string
		if err := hrows.Scan(&key, &runID, &at, &action); err != nil {
			return nil, err
		}
		e, ok := entries[key]
		if !ok {
			continue
		}
		ts, _ := time.Parse(time.RFC3339Nano, at)
		e.History = append(e.History, kb.Event{RunID: runID, At: ts, Action: action})
	}
	return entries, hrows.Err()
}

// Upsert writes one entry and replaces its history.
func (s *sqliteStore) Upsert(ctx context.Context, e *kb.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	review := 0
	if e.NeedsReview {
		review = 1
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO kb_entries (category_key, breadcrumb, product_count, locale, needs_review, notes)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(category_key) DO UPDATE SET
	breadcrumb = excluded.breadcrumb,
	product_count = excluded.product_count,
	locale = excluded.locale,
	needs_review = excluded.needs_review,
	notes = excluded.notes`,
		e.CategoryKey, e.Breadcrumb, e.ProductCount, e.Locale, review, e.Notes)
	if err != nil {
		return fmt.Errorf("kb upsert %s: %w", e.CategoryKey, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kb_history WHERE category_key = ?`, e.CategoryKey); err != nil {
		return err
	}
	for _, ev := range e.History {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kb_history (category_key, run_id, at, action) VALUES (?, ?, ?, ?)`,
			e.CategoryKey, ev.RunID, ev.At.Format(time.RFC3339Nano), ev.Action); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ClearReview clears the needs-review flag for one category. This is the
// explicit curation path; merges never clear the flag.
func (s *sqliteStore) ClearReview(ctx context.Context, categoryKey, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE kb_entries SET needs_review = 0 WHERE category_key = ?`, categoryKey)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("clear review %s: %w", categoryKey, internalerr.ErrNotFound)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kb_history (category_key, run_id, at, action) VALUES (?, ?, ?, ?)`,
		categoryKey, runID, time.Now().UTC().Format(time.RFC3339Nano), kb.ActionReviewCleared)
	return err
}
