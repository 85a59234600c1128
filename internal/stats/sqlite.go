// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stats

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLite schema for usage statistics.
const schema = `
CREATE TABLE IF NOT EXISTS requests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at INTEGER NOT NULL,      -- Unix timestamp, milliseconds
    model TEXT NOT NULL,
    prompt_chars INTEGER NOT NULL,
    response_chars INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    cache_hit INTEGER NOT NULL DEFAULT 0,
    offline INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_model ON requests(model);
CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at);
`

// SQLiteTracker persists usage records to a local SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

// NewSQLite opens or creates the statistics database at path.
func NewSQLite(path string) (*SQLiteTracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize stats schema: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores one usage entry. A zero Timestamp is filled with the
// current time.
func (t *SQLiteTracker) Record(ctx context.Context, rec Record) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO requests (created_at, model, prompt_chars, response_chars, duration_ms, cache_hit, offline, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UnixMilli(), rec.Model, rec.PromptChars, rec.ResponseChars,
		rec.DurationMs, boolInt(rec.CacheHit), boolInt(rec.Offline), rec.Outcome,
	)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// Summary aggregates all recorded requests.
func (t *SQLiteTracker) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_chars), 0),
		       COALESCE(SUM(response_chars), 0),
		       COALESCE(SUM(cache_hit), 0),
		       COALESCE(SUM(offline), 0),
		       COALESCE(SUM(CASE WHEN outcome != ? THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(duration_ms), 0)
		FROM requests`, OutcomeOK,
	).Scan(&s.Requests, &s.PromptChars, &s.ResponseChars, &s.CacheHits,
		&s.Offline, &s.Failures, &s.AvgDurationMs)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize requests: %w", err)
	}
	return s, nil
}

// ByModel aggregates recorded requests per model, busiest first.
func (t *SQLiteTracker) ByModel(ctx context.Context) ([]ModelUsage, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT model,
		       COUNT(*),
		       COALESCE(SUM(prompt_chars), 0),
		       COALESCE(SUM(response_chars), 0),
		       COALESCE(SUM(cache_hit), 0),
		       COALESCE(AVG(duration_ms), 0)
		FROM requests
		GROUP BY model
		ORDER BY COUNT(*) DESC, model ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query model usage: %w", err)
	}
	defer rows.Close()

	var usage []ModelUsage
	for rows.Next() {
		var u ModelUsage
		if err := rows.Scan(&u.Model, &u.Requests, &u.PromptChars,
			&u.ResponseChars, &u.CacheHits, &u.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan model usage: %w", err)
		}
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read model usage: %w", err)
	}
	return usage, nil
}

// Close releases the database.
func (t *SQLiteTracker) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
