package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a row lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClaimed is returned when a targeted claim loses the race.
	ErrAlreadyClaimed = errors.New("job already claimed")

	// ErrNotClaimHolder is returned when a state transition is attempted
	// with a claim token that no longer holds the row.
	ErrNotClaimHolder = errors.New("claim token does not hold this row")
)

// DB is the durable store for publish jobs, checkback tasks, rollup
// snapshots and the action ledger.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "database").Logger()
	} else {
		log = zerolog.Nop()
	}
	log.Info().Str("path", path).Msg("database initialized")

	return &DB{db: db, logger: log}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS content_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            source_ref TEXT NOT NULL,
            created_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS publish_jobs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            content_id INTEGER NOT NULL,
            platform TEXT NOT NULL,
            account TEXT NOT NULL,
            priority INTEGER NOT NULL DEFAULT 50,
            scheduled_for DATETIME NOT NULL,
            checkback_offsets TEXT,
            status TEXT NOT NULL DEFAULT 'queued',
            retry_count INTEGER NOT NULL DEFAULT 0,
            max_retries INTEGER NOT NULL DEFAULT 3,
            last_error TEXT,
            claim_token TEXT,
            claimed_at DATETIME,
            external_post_id TEXT,
            external_post_url TEXT,
            published_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS checkback_tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            job_id INTEGER NOT NULL,
            content_id INTEGER NOT NULL,
            platform TEXT NOT NULL,
            account TEXT NOT NULL,
            offset_hours INTEGER NOT NULL,
            due_at DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            attempts INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            claim_token TEXT,
            claimed_at DATETIME,
            views INTEGER, likes INTEGER, comments INTEGER,
            shares INTEGER, saves INTEGER,
            watch_seconds INTEGER, watch_ratio REAL,
            completed_at DATETIME,
            created_at DATETIME NOT NULL,
            UNIQUE(job_id, offset_hours)
        )`,

		`CREATE TABLE IF NOT EXISTS rollup_snapshots (
            content_id INTEGER PRIMARY KEY,
            total_views INTEGER NOT NULL DEFAULT 0,
            total_likes INTEGER NOT NULL DEFAULT 0,
            total_comments INTEGER NOT NULL DEFAULT 0,
            total_shares INTEGER NOT NULL DEFAULT 0,
            total_saves INTEGER NOT NULL DEFAULT 0,
            best_platform TEXT NOT NULL DEFAULT '',
            platforms_tracked INTEGER NOT NULL DEFAULT 0,
            completed_checkbacks INTEGER NOT NULL DEFAULT 0,
            computed_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS action_ledger (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            account TEXT NOT NULL,
            action_type TEXT NOT NULL,
            platform TEXT NOT NULL DEFAULT '',
            ref_id INTEGER NOT NULL DEFAULT 0,
            success BOOLEAN NOT NULL DEFAULT 1,
            detail TEXT NOT NULL DEFAULT '',
            day TEXT NOT NULL,
            hour INTEGER NOT NULL,
            created_at DATETIME NOT NULL
        )`,

		// Dispatch query shape: earliest-due, not-yet-claimed.
		`CREATE INDEX IF NOT EXISTS idx_jobs_dispatch ON publish_jobs(status, scheduled_for, priority)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_content ON publish_jobs(content_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_platform_account ON publish_jobs(platform, account, scheduled_for)`,

		`CREATE INDEX IF NOT EXISTS idx_checkbacks_due ON checkback_tasks(status, due_at)`,
		`CREATE INDEX IF NOT EXISTS idx_checkbacks_content ON checkback_tasks(content_id)`,

		`CREATE INDEX IF NOT EXISTS idx_ledger_account_action ON action_ledger(account, action_type, day)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// ExecContext exposes the underlying handle for maintenance helpers.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

func (db *DB) Close() error {
	return db.db.Close()
}
