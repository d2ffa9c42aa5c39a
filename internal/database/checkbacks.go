package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clipcast/internal/models"
)

const checkbackColumns = `id, job_id, content_id, platform, account, offset_hours, due_at,
    status, attempts, last_error, claim_token, claimed_at,
    views, likes, comments, shares, saves, watch_seconds, watch_ratio,
    completed_at, created_at`

func scanCheckback(row interface{ Scan(...interface{}) error }) (*models.CheckbackTask, error) {
	var t models.CheckbackTask
	var views, likes, comments, shares, saves, watchSeconds sql.NullInt64
	var watchRatio sql.NullFloat64
	err := row.Scan(
		&t.ID, &t.JobID, &t.ContentID, &t.Platform, &t.Account, &t.OffsetHours, &t.DueAt,
		&t.Status, &t.Attempts, &t.LastError, &t.ClaimToken, &t.ClaimedAt,
		&views, &likes, &comments, &shares, &saves, &watchSeconds, &watchRatio,
		&t.CompletedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if views.Valid {
		t.Snapshot = &models.MetricsSnapshot{
			Views:        views.Int64,
			Likes:        likes.Int64,
			Comments:     comments.Int64,
			Shares:       shares.Int64,
			Saves:        saves.Int64,
			WatchSeconds: watchSeconds.Int64,
			WatchRatio:   watchRatio.Float64,
		}
	}
	return &t, nil
}

// SeedCheckbacks creates one pending task per offset for a published job,
// all in one transaction. due_at = published_at + offset. INSERT OR IGNORE
// keeps the seeding idempotent when a publish confirmation is retried: the
// (job_id, offset_hours) unique constraint absorbs duplicates.
func (db *DB) SeedCheckbacks(ctx context.Context, job *models.PublishJob, offsetsHours []int, publishedAt time.Time) ([]models.CheckbackTask, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	query := `INSERT OR IGNORE INTO checkback_tasks
        (job_id, content_id, platform, account, offset_hours, due_at, status, attempts, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`

	tasks := make([]models.CheckbackTask, 0, len(offsetsHours))
	for _, offset := range offsetsHours {
		dueAt := publishedAt.Add(time.Duration(offset) * time.Hour)
		result, err := tx.ExecContext(ctx, query,
			job.ID, job.ContentID, job.Platform, job.Account, offset, dueAt, models.CheckbackPending, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to seed checkback +%dh for job %d: %w", offset, job.ID, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get checkback insert id: %w", err)
		}
		tasks = append(tasks, models.CheckbackTask{
			ID:          id,
			JobID:       job.ID,
			ContentID:   job.ContentID,
			Platform:    job.Platform,
			Account:     job.Account,
			OffsetHours: offset,
			DueAt:       dueAt,
			Status:      models.CheckbackPending,
			CreatedAt:   now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkback seed: %w", err)
	}
	return tasks, nil
}

// ClaimDueCheckback atomically claims the earliest due pending task,
// same exclusive-claim shape as ClaimNextJob. Returns (nil, nil) when
// nothing is due.
func (db *DB) ClaimDueCheckback(ctx context.Context, token string, now time.Time) (*models.CheckbackTask, error) {
	query := `UPDATE checkback_tasks
        SET status = ?, claim_token = ?, claimed_at = ?
        WHERE id = (
            SELECT id FROM checkback_tasks
            WHERE status = ? AND due_at <= ?
            ORDER BY due_at ASC, id ASC
            LIMIT 1
        ) AND status = ?`
	result, err := db.db.ExecContext(ctx, query,
		models.CheckbackRunning, token, now, models.CheckbackPending, now, models.CheckbackPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due checkback: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	task, err := scanCheckback(db.db.QueryRowContext(ctx,
		`SELECT `+checkbackColumns+` FROM checkback_tasks WHERE claim_token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read claimed checkback: %w", err)
	}
	return task, nil
}

// CompleteCheckback stores the snapshot and marks the task completed.
func (db *DB) CompleteCheckback(ctx context.Context, id int64, token string, snap *models.MetricsSnapshot, completedAt time.Time) error {
	query := `UPDATE checkback_tasks
        SET status = ?, views = ?, likes = ?, comments = ?, shares = ?, saves = ?,
            watch_seconds = ?, watch_ratio = ?,
            attempts = attempts + 1, last_error = NULL, claim_token = NULL, claimed_at = NULL, completed_at = ?
        WHERE id = ? AND claim_token = ? AND status = ?`
	result, err := db.db.ExecContext(ctx, query,
		models.CheckbackCompleted,
		snap.Views, snap.Likes, snap.Comments, snap.Shares, snap.Saves,
		snap.WatchSeconds, snap.WatchRatio,
		completedAt, id, token, models.CheckbackRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to complete checkback %d: %w", id, err)
	}
	return requireClaim(result)
}

// RescheduleCheckback returns a task to pending with a later due time
// after a fetch failure.
func (db *DB) RescheduleCheckback(ctx context.Context, id int64, token string, dueAt time.Time, lastError string) error {
	query := `UPDATE checkback_tasks
        SET status = ?, due_at = ?, attempts = attempts + 1, last_error = ?, claim_token = NULL, claimed_at = NULL
        WHERE id = ? AND claim_token = ? AND status = ?`
	result, err := db.db.ExecContext(ctx, query,
		models.CheckbackPending, dueAt, nullable(lastError), id, token, models.CheckbackRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule checkback %d: %w", id, err)
	}
	return requireClaim(result)
}

// SkipCheckback is the terminal giving-up transition. Later offsets of the
// same variant are unaffected; each offset is independent.
func (db *DB) SkipCheckback(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE checkback_tasks
        SET status = ?, last_error = ?, claim_token = NULL, claimed_at = NULL
        WHERE id = ? AND status IN (?, ?)`
	_, err := db.db.ExecContext(ctx, query,
		models.CheckbackSkipped, nullable(lastError), id, models.CheckbackPending, models.CheckbackRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to skip checkback %d: %w", id, err)
	}
	return nil
}

// SkipPendingCheckbacks cancels tracking for a content item: every pending
// task is marked skipped. Running tasks finish their in-flight fetch.
func (db *DB) SkipPendingCheckbacks(ctx context.Context, contentID int64, reason string) (int, error) {
	query := `UPDATE checkback_tasks SET status = ?, last_error = ? WHERE content_id = ? AND status = ?`
	result, err := db.db.ExecContext(ctx, query, models.CheckbackSkipped, nullable(reason), contentID, models.CheckbackPending)
	if err != nil {
		return 0, fmt.Errorf("failed to skip checkbacks for content %d: %w", contentID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(affected), nil
}

// ListCheckbacksByContent returns all tasks for a content item ordered by
// platform then offset.
func (db *DB) ListCheckbacksByContent(ctx context.Context, contentID int64) ([]models.CheckbackTask, error) {
	query := `SELECT ` + checkbackColumns + ` FROM checkback_tasks
        WHERE content_id = ? ORDER BY platform ASC, account ASC, offset_hours ASC`
	return db.queryCheckbacks(ctx, query, contentID)
}

// CompletedCheckbacksByContent returns completed tasks only; input to the
// rollup aggregator.
func (db *DB) CompletedCheckbacksByContent(ctx context.Context, contentID int64) ([]models.CheckbackTask, error) {
	query := `SELECT ` + checkbackColumns + ` FROM checkback_tasks
        WHERE content_id = ? AND status = ? ORDER BY platform ASC, account ASC, offset_hours ASC`
	return db.queryCheckbacks(ctx, query, contentID, models.CheckbackCompleted)
}

func (db *DB) queryCheckbacks(ctx context.Context, query string, args ...interface{}) ([]models.CheckbackTask, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkbacks: %w", err)
	}
	defer rows.Close()

	var tasks []models.CheckbackTask
	for rows.Next() {
		task, err := scanCheckback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkback: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}
