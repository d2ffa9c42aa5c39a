package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"clipcast/internal/models"
)

const jobColumns = `id, content_id, platform, account, priority, scheduled_for, checkback_offsets, status,
    retry_count, max_retries, last_error, claim_token, claimed_at,
    external_post_id, external_post_url, published_at, created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*models.PublishJob, error) {
	var j models.PublishJob
	var offsets sql.NullString
	err := row.Scan(
		&j.ID, &j.ContentID, &j.Platform, &j.Account, &j.Priority, &j.ScheduledFor, &offsets, &j.Status,
		&j.RetryCount, &j.MaxRetries, &j.LastError, &j.ClaimToken, &j.ClaimedAt,
		&j.ExternalPostID, &j.ExternalPostURL, &j.PublishedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if offsets.Valid {
		j.CheckbackOffsets, err = decodeOffsets(offsets.String)
		if err != nil {
			return nil, fmt.Errorf("malformed checkback offsets on job %d: %w", j.ID, err)
		}
	}
	return &j, nil
}

func encodeOffsets(offsets []int) interface{} {
	if len(offsets) == 0 {
		return nil
	}
	parts := make([]string, len(offsets))
	for i, o := range offsets {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}

func decodeOffsets(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CreatePublishJob inserts a job in queued state.
func (db *DB) CreatePublishJob(ctx context.Context, job *models.PublishJob) error {
	now := time.Now()
	if job.Status == "" {
		job.Status = models.JobQueued
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = models.DefaultMaxRetries
	}
	query := `INSERT INTO publish_jobs
        (content_id, platform, account, priority, scheduled_for, checkback_offsets, status, retry_count, max_retries, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.db.ExecContext(ctx, query,
		job.ContentID, job.Platform, job.Account, job.Priority, job.ScheduledFor,
		encodeOffsets(job.CheckbackOffsets), job.Status, job.RetryCount, job.MaxRetries, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create publish job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// GetPublishJob returns a job by id.
func (db *DB) GetPublishJob(ctx context.Context, id int64) (*models.PublishJob, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs WHERE id = ?`
	job, err := scanJob(db.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get publish job %d: %w", id, err)
	}
	return job, nil
}

// ClaimNextJob atomically claims the highest-priority, earliest-due queued
// job. The single UPDATE with a subselect guarantees at-most-one worker
// holds a given job: losers see zero rows affected. Returns (nil, nil)
// when nothing is due.
func (db *DB) ClaimNextJob(ctx context.Context, token string, now time.Time) (*models.PublishJob, error) {
	query := `UPDATE publish_jobs
        SET status = ?, claim_token = ?, claimed_at = ?, updated_at = ?
        WHERE id = (
            SELECT id FROM publish_jobs
            WHERE status = ? AND scheduled_for <= ?
            ORDER BY priority DESC, scheduled_for ASC, id ASC
            LIMIT 1
        ) AND status = ?`
	result, err := db.db.ExecContext(ctx, query,
		models.JobClaimed, token, now, now,
		models.JobQueued, now, models.JobQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim next job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	return db.jobByClaimToken(ctx, token)
}

// ClaimJob claims a specific job by id. Returns ErrAlreadyClaimed when the
// job is not in queued state (typically because another worker won).
func (db *DB) ClaimJob(ctx context.Context, id int64, token string, now time.Time) (*models.PublishJob, error) {
	query := `UPDATE publish_jobs
        SET status = ?, claim_token = ?, claimed_at = ?, updated_at = ?
        WHERE id = ? AND status = ? AND scheduled_for <= ?`
	result, err := db.db.ExecContext(ctx, query,
		models.JobClaimed, token, now, now, id, models.JobQueued, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrAlreadyClaimed
	}

	return db.jobByClaimToken(ctx, token)
}

func (db *DB) jobByClaimToken(ctx context.Context, token string) (*models.PublishJob, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs WHERE claim_token = ?`
	job, err := scanJob(db.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read claimed job: %w", err)
	}
	return job, nil
}

// MarkJobPublishing transitions claimed -> publishing under the claim token.
func (db *DB) MarkJobPublishing(ctx context.Context, id int64, token string) error {
	query := `UPDATE publish_jobs SET status = ?, updated_at = ?
        WHERE id = ? AND claim_token = ? AND status = ?`
	result, err := db.db.ExecContext(ctx, query, models.JobPublishing, time.Now(), id, token, models.JobClaimed)
	if err != nil {
		return fmt.Errorf("failed to mark job %d publishing: %w", id, err)
	}
	return requireClaim(result)
}

// MarkJobPublished records the external post reference and publish time.
func (db *DB) MarkJobPublished(ctx context.Context, id int64, token string, externalID, externalURL string, publishedAt time.Time) error {
	query := `UPDATE publish_jobs
        SET status = ?, external_post_id = ?, external_post_url = ?, published_at = ?,
            last_error = NULL, claim_token = NULL, updated_at = ?
        WHERE id = ? AND claim_token = ? AND status IN (?, ?)`
	result, err := db.db.ExecContext(ctx, query,
		models.JobPublished, externalID, externalURL, publishedAt, time.Now(),
		id, token, models.JobClaimed, models.JobPublishing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %d published: %w", id, err)
	}
	return requireClaim(result)
}

// RequeueJob returns a job to the queue. countRetry distinguishes a
// transient publish failure (retry_count advances) from a rate-limit
// deferral (retry budget untouched).
func (db *DB) RequeueJob(ctx context.Context, id int64, scheduledFor time.Time, lastError string, countRetry bool) error {
	var query string
	if countRetry {
		query = `UPDATE publish_jobs
            SET status = ?, scheduled_for = ?, last_error = ?, retry_count = retry_count + 1,
                claim_token = NULL, claimed_at = NULL, updated_at = ?
            WHERE id = ?`
	} else {
		query = `UPDATE publish_jobs
            SET status = ?, scheduled_for = ?, last_error = ?,
                claim_token = NULL, claimed_at = NULL, updated_at = ?
            WHERE id = ?`
	}
	_, err := db.db.ExecContext(ctx, query, models.JobQueued, scheduledFor, nullable(lastError), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to requeue job %d: %w", id, err)
	}
	return nil
}

// AbandonJob is the terminal failure transition after retries run out.
func (db *DB) AbandonJob(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE publish_jobs
        SET status = ?, last_error = ?, claim_token = NULL, updated_at = ?
        WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query, models.JobAbandoned, nullable(lastError), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to abandon job %d: %w", id, err)
	}
	return nil
}

// CancelJob cancels a job iff it is still queued. Reports whether the
// cancellation took effect.
func (db *DB) CancelJob(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE publish_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := db.db.ExecContext(ctx, query, models.JobCancelled, time.Now(), id, models.JobQueued)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListJobsByStatus returns jobs in dispatch order for a given status.
func (db *DB) ListJobsByStatus(ctx context.Context, status string, limit int) ([]models.PublishJob, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs WHERE status = ?
        ORDER BY priority DESC, scheduled_for ASC, id ASC LIMIT ?`
	rows, err := db.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListJobsByContent returns all jobs for a content item, oldest first.
func (db *DB) ListJobsByContent(ctx context.Context, contentID int64) ([]models.PublishJob, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs WHERE content_id = ? ORDER BY id ASC`
	rows, err := db.db.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs by content: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// LastScheduledFor returns the latest scheduled_for among live jobs of a
// platform/account, or nil when none exist. Seeds the planner state.
func (db *DB) LastScheduledFor(ctx context.Context, platform, account string) (*time.Time, error) {
	query := `SELECT MAX(scheduled_for) FROM publish_jobs
        WHERE platform = ? AND account = ? AND status IN (?, ?, ?, ?)`
	var last sql.NullTime
	err := db.db.QueryRowContext(ctx, query, platform, account,
		models.JobQueued, models.JobClaimed, models.JobPublishing, models.JobPublished).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to read last scheduled slot: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// CountQueuedAfter counts queued jobs of a platform/account scheduled
// after the given time. Used by the starvation monitor.
func (db *DB) CountQueuedAfter(ctx context.Context, platform, account string, after time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM publish_jobs
        WHERE platform = ? AND account = ? AND status = ? AND scheduled_for > ?`
	var count int
	err := db.db.QueryRowContext(ctx, query, platform, account, models.JobQueued, after).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued jobs: %w", err)
	}
	return count, nil
}

// CountByStatus reports queue depth for metrics.
func (db *DB) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM publish_jobs WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	return count, nil
}

// ActivePlatformAccounts lists distinct (platform, account) pairs that
// have ever been scheduled and are not fully cancelled.
func (db *DB) ActivePlatformAccounts(ctx context.Context) ([][2]string, error) {
	query := `SELECT DISTINCT platform, account FROM publish_jobs WHERE status != ?`
	rows, err := db.db.QueryContext(ctx, query, models.JobCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list platform accounts: %w", err)
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var platform, account string
		if err := rows.Scan(&platform, &account); err != nil {
			return nil, fmt.Errorf("failed to scan platform account: %w", err)
		}
		pairs = append(pairs, [2]string{platform, account})
	}
	return pairs, rows.Err()
}

func collectJobs(rows *sql.Rows) ([]models.PublishJob, error) {
	var jobs []models.PublishJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publish job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func requireClaim(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotClaimHolder
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
