package database

import (
	"context"
	"fmt"
	"time"

	"clipcast/internal/models"
)

// A claim only releases through a terminal transition made by the worker
// holding it. If that worker dies mid-flight the row would stay claimed
// forever, so rows whose claim is older than the staleness bound are
// recovered here: the crash spends one attempt of the row's budget.

// ReapStaleJobClaims recovers publish jobs stuck in claimed or publishing
// past the cutoff. Jobs with retry budget left go back to queued for an
// immediate retry; jobs without are abandoned.
func (db *DB) ReapStaleJobClaims(ctx context.Context, cutoff time.Time) (requeued, abandoned int64, err error) {
	now := time.Now()

	abandon := `UPDATE publish_jobs
        SET status = ?, last_error = ?, retry_count = retry_count + 1,
            claim_token = NULL, claimed_at = NULL, updated_at = ?
        WHERE status IN (?, ?) AND claimed_at IS NOT NULL AND claimed_at <= ?
            AND retry_count + 1 >= max_retries`
	result, err := db.db.ExecContext(ctx, abandon,
		models.JobAbandoned, "stale claim: worker presumed dead", now,
		models.JobClaimed, models.JobPublishing, cutoff,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to abandon stale job claims: %w", err)
	}
	if abandoned, err = result.RowsAffected(); err != nil {
		return 0, 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	requeue := `UPDATE publish_jobs
        SET status = ?, scheduled_for = ?, last_error = ?, retry_count = retry_count + 1,
            claim_token = NULL, claimed_at = NULL, updated_at = ?
        WHERE status IN (?, ?) AND claimed_at IS NOT NULL AND claimed_at <= ?`
	result, err = db.db.ExecContext(ctx, requeue,
		models.JobQueued, now, "stale claim: worker presumed dead", now,
		models.JobClaimed, models.JobPublishing, cutoff,
	)
	if err != nil {
		return 0, abandoned, fmt.Errorf("failed to requeue stale job claims: %w", err)
	}
	if requeued, err = result.RowsAffected(); err != nil {
		return 0, abandoned, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return requeued, abandoned, nil
}

// ReapStaleCheckbackClaims recovers checkback tasks stuck in running past
// the cutoff. Tasks with attempt budget left return to pending (still due,
// so they are re-claimed immediately); exhausted tasks are skipped.
func (db *DB) ReapStaleCheckbackClaims(ctx context.Context, cutoff time.Time, maxAttempts int) (requeued, skipped int64, err error) {
	skip := `UPDATE checkback_tasks
        SET status = ?, last_error = ?, attempts = attempts + 1,
            claim_token = NULL, claimed_at = NULL
        WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?
            AND attempts + 1 >= ?`
	result, err := db.db.ExecContext(ctx, skip,
		models.CheckbackSkipped, "stale claim: worker presumed dead",
		models.CheckbackRunning, cutoff, maxAttempts,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to skip stale checkback claims: %w", err)
	}
	if skipped, err = result.RowsAffected(); err != nil {
		return 0, 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	requeue := `UPDATE checkback_tasks
        SET status = ?, last_error = ?, attempts = attempts + 1,
            claim_token = NULL, claimed_at = NULL
        WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?`
	result, err = db.db.ExecContext(ctx, requeue,
		models.CheckbackPending, "stale claim: worker presumed dead",
		models.CheckbackRunning, cutoff,
	)
	if err != nil {
		return 0, skipped, fmt.Errorf("failed to requeue stale checkback claims: %w", err)
	}
	if requeued, err = result.RowsAffected(); err != nil {
		return 0, skipped, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return requeued, skipped, nil
}
