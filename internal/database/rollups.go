package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clipcast/internal/models"
)

// UpsertRollup writes the recomputed snapshot for a content item.
// Last-write-wins by design: concurrent recomputes produce equally valid
// snapshots from the same completed-task set.
func (db *DB) UpsertRollup(ctx context.Context, snap *models.RollupSnapshot) error {
	query := `INSERT INTO rollup_snapshots
        (content_id, total_views, total_likes, total_comments, total_shares, total_saves,
         best_platform, platforms_tracked, completed_checkbacks, computed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(content_id) DO UPDATE SET
            total_views = excluded.total_views,
            total_likes = excluded.total_likes,
            total_comments = excluded.total_comments,
            total_shares = excluded.total_shares,
            total_saves = excluded.total_saves,
            best_platform = excluded.best_platform,
            platforms_tracked = excluded.platforms_tracked,
            completed_checkbacks = excluded.completed_checkbacks,
            computed_at = excluded.computed_at`
	_, err := db.db.ExecContext(ctx, query,
		snap.ContentID, snap.TotalViews, snap.TotalLikes, snap.TotalComments,
		snap.TotalShares, snap.TotalSaves, snap.BestPlatform,
		snap.PlatformsTracked, snap.CompletedCheckbacks, snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rollup for content %d: %w", snap.ContentID, err)
	}
	return nil
}

// GetRollup returns the current snapshot for a content item.
func (db *DB) GetRollup(ctx context.Context, contentID int64) (*models.RollupSnapshot, error) {
	query := `SELECT content_id, total_views, total_likes, total_comments, total_shares, total_saves,
        best_platform, platforms_tracked, completed_checkbacks, computed_at
        FROM rollup_snapshots WHERE content_id = ?`
	var s models.RollupSnapshot
	err := db.db.QueryRowContext(ctx, query, contentID).Scan(
		&s.ContentID, &s.TotalViews, &s.TotalLikes, &s.TotalComments, &s.TotalShares, &s.TotalSaves,
		&s.BestPlatform, &s.PlatformsTracked, &s.CompletedCheckbacks, &s.ComputedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rollup for content %d: %w", contentID, err)
	}
	return &s, nil
}

// ListRollups returns all snapshots, most recently computed first.
func (db *DB) ListRollups(ctx context.Context) ([]models.RollupSnapshot, error) {
	query := `SELECT content_id, total_views, total_likes, total_comments, total_shares, total_saves,
        best_platform, platforms_tracked, completed_checkbacks, computed_at
        FROM rollup_snapshots ORDER BY computed_at DESC`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollups: %w", err)
	}
	defer rows.Close()

	var rollups []models.RollupSnapshot
	for rows.Next() {
		var s models.RollupSnapshot
		if err := rows.Scan(
			&s.ContentID, &s.TotalViews, &s.TotalLikes, &s.TotalComments, &s.TotalShares, &s.TotalSaves,
			&s.BestPlatform, &s.PlatformsTracked, &s.CompletedCheckbacks, &s.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rollup: %w", err)
		}
		rollups = append(rollups, s)
	}
	return rollups, rows.Err()
}
