package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clipcast/internal/models"
)

// CreateContentItem registers a finalized content item. Identity is
// immutable afterwards.
func (db *DB) CreateContentItem(ctx context.Context, item *models.ContentItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	query := `INSERT INTO content_items (title, source_ref, created_at) VALUES (?, ?, ?)`
	result, err := db.db.ExecContext(ctx, query, item.Title, item.SourceRef, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create content item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get content insert id: %w", err)
	}
	item.ID = id
	return nil
}

// GetContentItem returns a content item by id.
func (db *DB) GetContentItem(ctx context.Context, id int64) (*models.ContentItem, error) {
	query := `SELECT id, title, source_ref, created_at FROM content_items WHERE id = ?`
	var item models.ContentItem
	err := db.db.QueryRowContext(ctx, query, id).Scan(&item.ID, &item.Title, &item.SourceRef, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content item %d: %w", id, err)
	}
	return &item, nil
}
