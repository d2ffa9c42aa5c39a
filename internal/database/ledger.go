package database

import (
	"context"
	"fmt"
	"time"

	"clipcast/internal/models"
)

// AppendLedger inserts an action record. The ledger is append-only; there
// are no update or delete paths.
func (db *DB) AppendLedger(ctx context.Context, entry *models.ActionLedgerEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Day == "" {
		entry.Day = entry.CreatedAt.UTC().Format("2006-01-02")
		entry.Hour = entry.CreatedAt.UTC().Hour()
	}
	query := `INSERT INTO action_ledger
        (account, action_type, platform, ref_id, success, detail, day, hour, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.db.ExecContext(ctx, query,
		entry.Account, entry.ActionType, entry.Platform, entry.RefID,
		entry.Success, entry.Detail, entry.Day, entry.Hour, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get ledger insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// CountActions counts ledger rows for an account/action on a given day.
func (db *DB) CountActions(ctx context.Context, account, actionType, day string) (int, error) {
	query := `SELECT COUNT(*) FROM action_ledger WHERE account = ? AND action_type = ? AND day = ?`
	var count int
	if err := db.db.QueryRowContext(ctx, query, account, actionType, day).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ledger actions: %w", err)
	}
	return count, nil
}

// CountActionsHour narrows the count to one hour bucket of the day.
func (db *DB) CountActionsHour(ctx context.Context, account, actionType, day string, hour int) (int, error) {
	query := `SELECT COUNT(*) FROM action_ledger
        WHERE account = ? AND action_type = ? AND day = ? AND hour = ?`
	var count int
	if err := db.db.QueryRowContext(ctx, query, account, actionType, day, hour).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ledger actions for hour: %w", err)
	}
	return count, nil
}
