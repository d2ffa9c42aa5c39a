package models

import "time"

// ActionLedgerEntry is the append-only audit record of a dispatch or
// engagement action. Rate limiting counts these rows; they are never
// mutated after insert.
type ActionLedgerEntry struct {
	ID         int64     `json:"id"`
	Account    string    `json:"account"`
	ActionType string    `json:"action_type"`
	Platform   string    `json:"platform"`
	RefID      int64     `json:"ref_id"`
	Success    bool      `json:"success"`
	Detail     string    `json:"detail,omitempty"`
	Day        string    `json:"day"`
	Hour       int       `json:"hour"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewLedgerEntry stamps day/hour buckets from the given time.
func NewLedgerEntry(account, actionType, platform string, refID int64, success bool, at time.Time) ActionLedgerEntry {
	return ActionLedgerEntry{
		Account:    account,
		ActionType: actionType,
		Platform:   platform,
		RefID:      refID,
		Success:    success,
		Day:        at.UTC().Format("2006-01-02"),
		Hour:       at.UTC().Hour(),
		CreatedAt:  at,
	}
}
