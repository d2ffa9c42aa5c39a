package models

import "time"

// MetricsSnapshot is the payload returned by a platform metrics fetch and
// stored on a completed checkback task.
type MetricsSnapshot struct {
	Views        int64   `json:"views"`
	Likes        int64   `json:"likes"`
	Comments     int64   `json:"comments"`
	Shares       int64   `json:"shares"`
	Saves        int64   `json:"saves"`
	WatchSeconds int64   `json:"watch_seconds"`
	WatchRatio   float64 `json:"watch_ratio"`
}

// Engagement is the score used to rank platforms in rollups.
func (s MetricsSnapshot) Engagement() int64 {
	return s.Likes + s.Comments + s.Shares
}

// CheckbackTask is one scheduled measurement for a published variant at a
// fixed offset after publish time. Invariant: DueAt = published_at + offset
// (shifted forward only by fetch-failure reschedules).
type CheckbackTask struct {
	ID          int64            `json:"id"`
	JobID       int64            `json:"job_id"`
	ContentID   int64            `json:"content_id"`
	Platform    string           `json:"platform"`
	Account     string           `json:"account"`
	OffsetHours int              `json:"offset_hours"`
	DueAt       time.Time        `json:"due_at"`
	Status      string           `json:"status"`
	Attempts    int              `json:"attempts"`
	LastError   *string          `json:"last_error"`
	ClaimToken  *string          `json:"claim_token"`
	ClaimedAt   *time.Time       `json:"claimed_at"`
	Snapshot    *MetricsSnapshot `json:"snapshot,omitempty"`
	CompletedAt *time.Time       `json:"completed_at"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Terminal reports whether the task reached completed or skipped.
func (t *CheckbackTask) Terminal() bool {
	return t.Status == CheckbackCompleted || t.Status == CheckbackSkipped
}
