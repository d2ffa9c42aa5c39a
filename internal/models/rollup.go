package models

import "time"

// RollupSnapshot is the latest cross-platform aggregate for a content item.
// It is recomputed from scratch after every completed checkback; the write
// is a last-write-wins upsert keyed by content id.
type RollupSnapshot struct {
	ContentID           int64     `json:"content_id"`
	TotalViews          int64     `json:"total_views"`
	TotalLikes          int64     `json:"total_likes"`
	TotalComments       int64     `json:"total_comments"`
	TotalShares         int64     `json:"total_shares"`
	TotalSaves          int64     `json:"total_saves"`
	BestPlatform        string    `json:"best_platform"`
	PlatformsTracked    int       `json:"platforms_tracked"`
	CompletedCheckbacks int       `json:"completed_checkbacks"`
	ComputedAt          time.Time `json:"computed_at"`
}
