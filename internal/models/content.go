package models

import "time"

// ContentItem is a canonical piece of content finalized for distribution.
// Identity is immutable once created; platform variants hang off it.
type ContentItem struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	SourceRef string    `json:"source_ref"`
	CreatedAt time.Time `json:"created_at"`
}

// PlatformVariant is the per-platform published instance of a content item.
// It is materialized from the published job plus its checkback tasks.
type PlatformVariant struct {
	ContentID       int64      `json:"content_id"`
	Platform        string     `json:"platform"`
	Account         string     `json:"account"`
	ExternalPostID  string     `json:"external_post_id"`
	ExternalPostURL string     `json:"external_post_url"`
	PublishedAt     *time.Time `json:"published_at"`
	CheckbacksDone  int        `json:"checkbacks_done"`
	CheckbacksLeft  int        `json:"checkbacks_left"`
}

// TrackingComplete reports whether every checkback for the variant reached
// a terminal state.
func (v *PlatformVariant) TrackingComplete() bool {
	return v.PublishedAt != nil && v.CheckbacksLeft == 0
}

// TimeWindow is a preferred time-of-day posting window supplied by the
// best-time insight provider. Hours are in [0, 24), End exclusive.
type TimeWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Contains reports whether the given hour falls inside the window,
// handling windows that wrap past midnight.
func (w TimeWindow) Contains(hour int) bool {
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}
