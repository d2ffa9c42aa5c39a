package models

// ContentStatus is the read-only projection answering, per platform,
// "published/pending/failed/abandoned" and "how many checkbacks remain".
type ContentStatus struct {
	Content    *ContentItem      `json:"content"`
	Jobs       []PublishJob      `json:"jobs"`
	Variants   []PlatformVariant `json:"variants"`
	Checkbacks []CheckbackTask   `json:"checkbacks"`
	Rollup     *RollupSnapshot   `json:"rollup,omitempty"`
}
