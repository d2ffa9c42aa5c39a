package models

import "time"

// PublishJob is one scheduled attempt to publish a content item to a
// specific platform/account. Lifecycle is owned by the queue:
//
//	queued -> claimed -> publishing -> published
//	publishing -> queued (retry while retry_count < max_retries), else abandoned
//	queued -> cancelled (before claim only)
type PublishJob struct {
	ID           int64     `json:"id"`
	ContentID    int64     `json:"content_id"`
	Platform     string    `json:"platform"`
	Account      string    `json:"account"`
	Priority     int       `json:"priority"`
	ScheduledFor time.Time `json:"scheduled_for"`
	// CheckbackOffsets overrides the global measurement cadence for this
	// job when non-empty. Hours after publish, strictly increasing.
	CheckbackOffsets []int `json:"checkback_offsets,omitempty"`
	Status          string     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	LastError       *string    `json:"last_error"`
	ClaimToken      *string    `json:"claim_token"`
	ClaimedAt       *time.Time `json:"claimed_at"`
	ExternalPostID  *string    `json:"external_post_id"`
	ExternalPostURL *string    `json:"external_post_url"`
	PublishedAt     *time.Time `json:"published_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Terminal reports whether the job can never change status again.
func (j *PublishJob) Terminal() bool {
	switch j.Status {
	case JobPublished, JobAbandoned, JobCancelled:
		return true
	}
	return false
}

// Cancellable reports whether Cancel is still valid for the job.
// Once a worker holds the claim the external call may already be in
// flight and must run to completion.
func (j *PublishJob) Cancellable() bool {
	return j.Status == JobQueued
}
