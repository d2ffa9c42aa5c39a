package domain

import (
	"context"
	"time"

	"clipcast/internal/models"
)

// PublishResult is what a platform adapter returns on success.
type PublishResult struct {
	ExternalPostID  string
	ExternalPostURL string
}

// Publisher is the abstract "publish to platform" capability. Concrete
// adapters (Blotato, direct platform APIs) live outside the engine.
type Publisher interface {
	Publish(ctx context.Context, platform, account string, contentRef string) (*PublishResult, error)
}

// MetricsFetcher is the abstract "fetch metrics" capability.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context, platform, externalPostID string) (*models.MetricsSnapshot, error)
}

// BestTimeProvider supplies preferred time-of-day windows per platform
// and account. Implementations may return an empty slice; the planner
// then schedules at the earliest constraint-satisfying time.
type BestTimeProvider interface {
	BestTimeHints(ctx context.Context, platform, account string) ([]models.TimeWindow, error)
}

// Repository is the durable store the engine coordinates through.
type Repository interface {
	// Content.
	CreateContentItem(ctx context.Context, item *models.ContentItem) error
	GetContentItem(ctx context.Context, id int64) (*models.ContentItem, error)

	// Publish jobs.
	CreatePublishJob(ctx context.Context, job *models.PublishJob) error
	GetPublishJob(ctx context.Context, id int64) (*models.PublishJob, error)
	ClaimNextJob(ctx context.Context, token string, now time.Time) (*models.PublishJob, error)
	ClaimJob(ctx context.Context, id int64, token string, now time.Time) (*models.PublishJob, error)
	MarkJobPublishing(ctx context.Context, id int64, token string) error
	MarkJobPublished(ctx context.Context, id int64, token string, externalID, externalURL string, publishedAt time.Time) error
	RequeueJob(ctx context.Context, id int64, scheduledFor time.Time, lastError string, countRetry bool) error
	AbandonJob(ctx context.Context, id int64, lastError string) error
	CancelJob(ctx context.Context, id int64) (bool, error)
	ListJobsByStatus(ctx context.Context, status string, limit int) ([]models.PublishJob, error)
	ListJobsByContent(ctx context.Context, contentID int64) ([]models.PublishJob, error)
	LastScheduledFor(ctx context.Context, platform, account string) (*time.Time, error)
	CountQueuedAfter(ctx context.Context, platform, account string, after time.Time) (int, error)
	ActivePlatformAccounts(ctx context.Context) ([][2]string, error)

	// Checkback tasks.
	SeedCheckbacks(ctx context.Context, job *models.PublishJob, offsetsHours []int, publishedAt time.Time) ([]models.CheckbackTask, error)
	ClaimDueCheckback(ctx context.Context, token string, now time.Time) (*models.CheckbackTask, error)
	CompleteCheckback(ctx context.Context, id int64, token string, snap *models.MetricsSnapshot, completedAt time.Time) error
	RescheduleCheckback(ctx context.Context, id int64, token string, dueAt time.Time, lastError string) error
	SkipCheckback(ctx context.Context, id int64, lastError string) error
	ListCheckbacksByContent(ctx context.Context, contentID int64) ([]models.CheckbackTask, error)
	CompletedCheckbacksByContent(ctx context.Context, contentID int64) ([]models.CheckbackTask, error)
	SkipPendingCheckbacks(ctx context.Context, contentID int64, reason string) (int, error)

	// Aggregated content status.
	GetContentStatus(ctx context.Context, contentID int64) (*models.ContentStatus, error)

	// Rollups.
	UpsertRollup(ctx context.Context, snap *models.RollupSnapshot) error
	GetRollup(ctx context.Context, contentID int64) (*models.RollupSnapshot, error)
	ListRollups(ctx context.Context) ([]models.RollupSnapshot, error)

	// Action ledger.
	AppendLedger(ctx context.Context, entry *models.ActionLedgerEntry) error
	CountActions(ctx context.Context, account, actionType, day string) (int, error)
	CountActionsHour(ctx context.Context, account, actionType, day string, hour int) (int, error)
}

// StateRepository is the fast coordination layer in front of the durable
// store: worker wake signals, dead-lettered jobs and short-lived
// engagement counters. Implementations: Redis, in-memory, failover.
type StateRepository interface {
	PushWake(ctx context.Context, jobID int64) error
	PopWake(ctx context.Context, timeout time.Duration) (int64, bool, error)
	PushDeadLetter(ctx context.Context, payload []byte) error
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// EventPublisher mirrors the event bus surface used by services.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers operator-facing alerts for terminal failures and
// planner starvation warnings.
type Notifier interface {
	NotifyJobAbandoned(job *models.PublishJob)
	NotifyCheckbackSkipped(task *models.CheckbackTask)
	NotifyStarvation(platform, account string, lastSlot time.Time)
}

// RollupWriter pushes rollup rows to an external dashboard sheet.
type RollupWriter interface {
	UpdateRollupSheet(ctx context.Context, rollups []models.RollupSnapshot) error
}
