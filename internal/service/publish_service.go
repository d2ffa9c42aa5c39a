package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/database"
	"clipcast/internal/domain"
	"clipcast/internal/events"
	"clipcast/internal/metrics"
	"clipcast/internal/models"
	"clipcast/internal/planner"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidRequest covers malformed enqueue input (missing platform,
	// priority out of range, bad cadence override).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrContentNotFound maps store misses to the API layer.
	ErrContentNotFound = errors.New("content not found")
)

// EnqueueRequest asks for one content/platform pair to be scheduled.
// Either ContentID references an existing item or Title+SourceRef create
// a new one. Zero Priority means the default; CheckbackOffsets overrides
// the global cadence for this job only.
type EnqueueRequest struct {
	ContentID        int64     `json:"content_id,omitempty"`
	Title            string    `json:"title,omitempty"`
	SourceRef        string    `json:"source_ref,omitempty"`
	Platform         string    `json:"platform"`
	Account          string    `json:"account"`
	Priority         int       `json:"priority,omitempty"`
	NotBefore        time.Time `json:"not_before,omitempty"`
	CheckbackOffsets []int     `json:"checkback_offsets,omitempty"`
}

// PublishService is the front door of the engine: it validates enqueue
// requests, asks the planner for a slot, persists the job and wakes the
// workers. Cancellation and status reads also live here.
type PublishService struct {
	repo     domain.Repository
	planner  *planner.Planner
	state    domain.StateRepository
	bus      domain.EventPublisher
	notifier domain.Notifier
	cfg      config.EngineConfig
	logger   zerolog.Logger
}

func NewPublishService(
	repo domain.Repository,
	pl *planner.Planner,
	state domain.StateRepository,
	bus domain.EventPublisher,
	notifier domain.Notifier,
	cfg config.EngineConfig,
	logger *zerolog.Logger,
) *PublishService {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "publish_service").Logger()
	}
	return &PublishService{
		repo:     repo,
		planner:  pl,
		state:    state,
		bus:      bus,
		notifier: notifier,
		cfg:      cfg,
		logger:   log,
	}
}

// Enqueue validates the request, reserves a planner slot and inserts the
// job. A slot beyond the scheduling horizon rejects the whole request;
// nothing is persisted in that case.
func (s *PublishService) Enqueue(ctx context.Context, req EnqueueRequest) (*models.PublishJob, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	content, err := s.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == 0 {
		priority = models.DefaultPriority
	}

	now := time.Now()
	slot, err := s.planner.NextSlot(ctx, planner.Request{
		ContentID:        content.ID,
		ContentCreatedAt: content.CreatedAt,
		Platform:         req.Platform,
		Account:          req.Account,
		Priority:         priority,
		NotBefore:        req.NotBefore,
	}, now)
	if err != nil {
		return nil, err
	}

	job := &models.PublishJob{
		ContentID:        content.ID,
		Platform:         req.Platform,
		Account:          req.Account,
		Priority:         priority,
		ScheduledFor:     slot,
		CheckbackOffsets: req.CheckbackOffsets,
		MaxRetries:       s.cfg.Queue.MaxRetries,
	}
	if err := s.repo.CreatePublishJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create publish job: %w", err)
	}

	// Already-due jobs skip the poll delay via the wake signal.
	if s.state != nil && !slot.After(now) {
		if err := s.state.PushWake(ctx, job.ID); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("wake signal push failed")
		}
	}

	metrics.IncEnqueued(job.Platform)
	s.publishJobEvent(events.EventJobEnqueued, job, "")
	s.logger.Info().
		Int64("job_id", job.ID).
		Int64("content_id", content.ID).
		Str("platform", job.Platform).
		Time("scheduled_for", slot).
		Msg("job enqueued")
	return job, nil
}

// Cancel cancels a queued job. Jobs already claimed, published or in a
// terminal state are not affected; the return reports whether the
// cancellation took effect.
func (s *PublishService) Cancel(ctx context.Context, jobID int64) (bool, error) {
	cancelled, err := s.repo.CancelJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !cancelled {
		return false, nil
	}

	job, err := s.repo.GetPublishJob(ctx, jobID)
	if err == nil {
		s.publishJobEvent(events.EventJobCancelled, job, "")
	}
	s.logger.Info().Int64("job_id", jobID).Msg("job cancelled")
	return true, nil
}

// GetStatus assembles the full per-content view: jobs, published
// variants with remaining checkbacks, and the rollup when one exists.
func (s *PublishService) GetStatus(ctx context.Context, contentID int64) (*models.ContentStatus, error) {
	status, err := s.repo.GetContentStatus(ctx, contentID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrContentNotFound
	}
	return status, err
}

// GetJob returns a single job by id.
func (s *PublishService) GetJob(ctx context.Context, jobID int64) (*models.PublishJob, error) {
	return s.repo.GetPublishJob(ctx, jobID)
}

// ListJobs returns jobs in dispatch order for a status.
func (s *PublishService) ListJobs(ctx context.Context, status string, limit int) ([]models.PublishJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListJobsByStatus(ctx, status, limit)
}

// CancelTracking skips all pending checkbacks for a content item, e.g.
// when the post was taken down. Running and completed tasks are left
// alone. Returns the number of tasks skipped.
func (s *PublishService) CancelTracking(ctx context.Context, contentID int64, reason string) (int, error) {
	n, err := s.repo.SkipPendingCheckbacks(ctx, contentID, reason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("content_id", contentID).Int("skipped", n).Msg("tracking cancelled")
	}
	return n, nil
}

// RunStarvationMonitor periodically checks every active platform/account
// pair for an empty queue inside the max-gap boundary and raises
// warnings. The engine keeps running either way.
func (s *PublishService) RunStarvationMonitor(ctx context.Context) {
	interval := s.cfg.Planner.StarvationInterval
	if interval <= 0 {
		interval = time.Hour
	}
	s.logger.Info().Dur("interval", interval).Msg("starvation monitor started")
	defer s.logger.Info().Msg("starvation monitor stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkStarvation(ctx)
		}
	}
}

func (s *PublishService) checkStarvation(ctx context.Context) {
	starved, err := s.planner.CheckStarvation(ctx, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("starvation check failed")
		return
	}
	for _, st := range starved {
		if s.notifier != nil {
			s.notifier.NotifyStarvation(st.Platform, st.Account, st.LastSlot)
		}
		if s.bus != nil {
			_ = s.bus.PublishJSON(events.EventPlatformStarved, events.StarvationEventPayload{
				Platform: st.Platform,
				Account:  st.Account,
				LastSlot: st.LastSlot,
			})
		}
	}
}

func (s *PublishService) validate(req EnqueueRequest) error {
	if req.Platform == "" {
		return fmt.Errorf("%w: platform is required", ErrInvalidRequest)
	}
	if req.Account == "" {
		return fmt.Errorf("%w: account is required", ErrInvalidRequest)
	}
	if req.ContentID == 0 && (req.Title == "" || req.SourceRef == "") {
		return fmt.Errorf("%w: either content_id or title and source_ref are required", ErrInvalidRequest)
	}
	if req.Priority < 0 || req.Priority > models.MaxPriority {
		return fmt.Errorf("%w: priority must be in [0, %d]", ErrInvalidRequest, models.MaxPriority)
	}
	if len(req.CheckbackOffsets) > 0 {
		if !sort.IntsAreSorted(req.CheckbackOffsets) {
			return fmt.Errorf("%w: checkback offsets must be strictly increasing", ErrInvalidRequest)
		}
		for i, h := range req.CheckbackOffsets {
			if h <= 0 {
				return fmt.Errorf("%w: checkback offset %d must be positive", ErrInvalidRequest, h)
			}
			if i > 0 && req.CheckbackOffsets[i-1] == h {
				return fmt.Errorf("%w: duplicate checkback offset %d", ErrInvalidRequest, h)
			}
		}
	}
	return nil
}

func (s *PublishService) resolveContent(ctx context.Context, req EnqueueRequest) (*models.ContentItem, error) {
	if req.ContentID != 0 {
		content, err := s.repo.GetContentItem(ctx, req.ContentID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: content %d", ErrContentNotFound, req.ContentID)
		}
		if err != nil {
			return nil, fmt.Errorf("load content: %w", err)
		}
		return content, nil
	}

	content := &models.ContentItem{Title: req.Title, SourceRef: req.SourceRef}
	if err := s.repo.CreateContentItem(ctx, content); err != nil {
		return nil, fmt.Errorf("create content: %w", err)
	}
	return content, nil
}

func (s *PublishService) publishJobEvent(eventType string, job *models.PublishJob, lastError string) {
	if s.bus == nil {
		return
	}
	_ = s.bus.PublishJSON(eventType, events.JobEventPayload{
		JobID:        job.ID,
		ContentID:    job.ContentID,
		Platform:     job.Platform,
		Account:      job.Account,
		Status:       job.Status,
		Priority:     job.Priority,
		ScheduledFor: job.ScheduledFor,
		RetryCount:   job.RetryCount,
		LastError:    lastError,
	})
}
