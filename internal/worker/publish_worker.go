package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/database"
	"clipcast/internal/domain"
	"clipcast/internal/events"
	"clipcast/internal/limiter"
	"clipcast/internal/metrics"
	"clipcast/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PublishWorker drains the publish queue: it claims due jobs exclusively,
// consults the rate limiter, invokes the platform publisher and drives
// the job state machine. Multiple workers run the same loop; exclusion is
// enforced by the store's atomic claim, not by coordination between them.
type PublishWorker struct {
	db        *database.DB
	publisher domain.Publisher
	state     domain.StateRepository
	limiter   *limiter.Limiter
	retry     RetryPolicy
	cfg       config.QueueConfig
	offsets   []int
	bus       domain.EventPublisher
	notifier  domain.Notifier
	logger    zerolog.Logger
}

func NewPublishWorker(
	db *database.DB,
	publisher domain.Publisher,
	state domain.StateRepository,
	lim *limiter.Limiter,
	cfg config.QueueConfig,
	checkbackOffsets []int,
	bus domain.EventPublisher,
	notifier domain.Notifier,
	logger *zerolog.Logger,
) *PublishWorker {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "publish_worker").Logger()
	}
	return &PublishWorker{
		db:        db,
		publisher: publisher,
		state:     state,
		limiter:   lim,
		retry:     PublishRetryPolicy(cfg),
		cfg:       cfg,
		offsets:   checkbackOffsets,
		bus:       bus,
		notifier:  notifier,
		logger:    log,
	}
}

// Start runs the dispatch loop until ctx is done. Blocking points are the
// wake-signal wait and the external publish call; everything else is
// short store operations.
func (w *PublishWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("publish worker started")
	defer w.logger.Info().Msg("publish worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Wake-signal fast path: enqueues of already-due jobs push the id.
		// The blocking wait doubles as the idle pacing for the DB poll.
		if id, ok := w.tryWake(ctx); ok {
			if job := w.claimByID(ctx, id); job != nil {
				w.process(ctx, job)
			}
			continue
		}

		job, err := w.db.ClaimNextJob(ctx, uuid.NewString(), time.Now())
		if err != nil {
			w.logger.Error().Err(err).Msg("claim next job")
			continue
		}
		if job == nil {
			metrics.IncClaimMiss()
			continue
		}
		w.process(ctx, job)
	}
}

func (w *PublishWorker) tryWake(ctx context.Context) (int64, bool) {
	if w.state == nil {
		time.Sleep(w.cfg.PollInterval)
		return 0, false
	}
	id, ok, err := w.state.PopWake(ctx, w.cfg.PollInterval)
	if err != nil {
		w.logger.Warn().Err(err).Msg("wake signal wait failed, falling back to polling")
		time.Sleep(w.cfg.PollInterval)
		return 0, false
	}
	return id, ok
}

func (w *PublishWorker) claimByID(ctx context.Context, id int64) *models.PublishJob {
	job, err := w.db.ClaimJob(ctx, id, uuid.NewString(), time.Now())
	if errors.Is(err, database.ErrAlreadyClaimed) {
		// Another worker won the race or the job was cancelled; both fine.
		return nil
	}
	if err != nil {
		w.logger.Error().Err(err).Int64("job_id", id).Msg("claim signaled job")
		return nil
	}
	return job
}

func (w *PublishWorker) process(ctx context.Context, job *models.PublishJob) {
	log := w.logger.With().
		Int64("job_id", job.ID).
		Str("platform", job.Platform).
		Str("account", job.Account).
		Logger()

	w.appendLedger(ctx, job, models.ActionClaim, true, "")

	allowed, err := w.limiter.Allow(ctx, job.Account, models.ActionPublish)
	if err != nil {
		log.Error().Err(err).Msg("rate limiter check failed")
		// Fail open: caps are advisory safety limits.
		allowed = true
	}
	if !allowed {
		w.defer_(ctx, job, log)
		return
	}

	token := ""
	if job.ClaimToken != nil {
		token = *job.ClaimToken
	}
	if err := w.db.MarkJobPublishing(ctx, job.ID, token); err != nil {
		// Losing the claim here means another worker holds the row; that
		// is the invariant the claim exists to protect. Do not publish.
		log.Error().Err(err).Msg("lost claim before publishing")
		return
	}

	content, err := w.db.GetContentItem(ctx, job.ContentID)
	if err != nil {
		w.retryOrAbandon(ctx, job, fmt.Errorf("load content: %w", err), log)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.PublishTimeout)
	result, err := w.publisher.Publish(callCtx, job.Platform, job.Account, content.SourceRef)
	cancel()
	if err != nil {
		w.retryOrAbandon(ctx, job, err, log)
		return
	}

	publishedAt := time.Now()
	if err := w.db.MarkJobPublished(ctx, job.ID, token, result.ExternalPostID, result.ExternalPostURL, publishedAt); err != nil {
		log.Error().Err(err).Msg("mark published")
		return
	}

	// Checkbacks are seeded synchronously with the publish confirmation;
	// a variant must never exist published but untracked.
	offsets := w.offsets
	if len(job.CheckbackOffsets) > 0 {
		offsets = job.CheckbackOffsets
	}
	if _, err := w.db.SeedCheckbacks(ctx, job, offsets, publishedAt); err != nil {
		log.Error().Err(err).Msg("seed checkbacks")
	}

	w.appendLedger(ctx, job, models.ActionPublish, true, "")
	metrics.IncPublished(job.Platform)
	w.publishEvent(events.EventJobPublished, job, models.JobPublished, "")
	log.Info().Str("external_post_id", result.ExternalPostID).Msg("job published")
}

// defer_ returns an over-quota job to the queue, pushed to the next quota
// window. Not a failure: the retry budget is untouched.
func (w *PublishWorker) defer_(ctx context.Context, job *models.PublishJob, log zerolog.Logger) {
	next := w.limiter.NextWindow(models.ActionPublish)
	if err := w.db.RequeueJob(ctx, job.ID, next, "rate limit deferral", false); err != nil {
		log.Error().Err(err).Msg("defer job")
		return
	}
	w.appendLedger(ctx, job, models.ActionDefer, true, "rate limit deferral")
	metrics.IncDeferred(job.Platform)
	w.publishEvent(events.EventJobDeferred, job, models.JobQueued, "rate limit deferral")
	log.Info().Time("next_window", next).Msg("job deferred by rate limiter")
}

func (w *PublishWorker) retryOrAbandon(ctx context.Context, job *models.PublishJob, cause error, log zerolog.Logger) {
	w.appendLedger(ctx, job, models.ActionPublish, false, cause.Error())

	attempt := job.RetryCount + 1
	if attempt >= job.MaxRetries {
		if err := w.db.AbandonJob(ctx, job.ID, cause.Error()); err != nil {
			log.Error().Err(err).Msg("abandon job")
			return
		}
		w.pushDeadLetter(ctx, job, cause)
		metrics.IncAbandoned(job.Platform)
		w.publishEvent(events.EventJobAbandoned, job, models.JobAbandoned, cause.Error())
		if w.notifier != nil {
			w.notifier.NotifyJobAbandoned(job)
		}
		log.Error().Err(cause).Int("attempts", attempt).Msg("job abandoned")
		return
	}

	next := time.Now().Add(w.retry.NextDelay(attempt))
	if err := w.db.RequeueJob(ctx, job.ID, next, cause.Error(), true); err != nil {
		log.Error().Err(err).Msg("requeue job")
		return
	}
	log.Warn().Err(cause).Int("attempt", attempt).Time("next_try", next).Msg("publish failed, retrying")
}

func (w *PublishWorker) pushDeadLetter(ctx context.Context, job *models.PublishJob, cause error) {
	if w.state == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"job_id":     job.ID,
		"content_id": job.ContentID,
		"platform":   job.Platform,
		"account":    job.Account,
		"error":      cause.Error(),
		"abandoned":  time.Now(),
	})
	if err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("encode dead letter")
		return
	}
	if err := w.state.PushDeadLetter(ctx, payload); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("push dead letter")
	}
}

// appendLedger records a queue phase in the audit ledger. Only rows typed
// ActionPublish count against a publish cap; claim and defer rows use
// their own types so bookkeeping never consumes quota.
func (w *PublishWorker) appendLedger(ctx context.Context, job *models.PublishJob, actionType string, success bool, detail string) {
	entry := models.NewLedgerEntry(job.Account, actionType, job.Platform, job.ID, success, time.Now())
	entry.Detail = detail
	if err := w.db.AppendLedger(ctx, &entry); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("append ledger")
	}
}

func (w *PublishWorker) publishEvent(eventType string, job *models.PublishJob, status, lastError string) {
	if w.bus == nil {
		return
	}
	_ = w.bus.PublishJSON(eventType, events.JobEventPayload{
		JobID:        job.ID,
		ContentID:    job.ContentID,
		Platform:     job.Platform,
		Account:      job.Account,
		Status:       status,
		Priority:     job.Priority,
		ScheduledFor: job.ScheduledFor,
		RetryCount:   job.RetryCount,
		LastError:    lastError,
	})
}
