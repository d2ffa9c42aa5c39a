package worker

import (
	"context"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/database"
	"clipcast/internal/domain"
	"clipcast/internal/events"
	"clipcast/internal/metrics"
	"clipcast/internal/models"
	"clipcast/internal/rollup"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CheckbackWorker claims due checkback tasks, fetches a metrics snapshot
// from the platform and recomputes the content rollup. Fetch failures
// reschedule the task with a fixed delay until the attempt budget runs
// out, then the task is skipped with whatever data the variant already has.
type CheckbackWorker struct {
	db       *database.DB
	fetcher  domain.MetricsFetcher
	cfg      config.CheckbackConfig
	bus      domain.EventPublisher
	notifier domain.Notifier
	logger   zerolog.Logger
}

func NewCheckbackWorker(
	db *database.DB,
	fetcher domain.MetricsFetcher,
	cfg config.CheckbackConfig,
	bus domain.EventPublisher,
	notifier domain.Notifier,
	logger *zerolog.Logger,
) *CheckbackWorker {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "checkback_worker").Logger()
	}
	return &CheckbackWorker{
		db:       db,
		fetcher:  fetcher,
		cfg:      cfg,
		bus:      bus,
		notifier: notifier,
		logger:   log,
	}
}

// Start polls for due tasks until ctx is done.
func (w *CheckbackWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("checkback worker started")
	defer w.logger.Info().Msg("checkback worker stopped")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain everything due before going back to sleep.
		for {
			task, err := w.db.ClaimDueCheckback(ctx, uuid.NewString(), time.Now())
			if err != nil {
				w.logger.Error().Err(err).Msg("claim due checkback")
				break
			}
			if task == nil {
				break
			}
			w.process(ctx, task)
		}
	}
}

func (w *CheckbackWorker) process(ctx context.Context, task *models.CheckbackTask) {
	log := w.logger.With().
		Int64("task_id", task.ID).
		Int64("job_id", task.JobID).
		Str("platform", task.Platform).
		Int("offset_hours", task.OffsetHours).
		Logger()

	job, err := w.db.GetPublishJob(ctx, task.JobID)
	if err != nil {
		w.retryOrSkip(ctx, task, err, log)
		return
	}
	if job.ExternalPostID == nil {
		// Should not happen: checkbacks are seeded at publish confirmation.
		w.skip(ctx, task, "job has no external post id", log)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	snap, err := w.fetcher.FetchMetrics(callCtx, task.Platform, *job.ExternalPostID)
	cancel()
	if err != nil {
		w.retryOrSkip(ctx, task, err, log)
		return
	}

	token := ""
	if task.ClaimToken != nil {
		token = *task.ClaimToken
	}
	if err := w.db.CompleteCheckback(ctx, task.ID, token, snap, time.Now()); err != nil {
		log.Error().Err(err).Msg("complete checkback")
		return
	}

	w.appendLedger(ctx, task, true)
	metrics.IncCheckbackCompleted(task.Platform)
	w.publishEvent(events.EventCheckbackCompleted, task, models.CheckbackCompleted)
	log.Info().
		Int64("views", snap.Views).
		Int64("engagement", snap.Engagement()).
		Msg("checkback completed")

	w.recomputeRollup(ctx, task.ContentID, log)
}

// recomputeRollup rebuilds the content rollup from all completed tasks.
// Recomputing from scratch keeps the snapshot idempotent regardless of
// how many times checkbacks for the content complete or re-complete.
func (w *CheckbackWorker) recomputeRollup(ctx context.Context, contentID int64, log zerolog.Logger) {
	completed, err := w.db.CompletedCheckbacksByContent(ctx, contentID)
	if err != nil {
		log.Error().Err(err).Msg("load completed checkbacks")
		return
	}

	snap := rollup.Aggregate(contentID, completed, time.Now())
	if snap == nil {
		return
	}
	if err := w.db.UpsertRollup(ctx, snap); err != nil {
		log.Error().Err(err).Msg("upsert rollup")
		return
	}

	metrics.IncRollupRecompute()
	if w.bus != nil {
		_ = w.bus.PublishJSON(events.EventRollupUpdated, snap)
	}
}

func (w *CheckbackWorker) retryOrSkip(ctx context.Context, task *models.CheckbackTask, cause error, log zerolog.Logger) {
	w.appendLedger(ctx, task, false)

	attempt := task.Attempts + 1
	if attempt >= w.cfg.MaxAttempts {
		w.skip(ctx, task, cause.Error(), log)
		return
	}

	token := ""
	if task.ClaimToken != nil {
		token = *task.ClaimToken
	}
	next := time.Now().Add(w.cfg.RetryDelay)
	if err := w.db.RescheduleCheckback(ctx, task.ID, token, next, cause.Error()); err != nil {
		log.Error().Err(err).Msg("reschedule checkback")
		return
	}
	log.Warn().Err(cause).Int("attempt", attempt).Time("next_try", next).Msg("metrics fetch failed, rescheduling")
}

func (w *CheckbackWorker) skip(ctx context.Context, task *models.CheckbackTask, reason string, log zerolog.Logger) {
	if err := w.db.SkipCheckback(ctx, task.ID, reason); err != nil {
		log.Error().Err(err).Msg("skip checkback")
		return
	}
	metrics.IncCheckbackSkipped(task.Platform)
	w.publishEvent(events.EventCheckbackSkipped, task, models.CheckbackSkipped)
	if w.notifier != nil {
		w.notifier.NotifyCheckbackSkipped(task)
	}
	log.Error().Str("reason", reason).Msg("checkback skipped")
}

func (w *CheckbackWorker) appendLedger(ctx context.Context, task *models.CheckbackTask, success bool) {
	entry := models.NewLedgerEntry(task.Account, models.ActionMetrics, task.Platform, task.ID, success, time.Now())
	if err := w.db.AppendLedger(ctx, &entry); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("append ledger")
	}
}

func (w *CheckbackWorker) publishEvent(eventType string, task *models.CheckbackTask, status string) {
	if w.bus == nil {
		return
	}
	_ = w.bus.PublishJSON(eventType, events.CheckbackEventPayload{
		TaskID:      task.ID,
		JobID:       task.JobID,
		ContentID:   task.ContentID,
		Platform:    task.Platform,
		OffsetHours: task.OffsetHours,
		Status:      status,
		Attempts:    task.Attempts,
	})
}
