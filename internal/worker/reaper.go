package worker

import (
	"context"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/database"

	"github.com/rs/zerolog"
)

// ClaimReaper recovers rows stranded by crashed workers. A job claimed
// longer than the claim timeout ago has no live holder (in-flight publish
// calls are bounded by a much shorter timeout), so it is safe to recycle.
type ClaimReaper struct {
	db          *database.DB
	staleness   time.Duration
	maxAttempts int
	logger      zerolog.Logger
}

func NewClaimReaper(db *database.DB, queue config.QueueConfig, checkback config.CheckbackConfig, logger *zerolog.Logger) *ClaimReaper {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "claim_reaper").Logger()
	}
	return &ClaimReaper{
		db:          db,
		staleness:   queue.ClaimTimeout,
		maxAttempts: checkback.MaxAttempts,
		logger:      log,
	}
}

// Start sweeps once immediately, then once a minute until ctx is done.
// The startup sweep covers claims stranded by the previous process.
func (r *ClaimReaper) Start(ctx context.Context) {
	r.logger.Info().Dur("staleness", r.staleness).Msg("claim reaper started")
	defer r.logger.Info().Msg("claim reaper stopped")

	r.RunOnce(ctx)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep over stale job and checkback claims.
func (r *ClaimReaper) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.staleness)

	requeued, abandoned, err := r.db.ReapStaleJobClaims(ctx, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("reap stale job claims")
	} else if requeued > 0 || abandoned > 0 {
		r.logger.Warn().
			Int64("requeued", requeued).
			Int64("abandoned", abandoned).
			Msg("recovered stale job claims")
	}

	rescheduled, skipped, err := r.db.ReapStaleCheckbackClaims(ctx, cutoff, r.maxAttempts)
	if err != nil {
		r.logger.Error().Err(err).Msg("reap stale checkback claims")
	} else if rescheduled > 0 || skipped > 0 {
		r.logger.Warn().
			Int64("requeued", rescheduled).
			Int64("skipped", skipped).
			Msg("recovered stale checkback claims")
	}
}
