package worker

import (
	"context"
	"time"

	"clipcast/internal/database"
	"clipcast/internal/domain"
	"clipcast/internal/export"
	"clipcast/internal/models"

	"github.com/rs/zerolog"
)

// Reporter periodically snapshots rollups into an Excel workbook and
// mirrors them to the Google Sheets dashboard when one is configured.
type Reporter struct {
	db       *database.DB
	exporter *export.Exporter
	sheets   domain.RollupWriter
	interval time.Duration
	logger   zerolog.Logger
}

func NewReporter(
	db *database.DB,
	exporter *export.Exporter,
	sheets domain.RollupWriter,
	interval time.Duration,
	logger *zerolog.Logger,
) *Reporter {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "reporter").Logger()
	}
	return &Reporter{
		db:       db,
		exporter: exporter,
		sheets:   sheets,
		interval: interval,
		logger:   log,
	}
}

// Start runs report cycles on the configured interval until ctx is done.
func (r *Reporter) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("reporter started")
	defer r.logger.Info().Msg("reporter stopped")

	ticker := time.NewTicker(r.interval)
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

// RunOnce produces one report cycle. Failures are logged, not fatal: the
// next tick gets a fresh attempt.
func (r *Reporter) RunOnce(ctx context.Context) {
	rollups, err := r.db.ListRollups(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("list rollups")
		return
	}
	if len(rollups) == 0 {
		r.logger.Debug().Msg("no rollups yet, skipping report cycle")
		return
	}

	if r.exporter != nil {
		jobs, err := r.recentJobs(ctx)
		if err != nil {
			r.logger.Error().Err(err).Msg("list jobs for report")
			jobs = nil
		}
		if _, err := r.exporter.WriteRollupReport(rollups, jobs); err != nil {
			r.logger.Error().Err(err).Msg("write rollup report")
		}
	}

	if r.sheets != nil {
		if err := r.sheets.UpdateRollupSheet(ctx, rollups); err != nil {
			r.logger.Error().Err(err).Msg("update rollup sheet")
		}
	}
}

func (r *Reporter) recentJobs(ctx context.Context) ([]models.PublishJob, error) {
	const perStatus = 200
	var out []models.PublishJob
	for _, status := range []string{models.JobPublished, models.JobAbandoned, models.JobQueued} {
		jobs, err := r.db.ListJobsByStatus(ctx, status, perStatus)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs...)
	}
	return out, nil
}
