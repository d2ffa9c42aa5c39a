package repository

import (
	"context"
	"sync/atomic"
	"time"

	"clipcast/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverStateRepository serves from the primary (Redis) until it errors,
// then falls back to the in-memory repository and probes the primary
// again after a cooldown.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

const recoveryProbeInterval = time.Minute

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) primaryUsable() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	if time.Since(last) > recoveryProbeInterval {
		// One probing call gets routed to the primary.
		r.lastCheck.Store(time.Now().UnixNano())
		return true
	}
	return false
}

func (r *FailoverStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStateRepository) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary state repository recovered")
	}
}

func (r *FailoverStateRepository) PushWake(ctx context.Context, jobID int64) error {
	if r.primaryUsable() {
		err := r.primary.PushWake(ctx, jobID)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.PushWake(ctx, jobID)
}

func (r *FailoverStateRepository) PopWake(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	if r.primaryUsable() {
		id, ok, err := r.primary.PopWake(ctx, timeout)
		if err == nil {
			r.markUp()
			return id, ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.PopWake(ctx, timeout)
}

func (r *FailoverStateRepository) PushDeadLetter(ctx context.Context, payload []byte) error {
	if r.primaryUsable() {
		err := r.primary.PushDeadLetter(ctx, payload)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.PushDeadLetter(ctx, payload)
}

func (r *FailoverStateRepository) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if r.primaryUsable() {
		count, err := r.primary.IncrWindow(ctx, key, window)
		if err == nil {
			r.markUp()
			return count, nil
		}
		r.markDown(err)
	}
	return r.fallback.IncrWindow(ctx, key, window)
}
