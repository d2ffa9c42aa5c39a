package limiter

import (
	"context"
	"fmt"
	"time"

	"clipcast/internal/config"

	"github.com/rs/zerolog"
)

// LedgerCounter is the slice of the repository the limiter reads.
// The limiter only ever counts; callers append the ledger entry after
// acting.
type LedgerCounter interface {
	CountActions(ctx context.Context, account, actionType, day string) (int, error)
	CountActionsHour(ctx context.Context, account, actionType, day string, hour int) (int, error)
}

// WindowCounter is the fast-path counter (Redis INCR+EXPIRE or the
// in-memory fallback) consulted before the ledger query.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter enforces per-account, per-action daily and hourly caps by
// counting action-ledger rows, with an optional windowed-counter fast
// path in front of the hourly check. It is advisory and fail-open: two
// near-simultaneous checks may both pass, which is an acceptable rare
// overshoot for soft safety caps.
type Limiter struct {
	limits  map[string]config.ActionLimit
	ledger  LedgerCounter
	counter WindowCounter
	now     func() time.Time
	logger  zerolog.Logger
}

func New(limits map[string]config.ActionLimit, ledger LedgerCounter, logger *zerolog.Logger) *Limiter {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "limiter").Logger()
	}
	return &Limiter{
		limits: limits,
		ledger: ledger,
		now:    time.Now,
		logger: log,
	}
}

// WithClock overrides the time source. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// WithCounter attaches the windowed fast-path counter. Counter errors are
// ignored; the ledger remains authoritative.
func (l *Limiter) WithCounter(counter WindowCounter) *Limiter {
	l.counter = counter
	return l
}

// Allow reports whether another action of the given type is permitted for
// the account right now. Uncapped actions (no limits entry, or zero caps)
// always pass.
func (l *Limiter) Allow(ctx context.Context, account, actionType string) (bool, error) {
	limit, ok := l.limits[actionType]
	if !ok || (limit.PerDay <= 0 && limit.PerHour <= 0) {
		return true, nil
	}

	now := l.now().UTC()
	day := now.Format("2006-01-02")

	if limit.PerDay > 0 {
		count, err := l.ledger.CountActions(ctx, account, actionType, day)
		if err != nil {
			return false, fmt.Errorf("count daily actions: %w", err)
		}
		if count >= limit.PerDay {
			l.logger.Debug().
				Str("account", account).Str("action", actionType).
				Int("count", count).Int("cap", limit.PerDay).
				Msg("daily cap reached")
			return false, nil
		}
	}

	if limit.PerHour > 0 {
		// Fast path: windowed attempt counter. It counts checks rather
		// than completed actions, so it only ever denies early, never
		// admits past the ledger.
		if l.counter != nil {
			key := fmt.Sprintf("%s:%s:%s:%02d", account, actionType, day, now.Hour())
			if attempts, err := l.counter.IncrWindow(ctx, key, time.Hour); err == nil && attempts > int64(limit.PerHour) {
				l.logger.Debug().
					Str("account", account).Str("action", actionType).
					Int64("attempts", attempts).Int("cap", limit.PerHour).
					Msg("hourly cap reached on fast-path counter")
				return false, nil
			}
		}

		count, err := l.ledger.CountActionsHour(ctx, account, actionType, day, now.Hour())
		if err != nil {
			return false, fmt.Errorf("count hourly actions: %w", err)
		}
		if count >= limit.PerHour {
			l.logger.Debug().
				Str("account", account).Str("action", actionType).
				Int("count", count).Int("cap", limit.PerHour).
				Msg("hourly cap reached")
			return false, nil
		}
	}

	return true, nil
}

// NextWindow returns when a denied action becomes worth retrying: the top
// of the next hour for hourly caps, midnight UTC for daily-only caps.
func (l *Limiter) NextWindow(actionType string) time.Time {
	now := l.now().UTC()
	limit, ok := l.limits[actionType]
	if ok && limit.PerHour > 0 {
		return now.Truncate(time.Hour).Add(time.Hour)
	}
	return now.Truncate(24 * time.Hour).Add(24 * time.Hour)
}
