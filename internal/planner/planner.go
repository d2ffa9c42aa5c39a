package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/domain"
	"clipcast/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrHorizonExceeded rejects slots beyond the scheduling horizon.
	// Validation error: surfaced to the caller, nothing is enqueued.
	ErrHorizonExceeded = errors.New("scheduled time exceeds scheduling horizon")

	// ErrNoEligibleSlot signals a planner invariant violation. The max-gap
	// backstop should always produce a slot; hitting this is a defect.
	ErrNoEligibleSlot = errors.New("no eligible slot")
)

// Request is one unscheduled content/platform pair handed to the planner.
type Request struct {
	ContentID        int64
	ContentCreatedAt time.Time
	Platform         string
	Account          string
	Priority         int
	NotBefore        time.Time
}

type slotKey struct {
	platform string
	account  string
}

// Planner assigns publish timestamps under the min-gap, max-gap and
// horizon constraints. Per-(platform, account) last-slot state is loaded
// lazily from the store and advanced in memory under a lock, so concurrent
// Enqueue calls never hand out slots closer than the minimum gap.
type Planner struct {
	cfg   config.PlannerConfig
	store LastSlotStore
	hints domain.BestTimeProvider

	mu    sync.Mutex
	slots map[slotKey]time.Time

	logger zerolog.Logger
}

// LastSlotStore is the slice of the repository the planner needs.
type LastSlotStore interface {
	LastScheduledFor(ctx context.Context, platform, account string) (*time.Time, error)
	CountQueuedAfter(ctx context.Context, platform, account string, after time.Time) (int, error)
	ActivePlatformAccounts(ctx context.Context) ([][2]string, error)
}

func New(cfg config.PlannerConfig, store LastSlotStore, hints domain.BestTimeProvider, logger *zerolog.Logger) *Planner {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "planner").Logger()
	}
	return &Planner{
		cfg:    cfg,
		store:  store,
		hints:  hints,
		slots:  make(map[slotKey]time.Time),
		logger: log,
	}
}

// NextSlot computes and reserves the publish slot for a single request.
// Candidate = max(last_slot + min_gap, now, not_before), aligned into the
// next preferred window when hints exist. The reserved slot becomes the
// new last-slot for the pair.
func (p *Planner) NextSlot(ctx context.Context, req Request, now time.Time) (time.Time, error) {
	key := slotKey{req.Platform, req.Account}

	p.mu.Lock()
	defer p.mu.Unlock()

	last, err := p.lastSlotLocked(ctx, key)
	if err != nil {
		return time.Time{}, err
	}

	candidate := now
	if !req.NotBefore.IsZero() && req.NotBefore.After(candidate) {
		candidate = req.NotBefore
	}
	if last != nil {
		if minNext := last.Add(p.cfg.MinGap); minNext.After(candidate) {
			candidate = minNext
		}
	}

	candidate = p.alignToHints(ctx, req, candidate, last)

	if candidate.Before(now) {
		// Must never schedule into the past.
		p.logger.Error().
			Str("platform", req.Platform).Str("account", req.Account).
			Time("candidate", candidate).
			Msg("planner produced a slot in the past")
		return time.Time{}, ErrNoEligibleSlot
	}
	if candidate.After(now.Add(p.cfg.Horizon())) {
		return time.Time{}, fmt.Errorf("%w: %s is beyond %d days", ErrHorizonExceeded, candidate.Format(time.RFC3339), p.cfg.HorizonDays)
	}

	p.slots[key] = candidate
	return candidate, nil
}

// PlanBatch assigns slots to a batch of requests. Eligibility order is
// priority descending, ties broken by oldest content first (FIFO
// fairness). Returns the requests with slots in assignment order.
func (p *Planner) PlanBatch(ctx context.Context, reqs []Request, now time.Time) ([]Planned, error) {
	ordered := append([]Request(nil), reqs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].ContentCreatedAt.Before(ordered[j].ContentCreatedAt)
	})

	planned := make([]Planned, 0, len(ordered))
	for _, req := range ordered {
		slot, err := p.NextSlot(ctx, req, now)
		if err != nil {
			return planned, err
		}
		planned = append(planned, Planned{Request: req, ScheduledFor: slot})
	}
	return planned, nil
}

// Planned pairs a request with its assigned slot.
type Planned struct {
	Request      Request
	ScheduledFor time.Time
}

// alignToHints moves the candidate into the next preferred time-of-day
// window, but never past the max-gap boundary: keeping the platform
// active wins over hitting a best-time window.
func (p *Planner) alignToHints(ctx context.Context, req Request, candidate time.Time, last *time.Time) time.Time {
	if p.hints == nil {
		return candidate
	}
	windows, err := p.hints.BestTimeHints(ctx, req.Platform, req.Account)
	if err != nil {
		p.logger.Warn().Err(err).Str("platform", req.Platform).Msg("best-time hints unavailable")
		return candidate
	}
	if len(windows) == 0 {
		return candidate
	}

	aligned := nextWindowStart(candidate, windows)

	if last != nil {
		boundary := last.Add(p.cfg.MaxGap)
		if aligned.After(boundary) && !candidate.After(boundary) {
			// Insert a slot before the max-gap boundary even though no
			// preferred window matches. When the candidate already sits
			// inside the final minute, the backstop must not move it
			// backwards.
			slot := boundary.Add(-time.Minute)
			if slot.Before(candidate) {
				slot = candidate
			}
			return slot
		}
	}
	return aligned
}

// nextWindowStart returns t if it already falls inside a window, else the
// start of the nearest upcoming window.
func nextWindowStart(t time.Time, windows []models.TimeWindow) time.Time {
	hour := t.Hour()
	for _, w := range windows {
		if w.Contains(hour) {
			return t
		}
	}

	best := time.Time{}
	for _, w := range windows {
		start := time.Date(t.Year(), t.Month(), t.Day(), w.StartHour, 0, 0, 0, t.Location())
		if !start.After(t) {
			start = start.AddDate(0, 0, 1)
		}
		if best.IsZero() || start.Before(best) {
			best = start
		}
	}
	if best.IsZero() {
		return t
	}
	return best
}

func (p *Planner) lastSlotLocked(ctx context.Context, key slotKey) (*time.Time, error) {
	if slot, ok := p.slots[key]; ok {
		return &slot, nil
	}
	last, err := p.store.LastScheduledFor(ctx, key.platform, key.account)
	if err != nil {
		return nil, fmt.Errorf("load last slot: %w", err)
	}
	if last != nil {
		p.slots[key] = *last
	}
	return last, nil
}

// Starved lists (platform, account, lastSlot) pairs whose queue is empty
// inside the max-gap boundary: nothing is scheduled to keep the platform
// active. The caller raises the warning; the planner does not stall.
type Starved struct {
	Platform string
	Account  string
	LastSlot time.Time
}

func (p *Planner) CheckStarvation(ctx context.Context, now time.Time) ([]Starved, error) {
	pairs, err := p.store.ActivePlatformAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}

	var starved []Starved
	for _, pair := range pairs {
		platform, account := pair[0], pair[1]
		last, err := p.store.LastScheduledFor(ctx, platform, account)
		if err != nil {
			return nil, fmt.Errorf("load last slot: %w", err)
		}
		if last == nil || last.Add(p.cfg.MaxGap).After(now) {
			continue
		}
		queued, err := p.store.CountQueuedAfter(ctx, platform, account, *last)
		if err != nil {
			return nil, fmt.Errorf("count queued: %w", err)
		}
		if queued == 0 {
			p.logger.Warn().
				Str("platform", platform).Str("account", account).
				Time("last_slot", *last).
				Msg("platform starving: no content queued inside max gap")
			starved = append(starved, Starved{Platform: platform, Account: account, LastSlot: *last})
		}
	}
	return starved, nil
}
