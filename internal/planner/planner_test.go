package planner

import (
	"context"
	"testing"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore is an in-memory LastSlotStore for planner tests.
type stubStore struct {
	lastSlots map[string]time.Time
	queued    map[string]int
	pairs     [][2]string
}

func newStubStore() *stubStore {
	return &stubStore{
		lastSlots: make(map[string]time.Time),
		queued:    make(map[string]int),
	}
}

func (s *stubStore) LastScheduledFor(_ context.Context, platform, account string) (*time.Time, error) {
	if slot, ok := s.lastSlots[platform+"|"+account]; ok {
		return &slot, nil
	}
	return nil, nil
}

func (s *stubStore) CountQueuedAfter(_ context.Context, platform, account string, _ time.Time) (int, error) {
	return s.queued[platform+"|"+account], nil
}

func (s *stubStore) ActivePlatformAccounts(_ context.Context) ([][2]string, error) {
	return s.pairs, nil
}

// stubHints returns a fixed set of preferred windows.
type stubHints struct {
	windows []models.TimeWindow
}

func (s *stubHints) BestTimeHints(_ context.Context, _, _ string) ([]models.TimeWindow, error) {
	return s.windows, nil
}

func testPlannerConfig() config.PlannerConfig {
	return config.PlannerConfig{
		MinGap:      2 * time.Hour,
		MaxGap:      24 * time.Hour,
		HorizonDays: 60,
	}
}

func TestNextSlotEnforcesMinGap(t *testing.T) {
	p := New(testPlannerConfig(), newStubStore(), nil, nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	req := Request{ContentID: 1, Platform: models.PlatformTikTok, Account: "main"}

	first, err := p.NextSlot(context.Background(), req, now)
	require.NoError(t, err)
	assert.Equal(t, now, first)

	second, err := p.NextSlot(context.Background(), req, now)
	require.NoError(t, err)
	assert.Equal(t, first.Add(2*time.Hour), second)
}

func TestNextSlotSeparatePairsIndependent(t *testing.T) {
	p := New(testPlannerConfig(), newStubStore(), nil, nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tiktok, err := p.NextSlot(ctx, Request{Platform: models.PlatformTikTok, Account: "main"}, now)
	require.NoError(t, err)
	youtube, err := p.NextSlot(ctx, Request{Platform: models.PlatformYouTube, Account: "main"}, now)
	require.NoError(t, err)
	other, err := p.NextSlot(ctx, Request{Platform: models.PlatformTikTok, Account: "backup"}, now)
	require.NoError(t, err)

	// Gaps only apply within a (platform, account) pair.
	assert.Equal(t, now, tiktok)
	assert.Equal(t, now, youtube)
	assert.Equal(t, now, other)
}

func TestNextSlotHonorsNotBefore(t *testing.T) {
	p := New(testPlannerConfig(), newStubStore(), nil, nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	notBefore := now.Add(48 * time.Hour)

	slot, err := p.NextSlot(context.Background(), Request{
		Platform: models.PlatformTikTok, Account: "main", NotBefore: notBefore,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, notBefore, slot)
}

func TestNextSlotLoadsPersistedLastSlot(t *testing.T) {
	store := newStubStore()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store.lastSlots[models.PlatformTikTok+"|main"] = now.Add(-time.Hour)

	p := New(testPlannerConfig(), store, nil, nil)
	slot, err := p.NextSlot(context.Background(), Request{
		Platform: models.PlatformTikTok, Account: "main",
	}, now)
	require.NoError(t, err)

	// last slot was 1h ago; min gap pushes the candidate 1h past now.
	assert.Equal(t, now.Add(time.Hour), slot)
}

func TestNextSlotHorizonExceeded(t *testing.T) {
	p := New(testPlannerConfig(), newStubStore(), nil, nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	_, err := p.NextSlot(context.Background(), Request{
		Platform:  models.PlatformTikTok,
		Account:   "main",
		NotBefore: now.Add(61 * 24 * time.Hour),
	}, now)
	assert.ErrorIs(t, err, ErrHorizonExceeded)
}

func TestNextSlotAlignsToPreferredWindow(t *testing.T) {
	hints := &stubHints{windows: []models.TimeWindow{{StartHour: 18, EndHour: 21}}}
	p := New(testPlannerConfig(), newStubStore(), hints, nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	slot, err := p.NextSlot(context.Background(), Request{
		Platform: models.PlatformTikTok, Account: "main",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC), slot)
}

func TestNextSlotInsideWindowStays(t *testing.T) {
	hints := &stubHints{windows: []models.TimeWindow{{StartHour: 9, EndHour: 12}}}
	p := New(testPlannerConfig(), newStubStore(), hints, nil)
	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	slot, err := p.NextSlot(context.Background(), Request{
		Platform: models.PlatformTikTok, Account: "main",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, now, slot)
}

func TestNextSlotMaxGapBeatsWindowAlignment(t *testing.T) {
	// The last slot is 23h old and the only preferred window would land
	// the candidate past the 24h max-gap boundary. The planner must
	// schedule before the boundary instead of waiting for the window.
	store := newStubStore()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	lastSlot := now.Add(-23 * time.Hour)
	store.lastSlots[models.PlatformTikTok+"|main"] = lastSlot

	hints := &stubHints{windows: []models.TimeWindow{{StartHour: 18, EndHour: 21}}}
	p := New(testPlannerConfig(), store, hints, nil)

	slot, err := p.NextSlot(context.Background(), Request{
		Platform: models.PlatformTikTok, Account: "main",
	}, now)
	require.NoError(t, err)

	boundary := lastSlot.Add(24 * time.Hour)
	assert.True(t, slot.Before(boundary), "slot %s must precede max-gap boundary %s", slot, boundary)
	assert.Equal(t, boundary.Add(-time.Minute), slot)
}

func TestNextSlotBackstopInsideFinalMinute(t *testing.T) {
	// The request arrives 30s before the max-gap boundary with a window
	// that does not match. The backstop slot must clamp to the candidate
	// instead of landing before it (and before now).
	store := newStubStore()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	lastSlot := now.Add(-24*time.Hour + 30*time.Second)
	store.lastSlots[models.PlatformTikTok+"|main"] = lastSlot

	hints := &stubHints{windows: []models.TimeWindow{{StartHour: 18, EndHour: 20}}}
	p := New(testPlannerConfig(), store, hints, nil)

	slot, err := p.NextSlot(context.Background(), Request{
		Platform: models.PlatformTikTok, Account: "main",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, now, slot)
	assert.False(t, slot.After(lastSlot.Add(24*time.Hour)), "slot must not exceed the max-gap boundary")
}

func TestPlanBatchOrdering(t *testing.T) {
	p := New(testPlannerConfig(), newStubStore(), nil, nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	reqs := []Request{
		{ContentID: 1, Priority: 30, ContentCreatedAt: now.Add(-3 * time.Hour), Platform: models.PlatformTikTok, Account: "main"},
		{ContentID: 2, Priority: 90, ContentCreatedAt: now.Add(-time.Hour), Platform: models.PlatformTikTok, Account: "main"},
		{ContentID: 3, Priority: 30, ContentCreatedAt: now.Add(-5 * time.Hour), Platform: models.PlatformTikTok, Account: "main"},
	}

	planned, err := p.PlanBatch(context.Background(), reqs, now)
	require.NoError(t, err)
	require.Len(t, planned, 3)

	// Highest priority first, then FIFO by content age.
	assert.Equal(t, int64(2), planned[0].Request.ContentID)
	assert.Equal(t, int64(3), planned[1].Request.ContentID)
	assert.Equal(t, int64(1), planned[2].Request.ContentID)

	assert.Equal(t, now, planned[0].ScheduledFor)
	assert.Equal(t, now.Add(2*time.Hour), planned[1].ScheduledFor)
	assert.Equal(t, now.Add(4*time.Hour), planned[2].ScheduledFor)
}

func TestCheckStarvation(t *testing.T) {
	store := newStubStore()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	// tiktok/main: last slot beyond max gap, nothing queued -> starving.
	// youtube/main: last slot beyond max gap but has queued work -> fine.
	// tiktok/backup: recent slot -> fine.
	store.pairs = [][2]string{
		{models.PlatformTikTok, "main"},
		{models.PlatformYouTube, "main"},
		{models.PlatformTikTok, "backup"},
	}
	store.lastSlots[models.PlatformTikTok+"|main"] = now.Add(-30 * time.Hour)
	store.lastSlots[models.PlatformYouTube+"|main"] = now.Add(-30 * time.Hour)
	store.lastSlots[models.PlatformTikTok+"|backup"] = now.Add(-time.Hour)
	store.queued[models.PlatformYouTube+"|main"] = 2

	p := New(testPlannerConfig(), store, nil, nil)
	starved, err := p.CheckStarvation(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, starved, 1)
	assert.Equal(t, models.PlatformTikTok, starved[0].Platform)
	assert.Equal(t, "main", starved[0].Account)
}
