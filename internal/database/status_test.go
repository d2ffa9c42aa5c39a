package database

import (
	"context"
	"testing"
	"time"

	"clipcast/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetContentStatusProjection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	content := createTestContent(t, db)
	publishedAt := time.Now().Add(-2 * time.Hour)

	// One published variant with a partially completed cadence, one job
	// still queued.
	job := publishTestJob(t, db, content.ID, models.PlatformTikTok, publishedAt)
	_, err := db.SeedCheckbacks(ctx, job, []int{1, 6, 24}, publishedAt)
	require.NoError(t, err)

	task, err := db.ClaimDueCheckback(ctx, "tok", time.Now())
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, db.CompleteCheckback(ctx, task.ID, "tok", &models.MetricsSnapshot{Views: 100, Likes: 10}, time.Now()))

	createTestJob(t, db, content.ID, models.PlatformYouTube, 50, time.Now().Add(time.Hour))

	require.NoError(t, db.UpsertRollup(ctx, &models.RollupSnapshot{
		ContentID: content.ID, TotalViews: 100, TotalLikes: 10,
		BestPlatform: models.PlatformTikTok, PlatformsTracked: 1,
		CompletedCheckbacks: 1, ComputedAt: time.Now(),
	}))

	status, err := db.GetContentStatus(ctx, content.ID)
	require.NoError(t, err)

	assert.Equal(t, content.ID, status.Content.ID)
	assert.Len(t, status.Jobs, 2)
	assert.Len(t, status.Checkbacks, 3)

	require.Len(t, status.Variants, 1)
	v := status.Variants[0]
	assert.Equal(t, models.PlatformTikTok, v.Platform)
	assert.Equal(t, "ext-"+models.PlatformTikTok, v.ExternalPostID)
	assert.Equal(t, 1, v.CheckbacksDone)
	assert.Equal(t, 2, v.CheckbacksLeft)
	assert.False(t, v.TrackingComplete())

	require.NotNil(t, status.Rollup)
	assert.Equal(t, int64(100), status.Rollup.TotalViews)
}

func TestGetContentStatusUnknownContent(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetContentStatus(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertRollupLastWriteWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &models.RollupSnapshot{ContentID: 1, TotalViews: 10, BestPlatform: models.PlatformTikTok, ComputedAt: time.Now()}
	require.NoError(t, db.UpsertRollup(ctx, first))

	second := &models.RollupSnapshot{ContentID: 1, TotalViews: 250, BestPlatform: models.PlatformYouTube, ComputedAt: time.Now()}
	require.NoError(t, db.UpsertRollup(ctx, second))

	got, err := db.GetRollup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.TotalViews)
	assert.Equal(t, models.PlatformYouTube, got.BestPlatform)

	rollups, err := db.ListRollups(ctx)
	require.NoError(t, err)
	assert.Len(t, rollups, 1)
}
