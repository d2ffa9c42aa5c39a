package rollup

import (
	"testing"
	"time"

	"clipcast/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(platform, account string, offset int, snap models.MetricsSnapshot) models.CheckbackTask {
	return models.CheckbackTask{
		Platform:    platform,
		Account:     account,
		OffsetHours: offset,
		Status:      models.CheckbackCompleted,
		Snapshot:    &snap,
	}
}

func TestAggregateUsesLatestCheckbackPerVariant(t *testing.T) {
	now := time.Now()
	completed := []models.CheckbackTask{
		task(models.PlatformTikTok, "main", 1, models.MetricsSnapshot{Views: 100, Likes: 10}),
		task(models.PlatformTikTok, "main", 24, models.MetricsSnapshot{Views: 900, Likes: 80, Comments: 12}),
		task(models.PlatformYouTube, "main", 6, models.MetricsSnapshot{Views: 300, Likes: 25, Shares: 4}),
	}

	snap := Aggregate(7, completed, now)
	require.NotNil(t, snap)

	// tiktok counts only at its +24h reading; the +1h one is superseded.
	assert.Equal(t, int64(7), snap.ContentID)
	assert.Equal(t, int64(1200), snap.TotalViews)
	assert.Equal(t, int64(105), snap.TotalLikes)
	assert.Equal(t, int64(12), snap.TotalComments)
	assert.Equal(t, int64(4), snap.TotalShares)
	assert.Equal(t, 2, snap.PlatformsTracked)
	assert.Equal(t, 3, snap.CompletedCheckbacks)
	assert.Equal(t, now, snap.ComputedAt)
}

func TestAggregateBestPlatformByEngagement(t *testing.T) {
	completed := []models.CheckbackTask{
		// tiktok engagement 92, youtube 29.
		task(models.PlatformTikTok, "main", 24, models.MetricsSnapshot{Likes: 80, Comments: 12}),
		task(models.PlatformYouTube, "main", 24, models.MetricsSnapshot{Views: 99999, Likes: 25, Shares: 4}),
	}

	snap := Aggregate(1, completed, time.Now())
	assert.Equal(t, models.PlatformTikTok, snap.BestPlatform)
}

func TestAggregateBestPlatformTieBreaksLexicographically(t *testing.T) {
	completed := []models.CheckbackTask{
		task(models.PlatformYouTube, "main", 24, models.MetricsSnapshot{Likes: 50}),
		task(models.PlatformTikTok, "main", 24, models.MetricsSnapshot{Likes: 50}),
	}

	snap := Aggregate(1, completed, time.Now())
	assert.Equal(t, models.PlatformTikTok, snap.BestPlatform)
}

func TestAggregateIdempotent(t *testing.T) {
	now := time.Now()
	completed := []models.CheckbackTask{
		task(models.PlatformTikTok, "main", 1, models.MetricsSnapshot{Views: 100, Likes: 10}),
		task(models.PlatformTikTok, "main", 6, models.MetricsSnapshot{Views: 400, Likes: 35}),
	}

	first := Aggregate(1, completed, now)
	second := Aggregate(1, completed, now)
	assert.Equal(t, first, second)
}

func TestAggregateSkipsTasksWithoutSnapshot(t *testing.T) {
	completed := []models.CheckbackTask{
		{Platform: models.PlatformTikTok, Account: "main", OffsetHours: 24, Status: models.CheckbackCompleted},
		task(models.PlatformYouTube, "main", 6, models.MetricsSnapshot{Views: 10, Likes: 1}),
	}

	snap := Aggregate(1, completed, time.Now())
	assert.Equal(t, int64(10), snap.TotalViews)
	assert.Equal(t, 1, snap.PlatformsTracked)
	assert.Equal(t, models.PlatformYouTube, snap.BestPlatform)
}

func TestAggregateEmptyInput(t *testing.T) {
	snap := Aggregate(1, nil, time.Now())
	require.NotNil(t, snap)
	assert.Zero(t, snap.TotalViews)
	assert.Zero(t, snap.PlatformsTracked)
	assert.Empty(t, snap.BestPlatform)
}
