package rollup

import (
	"time"

	"clipcast/internal/models"
)

// Aggregate folds completed checkback tasks into the current rollup
// snapshot for a content item. Pure function of its inputs: recomputing
// from the same task set yields an identical snapshot (modulo ComputedAt),
// so concurrent recompute races are harmless.
//
// Totals sum the latest completed checkback of each platform/account
// variant; BestPlatform is the platform with the highest engagement
// (likes+comments+shares) at its latest checkback.
func Aggregate(contentID int64, completed []models.CheckbackTask, computedAt time.Time) *models.RollupSnapshot {
	type variantKey struct{ platform, account string }

	latest := make(map[variantKey]models.CheckbackTask)
	for _, t := range completed {
		if t.Snapshot == nil {
			continue
		}
		key := variantKey{t.Platform, t.Account}
		cur, ok := latest[key]
		if !ok || t.OffsetHours > cur.OffsetHours {
			latest[key] = t
		}
	}

	snap := &models.RollupSnapshot{
		ContentID:           contentID,
		CompletedCheckbacks: len(completed),
		ComputedAt:          computedAt,
	}

	bestEngagement := int64(-1)
	platforms := make(map[string]struct{})
	for key, t := range latest {
		platforms[key.platform] = struct{}{}
		s := t.Snapshot
		snap.TotalViews += s.Views
		snap.TotalLikes += s.Likes
		snap.TotalComments += s.Comments
		snap.TotalShares += s.Shares
		snap.TotalSaves += s.Saves

		engagement := s.Engagement()
		if engagement > bestEngagement ||
			(engagement == bestEngagement && key.platform < snap.BestPlatform) {
			bestEngagement = engagement
			snap.BestPlatform = key.platform
		}
	}
	snap.PlatformsTracked = len(platforms)

	return snap
}
