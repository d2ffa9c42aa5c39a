package database

import (
	"context"
	"errors"
	"fmt"

	"clipcast/internal/models"
)

// GetContentStatus assembles the full tracking projection for a content
// item: jobs, per-platform variants, checkback tasks and the current
// rollup. Read-only; never mutates state.
func (db *DB) GetContentStatus(ctx context.Context, contentID int64) (*models.ContentStatus, error) {
	content, err := db.GetContentItem(ctx, contentID)
	if err != nil {
		return nil, err
	}

	jobs, err := db.ListJobsByContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs for status: %w", err)
	}

	checkbacks, err := db.ListCheckbacksByContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkbacks for status: %w", err)
	}

	rollup, err := db.GetRollup(ctx, contentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load rollup for status: %w", err)
	}

	status := &models.ContentStatus{
		Content:    content,
		Jobs:       jobs,
		Checkbacks: checkbacks,
		Rollup:     rollup,
	}
	status.Variants = buildVariants(jobs, checkbacks)
	return status, nil
}

// buildVariants materializes one PlatformVariant per published job, with
// checkback completion counters.
func buildVariants(jobs []models.PublishJob, checkbacks []models.CheckbackTask) []models.PlatformVariant {
	type counts struct{ done, left int }
	byJob := make(map[int64]*counts)
	for _, t := range checkbacks {
		c, ok := byJob[t.JobID]
		if !ok {
			c = &counts{}
			byJob[t.JobID] = c
		}
		switch t.Status {
		case models.CheckbackCompleted, models.CheckbackSkipped:
			c.done++
		default:
			c.left++
		}
	}

	var variants []models.PlatformVariant
	for _, j := range jobs {
		if j.Status != models.JobPublished {
			continue
		}
		v := models.PlatformVariant{
			ContentID:   j.ContentID,
			Platform:    j.Platform,
			Account:     j.Account,
			PublishedAt: j.PublishedAt,
		}
		if j.ExternalPostID != nil {
			v.ExternalPostID = *j.ExternalPostID
		}
		if j.ExternalPostURL != nil {
			v.ExternalPostURL = *j.ExternalPostURL
		}
		if c, ok := byJob[j.ID]; ok {
			v.CheckbacksDone = c.done
			v.CheckbacksLeft = c.left
		}
		variants = append(variants, v)
	}
	return variants
}
