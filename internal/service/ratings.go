package service

import (
	"context"
	"fmt"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/internal/rating"
)

// GetRatingSummary returns the mentor's rating summary as seen by viewerID,
// or nil when it is suppressed for that viewer. viewerID may be empty for
// anonymous callers.
func (s *Service) GetRatingSummary(ctx context.Context, mentorID, viewerID string) (*models.RatingSummary, error) {
	const op = "service.GetRatingSummary"

	stats, err := s.store.GetRatingStats(ctx, mentorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	stats.MentorID = mentorID

	return rating.ForViewer(stats, viewerID, s.opts.RatingDisplayThreshold), nil
}
