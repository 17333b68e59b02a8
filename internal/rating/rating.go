package rating

import (
	"fmt"
	"math"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"
)

// DefaultDisplayThreshold is the number of rated sessions a mentor needs
// before the summary is shown to anyone but the mentor.
const DefaultDisplayThreshold = 5

// Record folds one rating into the running stats.
func Record(stats models.RatingStats, stars int) (models.RatingStats, error) {
	if stars < models.MinStars || stars > models.MaxStars {
		return stats, fmt.Errorf("%w: rating must be between %d and %d", response.ErrValidation, models.MinStars, models.MaxStars)
	}
	stats.Total++
	stats.Sum += stars
	stats.Distribution[stars-1]++
	return stats, nil
}

// Summarize turns stats into the full summary, including how many more rated
// sessions are needed to reach threshold.
func Summarize(stats models.RatingStats, threshold int) models.RatingSummary {
	dist := make(map[int]int, models.MaxStars)
	for i, n := range stats.Distribution {
		dist[i+1] = n
	}
	var avg float64
	if stats.Total > 0 {
		avg = math.Round(float64(stats.Sum)/float64(stats.Total)*100) / 100
	}
	return models.RatingSummary{
		Average:      avg,
		Total:        stats.Total,
		Distribution: dist,
		MoreNeeded:   max(threshold-stats.Total, 0),
	}
}

// ForViewer applies the public display rule. The mentor always sees the real
// numbers; everyone else gets nil until the threshold is met.
func ForViewer(stats models.RatingStats, viewerID string, threshold int) *models.RatingSummary {
	s := Summarize(stats, threshold)
	if viewerID != "" && viewerID == stats.MentorID {
		return &s
	}
	if stats.Total < threshold {
		return nil
	}
	return &s
}
