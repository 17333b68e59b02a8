package schedule

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share any instant.
// Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.End, o.Start, o.End)
}

func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Merge returns the union of intervals as a sorted list of disjoint intervals.
// Touching intervals are kept apart. Invalid intervals are dropped.
func Merge(in []Interval) []Interval {
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.Valid() {
			out = append(out, iv)
		}
	}
	slices.SortFunc(out, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	merged := out[:0]
	for _, iv := range out {
		if n := len(merged); n > 0 && iv.Start.Before(merged[n-1].End) {
			if iv.End.After(merged[n-1].End) {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// sweep answers overlap queries for candidates presented in ascending start order.
type sweep struct {
	ivs []Interval
	pos int
}

func newSweep(ivs []Interval) *sweep {
	return &sweep{ivs: Merge(ivs)}
}

func (s *sweep) hits(c Interval) bool {
	for s.pos < len(s.ivs) && !s.ivs[s.pos].End.After(c.Start) {
		s.pos++
	}
	return s.pos < len(s.ivs) && s.ivs[s.pos].Overlaps(c)
}

type window struct {
	start models.TimeOfDay
	end   models.TimeOfDay
}

// mergeWindows unions overlapping rule windows for a single day.
func mergeWindows(rules []models.AvailabilityRule) []window {
	ws := make([]window, 0, len(rules))
	for _, r := range rules {
		if r.StartTime < r.EndTime {
			ws = append(ws, window{start: r.StartTime, end: r.EndTime})
		}
	}
	slices.SortFunc(ws, func(a, b window) int { return cmp.Compare(a.start, b.start) })

	merged := ws[:0]
	for _, w := range ws {
		if n := len(merged); n > 0 && w.start < merged[n-1].end {
			merged[n-1].end = max(merged[n-1].end, w.end)
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// ValidateRules checks every rule on its own and rejects any two rules on the
// same weekday whose windows overlap.
func ValidateRules(rules []models.AvailabilityRule) error {
	sorted := slices.Clone(rules)
	for _, r := range sorted {
		if !r.DayOfWeek.Valid() {
			return fmt.Errorf("%w: day_of_week %d is out of range", response.ErrValidation, int(r.DayOfWeek))
		}
		if r.StartTime < 0 || r.EndTime > models.MinutesPerDay {
			return fmt.Errorf("%w: %s window %s-%s is outside the day", response.ErrValidation, r.DayOfWeek, r.StartTime, r.EndTime)
		}
		if r.StartTime >= r.EndTime {
			return fmt.Errorf("%w: %s window %s-%s must start before it ends", response.ErrValidation, r.DayOfWeek, r.StartTime, r.EndTime)
		}
	}

	slices.SortFunc(sorted, func(a, b models.AvailabilityRule) int {
		if c := cmp.Compare(a.DayOfWeek, b.DayOfWeek); c != 0 {
			return c
		}
		return cmp.Compare(a.StartTime, b.StartTime)
	})
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.DayOfWeek == cur.DayOfWeek && cur.StartTime < prev.EndTime && cur.EndTime > prev.StartTime {
			return fmt.Errorf("%w: %s windows %s-%s and %s-%s overlap", response.ErrValidation,
				cur.DayOfWeek, prev.StartTime, prev.EndTime, cur.StartTime, cur.EndTime)
		}
	}
	return nil
}

func ValidatePeriods(periods []models.UnavailabilityPeriod) error {
	for _, p := range periods {
		if !p.Start.Before(p.End) {
			return fmt.Errorf("%w: unavailability %s - %s must start before it ends", response.ErrValidation,
				p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
		}
	}
	return nil
}

const (
	maxSessionDurationMin = 24 * 60
	maxAdvanceBookingDays = 366
)

func ValidateSettings(s models.CalendarSettings) error {
	switch {
	case s.SessionDurationMin <= 0 || s.SessionDurationMin > maxSessionDurationMin:
		return fmt.Errorf("%w: session_duration_min must be between 1 and %d", response.ErrValidation, maxSessionDurationMin)
	case s.BufferTimeMin <= 0:
		return fmt.Errorf("%w: buffer_time_min must be positive", response.ErrValidation)
	case s.AdvanceBookingDays <= 0 || s.AdvanceBookingDays > maxAdvanceBookingDays:
		return fmt.Errorf("%w: advance_booking_days must be between 1 and %d", response.ErrValidation, maxAdvanceBookingDays)
	case s.MinimumNoticeHours <= 0:
		return fmt.Errorf("%w: minimum_notice_hours must be positive", response.ErrValidation)
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", response.ErrValidation, s.Timezone)
	}
	return nil
}

// ValidateAvailability runs every write-time check for a full availability save.
func ValidateAvailability(a models.Availability) error {
	if err := ValidateSettings(a.Settings); err != nil {
		return err
	}
	if err := ValidateRules(a.Rules); err != nil {
		return err
	}
	return ValidatePeriods(a.Periods)
}
