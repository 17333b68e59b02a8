package schedule

import (
	"fmt"
	"iter"
	"time"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"
)

// Plan is the read-only state slot generation runs over.
type Plan struct {
	Rules    []models.AvailabilityRule
	Periods  []models.UnavailabilityPeriod
	Settings models.CalendarSettings
	// Booked holds the intervals of the mentor's active bookings.
	Booked []Interval
}

// Range is an inclusive span of calendar days. Only the date parts are used.
type Range struct {
	From time.Time
	To   time.Time
}

const maxRangeDays = 366

// ParseRange parses two YYYY-MM-DD dates.
func ParseRange(from, to string) (Range, error) {
	f, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return Range{}, fmt.Errorf("%w: invalid start_date %q", response.ErrValidation, from)
	}
	t, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return Range{}, fmt.Errorf("%w: invalid end_date %q", response.ErrValidation, to)
	}
	r := Range{From: f, To: t}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

func (r Range) Validate() error {
	from := civil(r.From, time.UTC)
	to := civil(r.To, time.UTC)
	if to.Before(from) {
		return fmt.Errorf("%w: end_date is before start_date", response.ErrValidation)
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return fmt.Errorf("%w: date range is longer than %d days", response.ErrValidation, maxRangeDays)
	}
	return nil
}

func (r Range) String() string {
	return r.From.Format(time.DateOnly) + ".." + r.To.Format(time.DateOnly)
}

// civil returns midnight of t's calendar date in loc.
func civil(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Candidates yields every policy-valid slot in the range, in ascending start
// order, marking slots that collide with an active booking as Booked.
// The sequence is finite and may be ranged over any number of times.
// Starts advance by duration plus buffer in elapsed time, so on DST change
// days the local wall-clock grid shifts by the change.
func Candidates(p Plan, r Range, now time.Time) (iter.Seq[models.Slot], error) {
	loc, err := p.Settings.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", response.ErrValidation, p.Settings.Timezone)
	}
	dur := p.Settings.SessionDuration()
	step := p.Settings.Step()
	if dur <= 0 || step <= 0 {
		return nil, fmt.Errorf("%w: session duration must be positive", response.ErrValidation)
	}

	earliest := now.Add(time.Duration(p.Settings.MinimumNoticeHours) * time.Hour)
	horizon := now.Add(time.Duration(p.Settings.AdvanceBookingDays) * 24 * time.Hour)

	var byDay [7][]models.AvailabilityRule
	for _, rule := range p.Rules {
		if rule.DayOfWeek.Valid() {
			byDay[rule.DayOfWeek] = append(byDay[rule.DayOfWeek], rule)
		}
	}
	var windows [7][]window
	for d := range byDay {
		windows[d] = mergeWindows(byDay[d])
	}

	blocked := make([]Interval, 0, len(p.Periods))
	for _, period := range p.Periods {
		blocked = append(blocked, Interval{Start: period.Start, End: period.End})
	}

	first := civil(r.From, loc)
	last := civil(r.To, loc)

	return func(yield func(models.Slot) bool) {
		unavailable := newSweep(blocked)
		booked := newSweep(p.Booked)

		for i := 0; ; i++ {
			day := time.Date(first.Year(), first.Month(), first.Day()+i, 0, 0, 0, 0, loc)
			if day.After(last) || !day.Before(horizon) {
				return
			}
			for _, w := range windows[models.WeekdayOf(day)] {
				windowEnd := w.end.On(day, loc)
				for start := w.start.On(day, loc); !start.Add(dur).After(windowEnd); start = start.Add(step) {
					c := Interval{Start: start, End: start.Add(dur)}
					if c.Start.Before(earliest) || !c.Start.Before(horizon) {
						continue
					}
					if unavailable.hits(c) {
						continue
					}
					status := models.SlotOpen
					if booked.hits(c) {
						status = models.SlotBooked
					}
					if !yield(models.Slot{Start: c.Start, End: c.End, Status: status}) {
						return
					}
				}
			}
		}
	}, nil
}

// OpenSlots yields only the bookable slots of Candidates.
func OpenSlots(p Plan, r Range, now time.Time) (iter.Seq[models.Slot], error) {
	all, err := Candidates(p, r, now)
	if err != nil {
		return nil, err
	}
	return func(yield func(models.Slot) bool) {
		for s := range all {
			if s.Status != models.SlotOpen {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}, nil
}

// IsOpen reports whether [start, end) is exactly one of the open slots the
// plan offers at now.
func IsOpen(p Plan, start, end, now time.Time) (bool, error) {
	loc, err := p.Settings.Location()
	if err != nil {
		return false, fmt.Errorf("%w: unknown timezone %q", response.ErrValidation, p.Settings.Timezone)
	}
	local := start.In(loc)
	open, err := OpenSlots(p, Range{From: local, To: local}, now)
	if err != nil {
		return false, err
	}
	for s := range open {
		if s.Start.Equal(start) {
			return s.End.Equal(end), nil
		}
		if s.Start.After(start) {
			break
		}
	}
	return false, nil
}

// Covered reports whether [start, end) still lies inside one of the plan's
// weekly windows and outside every unavailability period. Notice, horizon
// and slot alignment are not checked: an existing booking keeps the grid it
// was made on.
func Covered(p Plan, start, end time.Time) (bool, error) {
	loc, err := p.Settings.Location()
	if err != nil {
		return false, fmt.Errorf("%w: unknown timezone %q", response.ErrValidation, p.Settings.Timezone)
	}
	day := civil(start.In(loc), loc)

	var rules []models.AvailabilityRule
	for _, rule := range p.Rules {
		if rule.DayOfWeek == models.WeekdayOf(day) {
			rules = append(rules, rule)
		}
	}

	inside := false
	for _, w := range mergeWindows(rules) {
		if !start.Before(w.start.On(day, loc)) && !end.After(w.end.On(day, loc)) {
			inside = true
			break
		}
	}
	if !inside {
		return false, nil
	}

	for _, period := range p.Periods {
		if Overlaps(start, end, period.Start, period.End) {
			return false, nil
		}
	}
	return true, nil
}
