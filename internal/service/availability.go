package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"mentor-schedule-service/internal/cache"
	"mentor-schedule-service/internal/lock"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/internal/schedule"
	"mentor-schedule-service/internal/storage"
	"mentor-schedule-service/pkg/response"
	"mentor-schedule-service/pkg/sl"

	"github.com/google/uuid"
)

// GetAvailability returns what the mentor saved, with the default policy for
// mentors that never saved one.
func (s *Service) GetAvailability(ctx context.Context, mentorID string) (models.Availability, error) {
	const op = "service.GetAvailability"

	var a models.Availability
	err := s.store.WithinSnapshot(ctx, func(q storage.Queries) error {
		var err error
		a, _, err = q.GetAvailability(ctx, mentorID)
		return err
	})
	if err != nil {
		return models.Availability{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

// SetAvailability replaces the mentor's rules, time off and policy in one
// write. It is rejected with ErrConflict when an upcoming booking would no
// longer fall inside the new availability.
func (s *Service) SetAvailability(ctx context.Context, caller models.Caller, mentorID string, a models.Availability) error {
	const op = "service.SetAvailability"

	if caller.UserID != mentorID {
		return fmt.Errorf("%s: %w: only the mentor can change their availability", op, response.ErrForbidden)
	}

	a.Settings.MentorID = mentorID
	for i := range a.Rules {
		a.Rules[i].MentorID = mentorID
		if a.Rules[i].ID == "" {
			a.Rules[i].ID = uuid.NewString()
		}
	}
	for i := range a.Periods {
		a.Periods[i].MentorID = mentorID
		if a.Periods[i].ID == "" {
			a.Periods[i].ID = uuid.NewString()
		}
	}

	if err := schedule.ValidateAvailability(a); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	key := mentorLockKey(mentorID)
	release, err := lock.Acquire(ctx, s.locker, key, s.opts.LockTTL, s.opts.LockWait)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer s.unlock(key, release)

	now := s.now()
	plan := schedule.Plan{Rules: a.Rules, Periods: a.Periods, Settings: a.Settings}

	err = s.store.WithinTx(ctx, func(q storage.Queries) error {
		if err := q.LockMentor(ctx, mentorID); err != nil {
			return err
		}

		upcoming, err := q.ActiveBookings(ctx, mentorID, now, farFuture)
		if err != nil {
			return err
		}
		for _, b := range upcoming {
			if b.Status != models.BookingScheduled && b.Status != models.BookingConfirmed {
				continue
			}
			ok, err := schedule.Covered(plan, b.SlotStart, b.SlotEnd)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: booking %s at %s falls outside the new availability",
					response.ErrConflict, b.ID, b.SlotStart.Format(time.RFC3339))
			}
		}

		if err := q.ReplaceAvailability(ctx, mentorID, a.Rules, a.Settings); err != nil {
			return err
		}
		return q.ReplaceUnavailability(ctx, mentorID, a.Periods)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, mentorID)

	return nil
}

var farFuture = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// GetAvailableSlots lists the open slots of a mentor between two calendar
// dates (inclusive, in the mentor's timezone).
func (s *Service) GetAvailableSlots(ctx context.Context, mentorID string, r schedule.Range) (models.AvailableSlots, error) {
	const op = "service.GetAvailableSlots"

	if err := r.Validate(); err != nil {
		return models.AvailableSlots{}, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	log := s.log.With(slog.String("op", op), slog.String("mentor_id", mentorID))

	version, err := s.slots.Version(ctx, mentorID)
	cacheable := err == nil
	if err != nil {
		log.Warn("Slot cache unavailable", sl.Err(err))
	}
	key := cache.Key{MentorID: mentorID, Version: version, Range: r.String(), Minute: cache.MinuteOf(now)}

	if cacheable {
		if hit, ok, err := s.slots.Get(ctx, key); err != nil {
			log.Warn("Slot cache read failed", sl.Err(err))
		} else if ok {
			return hit, nil
		}
	}

	// The flight is shared, so one caller going away must not fail the rest.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key.String(), func() (any, error) {
		res, err := s.generate(flightCtx, mentorID, r, now)
		if err != nil {
			return nil, err
		}
		if cacheable {
			if err := s.slots.Set(flightCtx, key, res); err != nil {
				log.Warn("Slot cache write failed", sl.Err(err))
			}
		}
		return res, nil
	})
	if err != nil {
		return models.AvailableSlots{}, fmt.Errorf("%s: %w", op, err)
	}

	res := v.(models.AvailableSlots)
	res.Slots = slices.Clone(res.Slots)
	return res, nil
}

func (s *Service) generate(ctx context.Context, mentorID string, r schedule.Range, now time.Time) (models.AvailableSlots, error) {
	var plan schedule.Plan
	err := s.store.WithinSnapshot(ctx, func(q storage.Queries) error {
		a, found, err := q.GetAvailability(ctx, mentorID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: mentor %s has no availability", response.ErrNotFound, mentorID)
		}
		plan = schedule.Plan{Rules: a.Rules, Periods: a.Periods, Settings: a.Settings}

		loc, err := a.Settings.Location()
		if err != nil {
			return fmt.Errorf("%w: unknown timezone %q", response.ErrValidation, a.Settings.Timezone)
		}
		from := time.Date(r.From.Year(), r.From.Month(), r.From.Day(), 0, 0, 0, 0, loc)
		to := time.Date(r.To.Year(), r.To.Month(), r.To.Day()+1, 0, 0, 0, 0, loc)

		booked, err := q.ActiveBookings(ctx, mentorID, from, to)
		if err != nil {
			return err
		}
		for _, b := range booked {
			plan.Booked = append(plan.Booked, schedule.Interval{Start: b.SlotStart, End: b.SlotEnd})
		}
		return nil
	})
	if err != nil {
		return models.AvailableSlots{}, err
	}

	open, err := schedule.OpenSlots(plan, r, now)
	if err != nil {
		return models.AvailableSlots{}, err
	}

	out := models.AvailableSlots{Slots: []models.Slot{}, Timezone: plan.Settings.Timezone}
	for slot := range open {
		out.Slots = append(out.Slots, slot)
	}
	return out, nil
}
