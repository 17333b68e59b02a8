package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mentor-schedule-service/internal/calendar"
	"mentor-schedule-service/internal/events"
	"mentor-schedule-service/internal/lifecycle"
	"mentor-schedule-service/internal/lock"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/internal/schedule"
	"mentor-schedule-service/internal/storage"
	"mentor-schedule-service/pkg/response"

	"github.com/google/uuid"
)

// reserveMargin widens the booking lookup around a requested slot so the
// buffer rule of neighbouring slots can be checked.
const reserveMargin = 24 * time.Hour

// ReserveSlot books [start, end) with the mentor for the caller. The slot is
// re-validated against the mentor's current availability while the mentor's
// calendar is locked, so of concurrent attempts on one slot exactly one wins
// and the others get ErrConflict.
func (s *Service) ReserveSlot(ctx context.Context, caller models.Caller, mentorID string, start, end time.Time) (models.Booking, error) {
	const op = "service.ReserveSlot"

	log := s.log.With(
		slog.String("op", op),
		slog.String("mentor_id", mentorID),
		slog.String("customer_id", caller.UserID),
	)

	if caller.UserID == "" {
		return models.Booking{}, fmt.Errorf("%s: %w", op, response.ErrUnauthorized)
	}
	if mentorID == "" {
		return models.Booking{}, fmt.Errorf("%s: %w: mentor_id is required", op, response.ErrValidation)
	}
	if caller.UserID == mentorID {
		return models.Booking{}, fmt.Errorf("%s: %w: mentors cannot book themselves", op, response.ErrValidation)
	}
	if !start.Before(end) {
		return models.Booking{}, fmt.Errorf("%s: %w: slot_start must be before slot_end", op, response.ErrValidation)
	}
	start, end = start.UTC(), end.UTC()

	key := mentorLockKey(mentorID)
	release, err := lock.Acquire(ctx, s.locker, key, s.opts.LockTTL, s.opts.LockWait)
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}
	defer s.unlock(key, release)

	now := s.now()
	b := models.Booking{
		ID:         uuid.NewString(),
		MentorID:   mentorID,
		CustomerID: caller.UserID,
		SlotStart:  start,
		SlotEnd:    end,
		Status:     models.BookingScheduled,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.store.WithinTx(ctx, func(q storage.Queries) error {
		if err := q.LockMentor(ctx, mentorID); err != nil {
			return err
		}

		a, found, err := q.GetAvailability(ctx, mentorID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: mentor %s has no availability", response.ErrNotFound, mentorID)
		}

		booked, err := q.ActiveBookings(ctx, mentorID, start.Add(-reserveMargin), end.Add(reserveMargin))
		if err != nil {
			return err
		}

		plan := schedule.Plan{Rules: a.Rules, Periods: a.Periods, Settings: a.Settings}
		for _, other := range booked {
			if schedule.Overlaps(start, end, other.SlotStart, other.SlotEnd) {
				return fmt.Errorf("%w: slot %s is already booked", response.ErrConflict, start.Format(time.RFC3339))
			}
			plan.Booked = append(plan.Booked, schedule.Interval{Start: other.SlotStart, End: other.SlotEnd})
		}

		open, err := schedule.IsOpen(plan, start, end, now)
		if err != nil {
			return err
		}
		if !open {
			return fmt.Errorf("%w: slot %s is not offered by the mentor", response.ErrConflict, start.Format(time.RFC3339))
		}

		return q.InsertBooking(ctx, b)
	})
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("Slot reserved", slog.String("booking_id", b.ID), slog.Time("slot_start", start))

	s.invalidate(ctx, mentorID)
	s.publish(ctx, events.SessionBooked, b)

	return b, nil
}

// GetBooking returns a booking visible to one of its participants.
func (s *Service) GetBooking(ctx context.Context, caller models.Caller, bookingID string) (models.Booking, error) {
	const op = "service.GetBooking"

	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := participant(caller, b); err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

// ConfirmPayment verifies the payment intent with the processor and moves
// the booking from Scheduled to Confirmed. A processor failure leaves the
// booking untouched.
func (s *Service) ConfirmPayment(ctx context.Context, caller models.Caller, bookingID, intentID string) (models.Booking, error) {
	const op = "service.ConfirmPayment"

	if intentID == "" {
		return models.Booking{}, fmt.Errorf("%s: %w: payment_intent_id is required", op, response.ErrValidation)
	}

	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}
	role, err := participant(caller, b)
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}
	if role != models.RoleCustomer {
		return models.Booking{}, fmt.Errorf("%s: %w: only the customer pays for a session", op, response.ErrForbidden)
	}
	if b.Status != models.BookingScheduled {
		return models.Booking{}, fmt.Errorf("%s: %w: cannot confirm a %s session", op, response.ErrInvalidState, b.Status)
	}

	if _, err := s.payments.VerifyIntent(ctx, intentID, bookingID); err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	out, _, err := s.mutate(ctx, bookingID, func(_ storage.Queries, b models.Booking) (models.Booking, bool, error) {
		next, err := lifecycle.Confirm(b, intentID, s.now())
		return next, true, err
	})
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, events.SessionConfirmed, out)

	return out, nil
}

// CancelBooking releases the slot of a Scheduled or Confirmed session.
func (s *Service) CancelBooking(ctx context.Context, caller models.Caller, bookingID string) (models.Booking, error) {
	const op = "service.CancelBooking"

	out, _, err := s.mutate(ctx, bookingID, func(_ storage.Queries, b models.Booking) (models.Booking, bool, error) {
		if _, err := participant(caller, b); err != nil {
			return b, false, err
		}
		next, err := lifecycle.Cancel(b, s.now())
		return next, true, err
	})
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, out.MentorID)
	s.publish(ctx, events.SessionCancelled, out)

	return out, nil
}

// CalendarLinks builds the "add to calendar" links of a booking.
func (s *Service) CalendarLinks(ctx context.Context, caller models.Caller, bookingID string) (calendar.Links, error) {
	const op = "service.CalendarLinks"

	b, err := s.GetBooking(ctx, caller, bookingID)
	if err != nil {
		return calendar.Links{}, fmt.Errorf("%s: %w", op, err)
	}
	if b.Status == models.BookingCancelled {
		return calendar.Links{}, fmt.Errorf("%s: %w: session was cancelled", op, response.ErrInvalidState)
	}

	return calendar.LinksFor(b, s.now()), nil
}

// GetSessions splits the caller's bookings in the given role into current
// and past sessions. Cancelled bookings appear in neither list.
func (s *Service) GetSessions(ctx context.Context, caller models.Caller, role models.Role) (models.Sessions, error) {
	const op = "service.GetSessions"

	if caller.UserID == "" {
		return models.Sessions{}, fmt.Errorf("%s: %w", op, response.ErrUnauthorized)
	}
	if !role.Valid() {
		return models.Sessions{}, fmt.Errorf("%s: %w: unknown role %q", op, response.ErrValidation, role)
	}

	all, err := s.store.ListBookings(ctx, caller.UserID, role)
	if err != nil {
		return models.Sessions{}, fmt.Errorf("%s: %w", op, err)
	}

	out := models.Sessions{Current: []models.Booking{}, History: []models.Booking{}}
	for _, b := range all {
		switch {
		case b.Status.Current():
			out.Current = append(out.Current, b)
		case b.Status == models.BookingCompleted:
			out.History = append(out.History, b)
		}
	}

	return out, nil
}
