package service

import (
	"context"
	"fmt"

	"mentor-schedule-service/internal/events"
	"mentor-schedule-service/internal/lifecycle"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/internal/rating"
	"mentor-schedule-service/internal/storage"
	"mentor-schedule-service/pkg/response"
)

// FinishSession marks a session finished by the caller. The mentor moves it
// to RequiresRating; the customer must rate it and completes it. The rating,
// the mentor's stats and the status change are written in one transaction.
func (s *Service) FinishSession(ctx context.Context, caller models.Caller, bookingID string, stars *int, notes *string) (models.Booking, error) {
	const op = "service.FinishSession"

	out, err := s.finish(ctx, caller, bookingID, func(role models.Role) (lifecycle.FinishRequest, error) {
		return lifecycle.FinishRequest{Actor: role, Stars: stars, Notes: notes, At: s.now()}, nil
	})
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// SubmitRating is the customer's rating of a Confirmed or RequiresRating
// session. The mentor gets ErrForbidden.
func (s *Service) SubmitRating(ctx context.Context, caller models.Caller, bookingID string, stars int, notes *string) (models.Booking, error) {
	const op = "service.SubmitRating"

	if err := lifecycle.ValidateStars(stars); err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	out, err := s.finish(ctx, caller, bookingID, func(role models.Role) (lifecycle.FinishRequest, error) {
		if role != models.RoleCustomer {
			return lifecycle.FinishRequest{}, fmt.Errorf("%w: only the customer rates a session", response.ErrForbidden)
		}
		return lifecycle.FinishRequest{Actor: role, Stars: &stars, Notes: notes, At: s.now()}, nil
	})
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (s *Service) finish(ctx context.Context, caller models.Caller, bookingID string, request func(models.Role) (lifecycle.FinishRequest, error)) (models.Booking, error) {
	out, _, err := s.mutate(ctx, bookingID, func(q storage.Queries, b models.Booking) (models.Booking, bool, error) {
		role, err := participant(caller, b)
		if err != nil {
			return b, false, err
		}
		req, err := request(role)
		if err != nil {
			return b, false, err
		}
		change, err := lifecycle.Finish(b, req)
		if err != nil {
			return b, false, err
		}
		if change.Rating != nil {
			if err := s.recordRating(ctx, q, *change.Rating); err != nil {
				return b, false, err
			}
		}
		return change.Booking, true, nil
	})
	if err != nil {
		return models.Booking{}, err
	}

	if out.Status == models.BookingCompleted {
		s.publish(ctx, events.SessionCompleted, out)
	}

	return out, nil
}

// recordRating folds r into the mentor's stats, read and rewritten under the
// mentor lock.
func (s *Service) recordRating(ctx context.Context, q storage.Queries, r models.Rating) error {
	if err := q.LockMentor(ctx, r.MentorID); err != nil {
		return err
	}
	if err := q.InsertRating(ctx, r); err != nil {
		return err
	}
	stats, err := q.GetRatingStats(ctx, r.MentorID)
	if err != nil {
		return err
	}
	stats, err = rating.Record(stats, r.Stars)
	if err != nil {
		return err
	}
	return q.SaveRatingStats(ctx, stats)
}

// FlagSession raises the caller's flag on a booking. Flagging twice is a no-op.
func (s *Service) FlagSession(ctx context.Context, caller models.Caller, bookingID string) (models.Booking, error) {
	const op = "service.FlagSession"

	out, changed, err := s.mutate(ctx, bookingID, func(_ storage.Queries, b models.Booking) (models.Booking, bool, error) {
		role, err := participant(caller, b)
		if err != nil {
			return b, false, err
		}
		return lifecycle.Flag(b, role, s.now())
	})
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	if changed {
		s.publish(ctx, events.SessionFlagged, out)
	}

	return out, nil
}

// AttachMeetingURL stores the provisioned room of a confirmed session.
// Attaching the same URL again is a no-op.
func (s *Service) AttachMeetingURL(ctx context.Context, bookingID, url string) (models.Booking, error) {
	const op = "service.AttachMeetingURL"

	out, _, err := s.mutate(ctx, bookingID, func(_ storage.Queries, b models.Booking) (models.Booking, bool, error) {
		if b.MeetingURL != nil && *b.MeetingURL == url {
			return b, false, nil
		}
		next, err := lifecycle.AttachMeeting(b, url, s.now())
		return next, true, err
	})
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
