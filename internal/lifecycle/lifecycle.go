// Package lifecycle holds the session state machine. Every function takes the
// current booking by value and returns the next version; persisting it is the
// caller's job. A booking only reaches Completed together with its rating.
package lifecycle

import (
	"fmt"
	"time"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"
)

// Change is the result of a transition that must be stored as one unit.
type Change struct {
	Booking models.Booking
	// Rating is set when the transition writes the customer's rating.
	Rating *models.Rating
}

// FinishRequest describes one "session finished" action.
type FinishRequest struct {
	Actor models.Role
	Stars *int
	Notes *string
	At    time.Time
}

func invalidState(b models.Booking, action string) error {
	return fmt.Errorf("%w: cannot %s a %s session", response.ErrInvalidState, action, b.Status)
}

func ValidateStars(stars int) error {
	if stars < models.MinStars || stars > models.MaxStars {
		return fmt.Errorf("%w: rating must be between %d and %d", response.ErrValidation, models.MinStars, models.MaxStars)
	}
	return nil
}

// Confirm applies the payment confirmation: Scheduled -> Confirmed.
func Confirm(b models.Booking, paymentIntentID string, at time.Time) (models.Booking, error) {
	if b.Status != models.BookingScheduled {
		return b, invalidState(b, "confirm")
	}
	b.Status = models.BookingConfirmed
	if paymentIntentID != "" {
		b.PaymentIntentID = &paymentIntentID
	}
	b.UpdatedAt = at
	return b, nil
}

// Finish is the single finishing transition for both participants.
//
//	mentor,   Confirmed                -> RequiresRating (no rating allowed)
//	customer, Confirmed|RequiresRating -> Completed      (rating required)
func Finish(b models.Booking, req FinishRequest) (Change, error) {
	switch req.Actor {
	case models.RoleMentor:
		if b.Status != models.BookingConfirmed {
			return Change{}, invalidState(b, "finish")
		}
		if req.Stars != nil {
			return Change{}, fmt.Errorf("%w: only the customer can rate a session", response.ErrValidation)
		}
		b.Status = models.BookingRequiresRating
		b.UpdatedAt = req.At
		return Change{Booking: b}, nil

	case models.RoleCustomer:
		if b.Status != models.BookingConfirmed && b.Status != models.BookingRequiresRating {
			return Change{}, invalidState(b, "rate")
		}
		if req.Stars == nil {
			return Change{}, fmt.Errorf("%w: a rating is required to finish the session", response.ErrValidation)
		}
		if err := ValidateStars(*req.Stars); err != nil {
			return Change{}, err
		}
		stars := *req.Stars
		rating := &models.Rating{
			BookingID:   b.ID,
			MentorID:    b.MentorID,
			Stars:       stars,
			Notes:       req.Notes,
			SubmittedAt: req.At,
		}
		b.Status = models.BookingCompleted
		b.CustomerRating = &stars
		b.UpdatedAt = req.At
		return Change{Booking: b, Rating: rating}, nil
	}
	return Change{}, fmt.Errorf("%w: unknown actor role %q", response.ErrValidation, req.Actor)
}

// SubmitRating is the customer's rating for a session; it completes it.
func SubmitRating(b models.Booking, stars int, notes *string, at time.Time) (Change, error) {
	return Finish(b, FinishRequest{Actor: models.RoleCustomer, Stars: &stars, Notes: notes, At: at})
}

// Cancel releases the slot of a session that has not taken place.
func Cancel(b models.Booking, at time.Time) (models.Booking, error) {
	if b.Status != models.BookingScheduled && b.Status != models.BookingConfirmed {
		return b, invalidState(b, "cancel")
	}
	b.Status = models.BookingCancelled
	b.UpdatedAt = at
	return b, nil
}

// Flag raises the actor's flag. changed is false when it was already raised.
func Flag(b models.Booking, actor models.Role, at time.Time) (next models.Booking, changed bool, err error) {
	switch actor {
	case models.RoleMentor:
		if b.FlaggedByMentor {
			return b, false, nil
		}
		b.FlaggedByMentor = true
	case models.RoleCustomer:
		if b.FlaggedByCustomer {
			return b, false, nil
		}
		b.FlaggedByCustomer = true
	default:
		return b, false, fmt.Errorf("%w: unknown actor role %q", response.ErrValidation, actor)
	}
	b.UpdatedAt = at
	return b, true, nil
}

// AttachMeeting records the provisioned meeting room of a confirmed session.
func AttachMeeting(b models.Booking, url string, at time.Time) (models.Booking, error) {
	if url == "" {
		return b, fmt.Errorf("%w: meeting_url is required", response.ErrValidation)
	}
	if b.Status != models.BookingConfirmed {
		return b, invalidState(b, "attach a meeting to")
	}
	b.MeetingURL = &url
	b.UpdatedAt = at
	return b, nil
}
