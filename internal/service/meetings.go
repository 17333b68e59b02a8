package service

import (
	"context"
	"fmt"
	"log/slog"

	"mentor-schedule-service/internal/models"
)

type RoomProvisioner interface {
	CreateRoom(ctx context.Context, b models.Booking) (string, error)
}

// ProvisionMeeting creates the meeting room of a confirmed session and
// stores its URL. Bookings that are no longer Confirmed or already have a
// room are skipped.
func (s *Service) ProvisionMeeting(ctx context.Context, rooms RoomProvisioner, bookingID string) (models.Booking, error) {
	const op = "service.ProvisionMeeting"

	log := s.log.With(slog.String("op", op), slog.String("booking_id", bookingID))

	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}
	if b.Status != models.BookingConfirmed || b.MeetingURL != nil {
		log.Debug("Nothing to provision", slog.String("status", string(b.Status)))
		return b, nil
	}

	url, err := rooms.CreateRoom(ctx, b)
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	out, err := s.AttachMeetingURL(ctx, bookingID, url)
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("Meeting room attached", slog.String("meeting_url", url))

	return out, nil
}
