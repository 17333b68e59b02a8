// Package events carries session lifecycle events to other processes.
// Events are published after the change is committed; a lost event never
// rolls back a booking.
package events

import (
	"context"
	"log/slog"
	"time"

	"mentor-schedule-service/internal/models"
)

type Type string

const (
	SessionBooked    Type = "session.booked"
	SessionConfirmed Type = "session.confirmed"
	SessionCompleted Type = "session.completed"
	SessionCancelled Type = "session.cancelled"
	SessionFlagged   Type = "session.flagged"
)

type Event struct {
	Type       Type                 `json:"type"`
	BookingID  string               `json:"booking_id"`
	MentorID   string               `json:"mentor_id"`
	CustomerID string               `json:"customer_id"`
	Status     models.BookingStatus `json:"status"`
	SlotStart  time.Time            `json:"slot_start"`
	SlotEnd    time.Time            `json:"slot_end"`
	OccurredAt time.Time            `json:"occurred_at"`
}

func FromBooking(t Type, b models.Booking, at time.Time) Event {
	return Event{
		Type:       t,
		BookingID:  b.ID,
		MentorID:   b.MentorID,
		CustomerID: b.CustomerID,
		Status:     b.Status,
		SlotStart:  b.SlotStart,
		SlotEnd:    b.SlotEnd,
		OccurredAt: at.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher only logs events. It stands in for the broker when messaging
// is disabled.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.log.Info("event",
		slog.String("type", string(e.Type)),
		slog.String("booking_id", e.BookingID),
		slog.String("status", string(e.Status)),
	)
	return nil
}
