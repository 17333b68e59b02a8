package storage

import (
	"context"
	"errors"
	"time"

	"mentor-schedule-service/internal/models"
)

// ErrStale is returned by UpdateBooking when the stored version moved on.
var ErrStale = errors.New("booking was modified concurrently")

// Queries is the set of reads and writes available both on the store and
// inside a transaction.
type Queries interface {
	// GetAvailability returns the saved availability of a mentor. found is
	// false when the mentor never saved calendar settings.
	GetAvailability(ctx context.Context, mentorID string) (a models.Availability, found bool, err error)
	ReplaceAvailability(ctx context.Context, mentorID string, rules []models.AvailabilityRule, settings models.CalendarSettings) error
	ReplaceUnavailability(ctx context.Context, mentorID string, periods []models.UnavailabilityPeriod) error

	// LockMentor serialises writers on one mentor's calendar until the
	// surrounding transaction ends.
	LockMentor(ctx context.Context, mentorID string) error

	// ActiveBookings lists non-cancelled bookings of a mentor overlapping [from, to).
	ActiveBookings(ctx context.Context, mentorID string, from, to time.Time) ([]models.Booking, error)
	InsertBooking(ctx context.Context, b models.Booking) error
	GetBooking(ctx context.Context, id string) (models.Booking, error)
	// UpdateBooking stores b if the stored version still equals b.Version and
	// returns it with the bumped version.
	UpdateBooking(ctx context.Context, b models.Booking) (models.Booking, error)
	ListBookings(ctx context.Context, userID string, role models.Role) ([]models.Booking, error)

	InsertRating(ctx context.Context, r models.Rating) error
	GetRatingStats(ctx context.Context, mentorID string) (models.RatingStats, error)
	SaveRatingStats(ctx context.Context, s models.RatingStats) error
}

type Store interface {
	Queries
	// WithinTx runs fn in one transaction. fn must only use the Queries it is given.
	WithinTx(ctx context.Context, fn func(q Queries) error) error
	// WithinSnapshot runs read-only fn against one consistent snapshot.
	WithinSnapshot(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
