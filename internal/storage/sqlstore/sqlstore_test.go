package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/internal/storage"
	"mentor-schedule-service/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var t0 = time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC)

func newBooking(id string, start time.Time) models.Booking {
	return models.Booking{
		ID:         id,
		MentorID:   "mentor-1",
		CustomerID: "customer-1",
		SlotStart:  start,
		SlotEnd:    start.Add(time.Hour),
		Status:     models.BookingScheduled,
		Version:    1,
		CreatedAt:  t0,
		UpdatedAt:  t0,
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), "mysql", "x")
	require.Error(t, err)
}

func TestAvailabilityDefaultsWhenMissing(t *testing.T) {
	s := openStore(t)

	a, found, err := s.GetAvailability(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, models.DefaultCalendarSettings("nobody"), a.Settings)
	assert.Empty(t, a.Rules)
	assert.Empty(t, a.Periods)
}

func TestReplaceAvailabilityRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	reason := "vacation"

	settings := models.DefaultCalendarSettings("mentor-1")
	settings.BufferTimeMin = 10
	rules := []models.AvailabilityRule{
		{ID: "r2", MentorID: "mentor-1", DayOfWeek: models.Wednesday, StartTime: 13 * 60, EndTime: 15 * 60},
		{ID: "r1", MentorID: "mentor-1", DayOfWeek: models.Monday, StartTime: 9 * 60, EndTime: 17 * 60},
	}
	periods := []models.UnavailabilityPeriod{
		{ID: "p1", MentorID: "mentor-1", Start: t0, End: t0.Add(2 * time.Hour), Reason: &reason},
	}

	err := s.WithinTx(ctx, func(q storage.Queries) error {
		if err := q.ReplaceAvailability(ctx, "mentor-1", rules, settings); err != nil {
			return err
		}
		return q.ReplaceUnavailability(ctx, "mentor-1", periods)
	})
	require.NoError(t, err)

	a, found, err := s.GetAvailability(ctx, "mentor-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, settings, a.Settings)
	require.Len(t, a.Rules, 2)
	assert.Equal(t, models.Monday, a.Rules[0].DayOfWeek, "rules are ordered by weekday")
	assert.Equal(t, models.TimeOfDay(17*60), a.Rules[0].EndTime)
	require.Len(t, a.Periods, 1)
	assert.True(t, a.Periods[0].Start.Equal(t0))
	assert.Equal(t, "vacation", *a.Periods[0].Reason)

	// a second save replaces everything
	require.NoError(t, s.ReplaceAvailability(ctx, "mentor-1", rules[:1], settings))
	require.NoError(t, s.ReplaceUnavailability(ctx, "mentor-1", nil))

	a, _, err = s.GetAvailability(ctx, "mentor-1")
	require.NoError(t, err)
	assert.Len(t, a.Rules, 1)
	assert.Empty(t, a.Periods)
}

func TestWithinTxRollsBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(q storage.Queries) error {
		if err := q.ReplaceAvailability(ctx, "mentor-1", nil, models.DefaultCalendarSettings("mentor-1")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, found, err := s.GetAvailability(ctx, "mentor-1")
	require.NoError(t, err)
	assert.False(t, found, "rolled back settings must not be visible")
}

func TestActiveSlotIsUnique(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBooking(ctx, newBooking("b1", t0)))

	err := s.InsertBooking(ctx, newBooking("b2", t0))
	assert.ErrorIs(t, err, response.ErrConflict)

	// cancelling frees the slot
	b, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	b.Status = models.BookingCancelled
	_, err = s.UpdateBooking(ctx, b)
	require.NoError(t, err)

	require.NoError(t, s.InsertBooking(ctx, newBooking("b2", t0)))
}

func TestActiveBookingsOverlap(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBooking(ctx, newBooking("b1", t0)))
	require.NoError(t, s.InsertBooking(ctx, newBooking("b2", t0.Add(2*time.Hour))))

	got, err := s.ActiveBookings(ctx, "mentor-1", t0.Add(30*time.Minute), t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1, "half-open range touching b2 must not include it")
	assert.Equal(t, "b1", got[0].ID)

	got, err = s.ActiveBookings(ctx, "mentor-2", t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateBookingCompareAndSet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertBooking(ctx, newBooking("b1", t0)))

	b, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	stale := b

	url := "https://meet.example/b1"
	b.Status = models.BookingConfirmed
	b.MeetingURL = &url
	b.FlaggedByMentor = true
	b, err = s.UpdateBooking(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Version)

	_, err = s.UpdateBooking(ctx, stale)
	assert.ErrorIs(t, err, storage.ErrStale)

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, url, *got.MeetingURL)
	assert.True(t, got.FlaggedByMentor)
	assert.False(t, got.FlaggedByCustomer)
	assert.Equal(t, int64(2), got.Version)

	_, err = s.UpdateBooking(ctx, newBooking("missing", t0))
	assert.ErrorIs(t, err, response.ErrNotFound)
}

func TestCompletedRequiresRating(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertBooking(ctx, newBooking("b1", t0)))

	b, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	b.Status = models.BookingCompleted

	_, err = s.UpdateBooking(ctx, b)
	require.Error(t, err, "schema must reject completed without rating")
}

func TestGetBookingNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.GetBooking(context.Background(), "nope")
	assert.ErrorIs(t, err, response.ErrNotFound)
}

func TestListBookingsByRole(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	other := newBooking("b2", t0.Add(3*time.Hour))
	other.CustomerID = "customer-2"
	require.NoError(t, s.InsertBooking(ctx, other))
	require.NoError(t, s.InsertBooking(ctx, newBooking("b1", t0)))

	mine, err := s.ListBookings(ctx, "mentor-1", models.RoleMentor)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "b1", mine[0].ID, "ordered by slot start")

	mine, err = s.ListBookings(ctx, "customer-2", models.RoleCustomer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "b2", mine[0].ID)

	_, err = s.ListBookings(ctx, "x", "admin")
	assert.ErrorIs(t, err, response.ErrValidation)
}

func TestRatingsAndStats(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertBooking(ctx, newBooking("b1", t0)))

	stats, err := s.GetRatingStats(ctx, "mentor-1")
	require.NoError(t, err)
	assert.Equal(t, models.RatingStats{MentorID: "mentor-1"}, stats)

	r := models.Rating{BookingID: "b1", MentorID: "mentor-1", Stars: 4, SubmittedAt: t0}
	require.NoError(t, s.InsertRating(ctx, r))
	assert.ErrorIs(t, s.InsertRating(ctx, r), response.ErrConflict, "one rating per booking")

	stats.Total, stats.Sum = 1, 4
	stats.Distribution[3] = 1
	require.NoError(t, s.SaveRatingStats(ctx, stats))
	stats.Total, stats.Sum = 2, 9
	stats.Distribution[4] = 1
	require.NoError(t, s.SaveRatingStats(ctx, stats))

	got, err := s.GetRatingStats(ctx, "mentor-1")
	require.NoError(t, err)
	assert.Equal(t, stats, got)
}

func TestWithinSnapshotReads(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceAvailability(ctx, "mentor-1", nil, models.DefaultCalendarSettings("mentor-1")))

	var found bool
	err := s.WithinSnapshot(ctx, func(q storage.Queries) error {
		var err error
		_, found, err = q.GetAvailability(ctx, "mentor-1")
		return err
	})
	require.NoError(t, err)
	assert.True(t, found)
}
