package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mentor-schedule-service/internal/cache"
	"mentor-schedule-service/internal/clients/payment"
	"mentor-schedule-service/internal/events"
	"mentor-schedule-service/internal/lock"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/internal/rating"
	"mentor-schedule-service/internal/storage"
	"mentor-schedule-service/pkg/response"
	"mentor-schedule-service/pkg/sl"

	"golang.org/x/sync/singleflight"
)

type PaymentVerifier interface {
	VerifyIntent(ctx context.Context, intentID, bookingID string) (payment.Intent, error)
}

type Options struct {
	// LockTTL bounds how long a crashed holder can block a mentor's calendar.
	LockTTL time.Duration
	// LockWait is how long a reservation waits for the mentor lock before
	// giving up with ErrLocked.
	LockWait               time.Duration
	RatingDisplayThreshold int
}

func (o Options) withDefaults() Options {
	if o.LockTTL <= 0 {
		o.LockTTL = 10 * time.Second
	}
	if o.LockWait <= 0 {
		o.LockWait = 5 * time.Second
	}
	if o.RatingDisplayThreshold <= 0 {
		o.RatingDisplayThreshold = rating.DefaultDisplayThreshold
	}
	return o
}

type Service struct {
	log      *slog.Logger
	store    storage.Store
	locker   lock.Locker
	slots    cache.SlotCache
	events   events.Publisher
	payments PaymentVerifier
	opts     Options

	group   singleflight.Group
	nowFunc func() time.Time
}

func NewService(
	log *slog.Logger,
	store storage.Store,
	locker lock.Locker,
	slots cache.SlotCache,
	publisher events.Publisher,
	payments PaymentVerifier,
	opts Options,
) *Service {
	return &Service{
		log:      log,
		store:    store,
		locker:   locker,
		slots:    slots,
		events:   publisher,
		payments: payments,
		opts:     opts.withDefaults(),
		nowFunc:  time.Now,
	}
}

func (s *Service) now() time.Time {
	return s.nowFunc().UTC()
}

func mentorLockKey(mentorID string) string {
	return "mentor:" + mentorID
}

// unlock runs release and logs a failure. The lock then lapses with its TTL.
func (s *Service) unlock(key string, release func() error) {
	if err := release(); err != nil {
		s.log.Error("Failed to release lock", slog.String("key", key), sl.Err(err))
	}
}

// publish sends e after the change is committed. Failures are logged only.
func (s *Service) publish(ctx context.Context, t events.Type, b models.Booking) {
	e := events.FromBooking(t, b, s.now())
	if err := s.events.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.log.Error("Failed to publish event",
			slog.String("type", string(t)),
			slog.String("booking_id", b.ID),
			sl.Err(err),
		)
	}
}

// invalidate drops cached slots of a mentor. A failure leaves stale entries
// until their TTL runs out, so it is logged and not returned.
func (s *Service) invalidate(ctx context.Context, mentorID string) {
	if err := s.slots.Invalidate(context.WithoutCancel(ctx), mentorID); err != nil {
		s.log.Error("Failed to invalidate slot cache", slog.String("mentor_id", mentorID), sl.Err(err))
	}
}

// participant returns the role caller plays in b, or ErrForbidden.
func participant(caller models.Caller, b models.Booking) (models.Role, error) {
	if caller.UserID == "" {
		return "", response.ErrUnauthorized
	}
	role, ok := b.Participant(caller.UserID)
	if !ok {
		return "", fmt.Errorf("%w: not a participant of booking %s", response.ErrForbidden, b.ID)
	}
	return role, nil
}

const maxStaleRetries = 3

// transition is one booking mutation. changed=false skips the write.
type transition func(q storage.Queries, b models.Booking) (next models.Booking, changed bool, err error)

// mutate loads the booking, applies fn and stores the result in one
// transaction, compare-and-set on the booking version. A lost race is
// retried against the fresh row.
func (s *Service) mutate(ctx context.Context, bookingID string, fn transition) (models.Booking, bool, error) {
	const op = "service.mutate"

	for attempt := 0; ; attempt++ {
		var (
			out     models.Booking
			changed bool
		)
		err := s.store.WithinTx(ctx, func(q storage.Queries) error {
			b, err := q.GetBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			next, ch, err := fn(q, b)
			if err != nil {
				return err
			}
			if !ch {
				out = b
				return nil
			}
			out, err = q.UpdateBooking(ctx, next)
			changed = true
			return err
		})

		if errors.Is(err, storage.ErrStale) && attempt < maxStaleRetries {
			s.log.Debug("Booking changed concurrently, retrying", slog.String("booking_id", bookingID))
			continue
		}
		if err != nil {
			return models.Booking{}, false, fmt.Errorf("%s: %w", op, err)
		}

		return out, changed, nil
	}
}
