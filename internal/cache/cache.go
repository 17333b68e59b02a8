// Package cache memoizes generated slots per mentor. Every entry is keyed by
// the mentor's ledger version; bumping the version on a rule write or a
// reservation makes all older entries unreachable.
package cache

import (
	"context"
	"fmt"
	"time"

	"mentor-schedule-service/internal/models"
)

// Key identifies one slot query. Version must be read with Version before
// the underlying state is loaded.
type Key struct {
	MentorID string
	Version  int64
	Range    string
	// Minute is the query time truncated to the minute; notice and horizon
	// move with it.
	Minute int64
}

func (k Key) String() string {
	return fmt.Sprintf("slots:%s:v%d:%s:%d", k.MentorID, k.Version, k.Range, k.Minute)
}

func versionKey(mentorID string) string {
	return "slots:ver:" + mentorID
}

// MinuteOf returns the Key.Minute bucket of t.
func MinuteOf(t time.Time) int64 {
	return t.Unix() / 60
}

type SlotCache interface {
	Version(ctx context.Context, mentorID string) (int64, error)
	Get(ctx context.Context, key Key) (models.AvailableSlots, bool, error)
	Set(ctx context.Context, key Key, slots models.AvailableSlots) error
	Invalidate(ctx context.Context, mentorID string) error
}
