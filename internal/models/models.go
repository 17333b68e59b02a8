package models

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is the availability day encoding. Monday is 0, Sunday is 6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func (d Weekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// WeekdayOf returns the weekday of t in t's own location.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

const MinutesPerDay TimeOfDay = 24 * 60

// ParseTimeOfDay accepts "15:04" and "15:04:05". "24:00" is accepted as end of day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return MinutesPerDay, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay(t.Hour()*60 + t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On returns the instant at this wall-clock time on the calendar day of day, in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(t)/60, int(t)%60, 0, 0, loc)
}

type AvailabilityRule struct {
	ID        string    `db:"id"`
	MentorID  string    `db:"mentor_id"`
	DayOfWeek Weekday   `db:"day_of_week"`
	StartTime TimeOfDay `db:"start_minute"`
	EndTime   TimeOfDay `db:"end_minute"`
}

type UnavailabilityPeriod struct {
	ID       string
	MentorID string
	Start    time.Time
	End      time.Time
	Reason   *string
}

type CalendarSettings struct {
	MentorID           string `db:"mentor_id"`
	SessionDurationMin int    `db:"session_duration_min"`
	BufferTimeMin      int    `db:"buffer_time_min"`
	AdvanceBookingDays int    `db:"advance_booking_days"`
	MinimumNoticeHours int    `db:"minimum_notice_hours"`
	Timezone           string `db:"timezone"`
}

const DefaultTimezone = "America/Los_Angeles"

// DefaultCalendarSettings is the policy used for mentors that never saved one.
func DefaultCalendarSettings(mentorID string) CalendarSettings {
	return CalendarSettings{
		MentorID:           mentorID,
		SessionDurationMin: 60,
		BufferTimeMin:      15,
		AdvanceBookingDays: 30,
		MinimumNoticeHours: 24,
		Timezone:           DefaultTimezone,
	}
}

func (c CalendarSettings) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c CalendarSettings) SessionDuration() time.Duration {
	return time.Duration(c.SessionDurationMin) * time.Minute
}

func (c CalendarSettings) Step() time.Duration {
	return time.Duration(c.SessionDurationMin+c.BufferTimeMin) * time.Minute
}

// Availability is everything a mentor saves from the availability screen.
type Availability struct {
	Rules    []AvailabilityRule
	Periods  []UnavailabilityPeriod
	Settings CalendarSettings
}

type SlotStatus string

const (
	SlotOpen   SlotStatus = "open"
	SlotBooked SlotStatus = "booked"
)

type Slot struct {
	Start  time.Time
	End    time.Time
	Status SlotStatus
}

// AvailableSlots is the answer to a slot query.
type AvailableSlots struct {
	Slots    []Slot
	Timezone string
}

type BookingStatus string

const (
	BookingScheduled      BookingStatus = "scheduled"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingRequiresRating BookingStatus = "requires_rating"
	BookingCompleted      BookingStatus = "completed"
	BookingCancelled      BookingStatus = "cancelled"
)

// Active reports whether a booking in this status still holds its slot.
func (s BookingStatus) Active() bool {
	return s != BookingCancelled
}

// Current reports whether the booking belongs in a participant's current list.
func (s BookingStatus) Current() bool {
	switch s {
	case BookingScheduled, BookingConfirmed, BookingRequiresRating:
		return true
	}
	return false
}

type Role string

const (
	RoleMentor   Role = "mentor"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleMentor || r == RoleCustomer
}

type Booking struct {
	ID                string
	MentorID          string
	CustomerID        string
	SlotStart         time.Time
	SlotEnd           time.Time
	Status            BookingStatus
	MeetingURL        *string
	PaymentIntentID   *string
	FlaggedByCustomer bool
	FlaggedByMentor   bool
	CustomerRating    *int
	Version           int64 // bumped on every stored change, writes compare-and-set on it
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Participant reports the role userID plays in the booking, if any.
func (b *Booking) Participant(userID string) (Role, bool) {
	switch userID {
	case b.MentorID:
		return RoleMentor, true
	case b.CustomerID:
		return RoleCustomer, true
	}
	return "", false
}

type Rating struct {
	BookingID   string
	MentorID    string
	Stars       int
	Notes       *string
	SubmittedAt time.Time
}

const (
	MinStars = 1
	MaxStars = 5
)

// RatingStats is the running per-mentor aggregate.
type RatingStats struct {
	MentorID     string
	Total        int
	Sum          int
	Distribution [MaxStars]int
}

type RatingSummary struct {
	Average      float64
	Total        int
	Distribution map[int]int
	// MoreNeeded is how many more rated sessions are needed before the summary is public.
	MoreNeeded int
}

type Sessions struct {
	Current []Booking
	History []Booking
}

// Caller is the authenticated user an operation runs for.
type Caller struct {
	UserID string
	Role   Role
}
