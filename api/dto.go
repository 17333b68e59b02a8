package api

import (
	"fmt"
	"strconv"
	"time"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"
)

type AvailabilityRule struct {
	ID        string `json:"id,omitempty"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type UnavailabilityPeriod struct {
	ID            string    `json:"id,omitempty"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	Reason        *string   `json:"reason,omitempty"`
}

type CalendarSettings struct {
	SessionDurationMin int    `json:"session_duration_min"`
	BufferTimeMin      int    `json:"buffer_time_min"`
	AdvanceBookingDays int    `json:"advance_booking_days"`
	MinimumNoticeHours int    `json:"minimum_notice_hours"`
	Timezone           string `json:"timezone"`
}

type Availability struct {
	Rules                 []AvailabilityRule     `json:"rules"`
	UnavailabilityPeriods []UnavailabilityPeriod `json:"unavailability_periods"`
	Settings              CalendarSettings       `json:"settings"`
}

type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Slots struct {
	Slots    []Slot `json:"slots"`
	Timezone string `json:"timezone"`
}

type BookingRequest struct {
	MentorID  string    `json:"mentor_id"`
	SlotStart time.Time `json:"slot_start"`
	SlotEnd   time.Time `json:"slot_end"`
}

type Booking struct {
	ID                string    `json:"id"`
	MentorID          string    `json:"mentor_id"`
	CustomerID        string    `json:"customer_id"`
	SlotStart         time.Time `json:"slot_start"`
	SlotEnd           time.Time `json:"slot_end"`
	Status            string    `json:"status"`
	MeetingURL        *string   `json:"meeting_url,omitempty"`
	PaymentIntentID   *string   `json:"payment_intent_id,omitempty"`
	FlaggedByCustomer bool      `json:"flagged_by_customer"`
	FlaggedByMentor   bool      `json:"flagged_by_mentor"`
	CustomerRating    *int      `json:"customer_rating,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type FinishRequest struct {
	Rating *int    `json:"rating,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

type RatingRequest struct {
	Rating int     `json:"rating"`
	Notes  *string `json:"notes,omitempty"`
}

type Sessions struct {
	Current []Booking `json:"current"`
	History []Booking `json:"history"`
}

type RatingSummary struct {
	Average      float64        `json:"average"`
	Total        int            `json:"total"`
	Distribution map[string]int `json:"distribution"`
	MoreNeeded   *int           `json:"more_needed,omitempty"`
}

func FromBooking(b models.Booking) Booking {
	return Booking{
		ID:                b.ID,
		MentorID:          b.MentorID,
		CustomerID:        b.CustomerID,
		SlotStart:         b.SlotStart,
		SlotEnd:           b.SlotEnd,
		Status:            string(b.Status),
		MeetingURL:        b.MeetingURL,
		PaymentIntentID:   b.PaymentIntentID,
		FlaggedByCustomer: b.FlaggedByCustomer,
		FlaggedByMentor:   b.FlaggedByMentor,
		CustomerRating:    b.CustomerRating,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func FromBookings(in []models.Booking) []Booking {
	out := make([]Booking, 0, len(in))
	for _, b := range in {
		out = append(out, FromBooking(b))
	}
	return out
}

func FromSessions(s models.Sessions) Sessions {
	return Sessions{Current: FromBookings(s.Current), History: FromBookings(s.History)}
}

func FromSlots(s models.AvailableSlots) Slots {
	out := Slots{Slots: make([]Slot, 0, len(s.Slots)), Timezone: s.Timezone}
	for _, slot := range s.Slots {
		out.Slots = append(out.Slots, Slot{Start: slot.Start, End: slot.End})
	}
	return out
}

// FromRatingSummary renders a summary. more_needed is only shown to the
// mentor, who is the only viewer that can get a summary below the threshold.
func FromRatingSummary(s models.RatingSummary, owner bool) RatingSummary {
	out := RatingSummary{
		Average:      s.Average,
		Total:        s.Total,
		Distribution: make(map[string]int, len(s.Distribution)),
	}
	for stars, n := range s.Distribution {
		out.Distribution[strconv.Itoa(stars)] = n
	}
	if owner {
		n := s.MoreNeeded
		out.MoreNeeded = &n
	}
	return out
}

func FromAvailability(a models.Availability) Availability {
	out := Availability{
		Rules:                 make([]AvailabilityRule, 0, len(a.Rules)),
		UnavailabilityPeriods: make([]UnavailabilityPeriod, 0, len(a.Periods)),
		Settings: CalendarSettings{
			SessionDurationMin: a.Settings.SessionDurationMin,
			BufferTimeMin:      a.Settings.BufferTimeMin,
			AdvanceBookingDays: a.Settings.AdvanceBookingDays,
			MinimumNoticeHours: a.Settings.MinimumNoticeHours,
			Timezone:           a.Settings.Timezone,
		},
	}
	for _, r := range a.Rules {
		out.Rules = append(out.Rules, AvailabilityRule{
			ID:        r.ID,
			DayOfWeek: int(r.DayOfWeek),
			StartTime: r.StartTime.String(),
			EndTime:   r.EndTime.String(),
		})
	}
	for _, p := range a.Periods {
		out.UnavailabilityPeriods = append(out.UnavailabilityPeriods, UnavailabilityPeriod{
			ID:            p.ID,
			StartDatetime: p.Start,
			EndDatetime:   p.End,
			Reason:        p.Reason,
		})
	}
	return out
}

// Model converts the request into domain types. Malformed times are
// reported as ErrValidation; range checks are left to the service.
func (a Availability) Model() (models.Availability, error) {
	out := models.Availability{
		Settings: models.CalendarSettings{
			SessionDurationMin: a.Settings.SessionDurationMin,
			BufferTimeMin:      a.Settings.BufferTimeMin,
			AdvanceBookingDays: a.Settings.AdvanceBookingDays,
			MinimumNoticeHours: a.Settings.MinimumNoticeHours,
			Timezone:           a.Settings.Timezone,
		},
	}
	for i, r := range a.Rules {
		start, err := models.ParseTimeOfDay(r.StartTime)
		if err != nil {
			return models.Availability{}, fmt.Errorf("%w: rules[%d].start_time: %v", response.ErrValidation, i, err)
		}
		end, err := models.ParseTimeOfDay(r.EndTime)
		if err != nil {
			return models.Availability{}, fmt.Errorf("%w: rules[%d].end_time: %v", response.ErrValidation, i, err)
		}
		out.Rules = append(out.Rules, models.AvailabilityRule{
			ID:        r.ID,
			DayOfWeek: models.Weekday(r.DayOfWeek),
			StartTime: start,
			EndTime:   end,
		})
	}
	for _, p := range a.UnavailabilityPeriods {
		out.Periods = append(out.Periods, models.UnavailabilityPeriod{
			ID:     p.ID,
			Start:  p.StartDatetime.UTC(),
			End:    p.EndDatetime.UTC(),
			Reason: p.Reason,
		})
	}
	return out, nil
}
