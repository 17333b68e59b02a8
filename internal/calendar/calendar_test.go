package calendar

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"mentor-schedule-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func booking() models.Booking {
	meet := "https://meet.example/abcd"
	la, _ := time.LoadLocation("America/Los_Angeles")
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, la)
	return models.Booking{
		ID:         "b-1",
		SlotStart:  start,
		SlotEnd:    start.Add(time.Hour),
		MeetingURL: &meet,
	}
}

func TestGoogle(t *testing.T) {
	raw := Google(ForBooking(booking()))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "calendar.google.com", u.Host)
	q := u.Query()
	assert.Equal(t, "TEMPLATE", q.Get("action"))
	assert.Equal(t, "20261019T160000Z/20261019T170000Z", q.Get("dates"))
	assert.Equal(t, "https://meet.example/abcd", q.Get("location"))
}

func TestOutlook(t *testing.T) {
	u, err := url.Parse(Outlook(ForBooking(booking())))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "2026-10-19T16:00:00.000Z", q.Get("startdt"))
	assert.Equal(t, "2026-10-19T17:00:00.000Z", q.Get("enddt"))
}

func TestICS(t *testing.T) {
	stamp := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	e := ForBooking(booking())
	e.Title = "Go review; part 1, basics"

	ics := ICS(e, stamp)

	assert.True(t, strings.HasPrefix(ics, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(ics, "END:VCALENDAR\r\n"))
	assert.Contains(t, ics, "UID:b-1@mentor-schedule-service\r\n")
	assert.Contains(t, ics, "DTSTAMP:20261017T120000Z\r\n")
	assert.Contains(t, ics, "DTSTART:20261019T160000Z\r\n")
	assert.Contains(t, ics, `SUMMARY:Go review\; part 1\, basics`)
	assert.Contains(t, ics, `DESCRIPTION:Mentoring session b-1\nJoin: https://meet.example/abcd`)
}

func TestICSWithoutMeeting(t *testing.T) {
	b := booking()
	b.MeetingURL = nil

	l := LinksFor(b, time.Now())
	assert.NotContains(t, l.ICS, "LOCATION:")
	assert.NotEmpty(t, l.Google)
	assert.NotEmpty(t, l.Outlook)
}
