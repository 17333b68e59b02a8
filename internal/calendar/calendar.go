// Package calendar renders "add to calendar" links and iCalendar content
// for a booked session.
package calendar

import (
	"net/url"
	"strings"
	"time"

	"mentor-schedule-service/internal/models"
)

const (
	googleURL  = "https://calendar.google.com/calendar/render"
	outlookURL = "https://outlook.live.com/calendar/0/deeplink/compose"
	prodID     = "-//mentor-schedule-service//sessions//EN"

	icsStamp     = "20060102T150405Z"
	outlookStamp = "2006-01-02T15:04:05.000Z"
)

type Event struct {
	UID         string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

type Links struct {
	Google  string `json:"google"`
	Outlook string `json:"outlook"`
	ICS     string `json:"ical_content"`
}

// ForBooking describes a session. The meeting URL, once provisioned, is
// the event location.
func ForBooking(b models.Booking) Event {
	e := Event{
		UID:         b.ID + "@mentor-schedule-service",
		Title:       "Mentoring session",
		Description: "Mentoring session " + b.ID,
		Start:       b.SlotStart,
		End:         b.SlotEnd,
	}
	if b.MeetingURL != nil {
		e.Location = *b.MeetingURL
		e.Description += "\nJoin: " + *b.MeetingURL
	}
	return e
}

func Google(e Event) string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", e.Title)
	q.Set("dates", e.Start.UTC().Format(icsStamp)+"/"+e.End.UTC().Format(icsStamp))
	q.Set("details", e.Description)
	q.Set("location", e.Location)
	return googleURL + "?" + q.Encode()
}

func Outlook(e Event) string {
	q := url.Values{}
	q.Set("subject", e.Title)
	q.Set("startdt", e.Start.UTC().Format(outlookStamp))
	q.Set("enddt", e.End.UTC().Format(outlookStamp))
	q.Set("body", e.Description)
	q.Set("location", e.Location)
	return outlookURL + "?" + q.Encode()
}

var icsEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, ",", `\,`, ";", `\;`)

// ICS renders a single-event VCALENDAR with CRLF line endings.
func ICS(e Event, stamp time.Time) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + prodID,
		"BEGIN:VEVENT",
		"UID:" + e.UID,
		"DTSTAMP:" + stamp.UTC().Format(icsStamp),
		"DTSTART:" + e.Start.UTC().Format(icsStamp),
		"DTEND:" + e.End.UTC().Format(icsStamp),
		"SUMMARY:" + icsEscaper.Replace(e.Title),
		"DESCRIPTION:" + icsEscaper.Replace(e.Description),
	}
	if e.Location != "" {
		lines = append(lines, "LOCATION:"+icsEscaper.Replace(e.Location))
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}

func LinksFor(b models.Booking, stamp time.Time) Links {
	e := ForBooking(b)
	return Links{
		Google:  Google(e),
		Outlook: Outlook(e),
		ICS:     ICS(e, stamp),
	}
}
