package calendar

import (
	"context"
	"log/slog"
	"net/http"

	"mentor-schedule-service/internal/calendar"
	"mentor-schedule-service/internal/http-server/middleware/auth"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"
	"mentor-schedule-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type LinkBuilder interface {
	CalendarLinks(ctx context.Context, caller models.Caller, bookingID string) (calendar.Links, error)
}

type Response struct {
	response.Response
	calendar.Links
}

// New serves the calendar links of a booking. With ?format=ics the raw
// iCalendar file is returned instead.
func New(log *slog.Logger, builder LinkBuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.calendar.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		caller, ok := auth.CallerFrom(r.Context())
		if !ok {
			response.Fail(w, r, response.ErrUnauthorized, "")
			return
		}

		id := chi.URLParam(r, "id")

		links, err := builder.CalendarLinks(r.Context(), caller, id)
		if err != nil {
			log.Error("Failed to build calendar links", slog.String("booking_id", id), sl.Err(err))
			response.Fail(w, r, err, "failed to build calendar links")
			return
		}

		if r.URL.Query().Get("format") == "ics" {
			w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="session-`+id+`.ics"`)
			_, _ = w.Write([]byte(links.ICS))
			return
		}

		log.Debug("Calendar links built", slog.String("booking_id", id))
		render.JSON(w, r, Response{Links: links})
	}
}
