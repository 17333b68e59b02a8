package get

import (
	"context"
	"log/slog"
	"net/http"

	"mentor-schedule-service/api"
	"mentor-schedule-service/internal/http-server/middleware/auth"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"
	"mentor-schedule-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type BookingGetter interface {
	GetBooking(ctx context.Context, caller models.Caller, bookingID string) (models.Booking, error)
}

type Response struct {
	response.Response
	Booking api.Booking `json:"booking"`
}

func New(log *slog.Logger, svc BookingGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.get.New"

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

		booking, err := svc.GetBooking(r.Context(), caller, id)
		if err != nil {
			log.Error("Failed to get booking", slog.String("booking_id", id), sl.Err(err))
			response.Fail(w, r, err, "failed to get booking")
			return
		}

		log.Info("Booking retrieved", slog.String("booking_id", booking.ID), slog.String("status", string(booking.Status)))
		responseOK(w, r, booking)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, booking models.Booking) {
	render.JSON(w, r, Response{
		Booking: api.FromBooking(booking),
	})
}
