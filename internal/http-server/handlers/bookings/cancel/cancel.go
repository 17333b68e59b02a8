package cancel

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

type BookingCanceller interface {
	CancelBooking(ctx context.Context, caller models.Caller, bookingID string) (models.Booking, error)
}

type Response struct {
	response.Response
	Booking api.Booking `json:"booking"`
}

func New(log *slog.Logger, svc BookingCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.cancel.New"

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

		booking, err := svc.CancelBooking(r.Context(), caller, id)
		if err != nil {
			log.Error("Failed to cancel booking", slog.String("booking_id", id), sl.Err(err))
			response.Fail(w, r, err, "failed to cancel booking")
			return
		}

		log.Info("Booking cancelled", slog.String("booking_id", booking.ID), slog.String("status", string(booking.Status)))
		responseOK(w, r, booking)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, booking models.Booking) {
	render.JSON(w, r, Response{
		Booking: api.FromBooking(booking),
	})
}
