package finish

import (
	"context"
	"errors"
	"io"
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

type SessionFinisher interface {
	FinishSession(ctx context.Context, caller models.Caller, bookingID string, stars *int, notes *string) (models.Booking, error)
}

type Request struct {
	api.FinishRequest
}

type Response struct {
	response.Response
	Status  string      `json:"status"`
	Booking api.Booking `json:"booking"`
}

// New finishes a session for the caller. The body is optional for the
// mentor, who cannot rate.
func New(log *slog.Logger, finisher SessionFinisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.finish.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		caller, ok := auth.CallerFrom(r.Context())
		if !ok {
			response.Fail(w, r, response.ErrUnauthorized, "")
			return
		}

		var req Request
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		id := chi.URLParam(r, "id")

		booking, err := finisher.FinishSession(r.Context(), caller, id, req.Rating, req.Notes)
		if err != nil {
			log.Error("Failed to finish session", slog.String("booking_id", id), sl.Err(err))
			response.Fail(w, r, err, "failed to finish session")
			return
		}

		log.Info("Session finished",
			slog.String("booking_id", booking.ID),
			slog.String("actor", string(caller.Role)),
			slog.String("status", string(booking.Status)),
		)
		responseOK(w, r, booking)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, booking models.Booking) {
	render.JSON(w, r, Response{
		Status:  string(booking.Status),
		Booking: api.FromBooking(booking),
	})
}
