package create

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mentor-schedule-service/api"
	"mentor-schedule-service/internal/http-server/middleware/auth"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"
	"mentor-schedule-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type SlotReserver interface {
	ReserveSlot(ctx context.Context, caller models.Caller, mentorID string, start, end time.Time) (models.Booking, error)
}

type Request struct {
	api.BookingRequest
}

type Response struct {
	response.Response
	Booking api.Booking `json:"booking"`
}

func New(log *slog.Logger, reserver SlotReserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.create.New"

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

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		log.Info("Request body decoded", slog.Any("request", req))

		if req.MentorID == "" {
			log.Error("mentor_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "mentor_id is required"))
			return
		}

		if req.SlotStart.IsZero() || req.SlotEnd.IsZero() {
			log.Error("slot bounds are empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "slot_start and slot_end are required"))
			return
		}

		booking, err := reserver.ReserveSlot(r.Context(), caller, req.MentorID, req.SlotStart, req.SlotEnd)
		if err != nil {
			log.Error("Failed to reserve slot", sl.Err(err))
			response.Fail(w, r, err, "failed to create booking")
			return
		}

		log.Info("Booking created", slog.String("booking_id", booking.ID))

		w.WriteHeader(http.StatusCreated)
		responseOK(w, r, booking)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, booking models.Booking) {
	render.JSON(w, r, Response{
		Booking: api.FromBooking(booking),
	})
}
