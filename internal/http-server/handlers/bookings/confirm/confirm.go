package confirm

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

type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, caller models.Caller, bookingID, intentID string) (models.Booking, error)
}

type Request struct {
	api.ConfirmRequest
}

type Response struct {
	response.Response
	Booking api.Booking `json:"booking"`
}

func New(log *slog.Logger, confirmer PaymentConfirmer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.confirm.New"

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

		if req.PaymentIntentID == "" {
			log.Error("payment_intent_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "payment_intent_id is required"))
			return
		}

		id := chi.URLParam(r, "id")

		booking, err := confirmer.ConfirmPayment(r.Context(), caller, id, req.PaymentIntentID)
		if err != nil {
			log.Error("Failed to confirm booking", slog.String("booking_id", id), sl.Err(err))
			response.Fail(w, r, err, "failed to confirm booking")
			return
		}

		log.Info("Booking confirmed", slog.String("booking_id", booking.ID))
		responseOK(w, r, booking)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, booking models.Booking) {
	render.JSON(w, r, Response{
		Booking: api.FromBooking(booking),
	})
}
