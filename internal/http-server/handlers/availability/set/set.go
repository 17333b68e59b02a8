package set

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

type AvailabilitySetter interface {
	SetAvailability(ctx context.Context, caller models.Caller, mentorID string, a models.Availability) error
	GetAvailability(ctx context.Context, mentorID string) (models.Availability, error)
}

type Request struct {
	api.Availability
}

type Response struct {
	response.Response
	api.Availability
}

func New(log *slog.Logger, setter AvailabilitySetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability.set.New"

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

		a, err := req.Model()
		if err != nil {
			log.Error("Invalid availability", sl.Err(err))
			response.Fail(w, r, err, "invalid availability")
			return
		}

		mentorID := chi.URLParam(r, "mentor_id")

		if err := setter.SetAvailability(r.Context(), caller, mentorID, a); err != nil {
			log.Error("Failed to set availability", sl.Err(err))
			response.Fail(w, r, err, "failed to set availability")
			return
		}

		saved, err := setter.GetAvailability(r.Context(), mentorID)
		if err != nil {
			log.Error("Failed to read back availability", sl.Err(err))
			response.Fail(w, r, err, "failed to get availability")
			return
		}

		log.Info("Availability replaced",
			slog.String("mentor_id", mentorID),
			slog.Int("rules", len(saved.Rules)),
			slog.Int("unavailability_periods", len(saved.Periods)),
		)
		responseOK(w, r, saved)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, a models.Availability) {
	render.JSON(w, r, Response{
		Availability: api.FromAvailability(a),
	})
}
