package get

import (
	"context"
	"log/slog"
	"net/http"

	"mentor-schedule-service/api"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"
	"mentor-schedule-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type AvailabilityGetter interface {
	GetAvailability(ctx context.Context, mentorID string) (models.Availability, error)
}

type Response struct {
	response.Response
	api.Availability
}

func New(log *slog.Logger, getter AvailabilityGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability.get.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		mentorID := chi.URLParam(r, "mentor_id")

		a, err := getter.GetAvailability(r.Context(), mentorID)
		if err != nil {
			log.Error("Failed to get availability", sl.Err(err))
			response.Fail(w, r, err, "failed to get availability")
			return
		}

		log.Info("Availability retrieved", slog.String("mentor_id", mentorID), slog.Int("rules", len(a.Rules)))
		responseOK(w, r, a)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, a models.Availability) {
	render.JSON(w, r, Response{
		Availability: api.FromAvailability(a),
	})
}
