package get

import (
	"context"
	"log/slog"
	"net/http"

	"mentor-schedule-service/api"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/internal/schedule"
	"mentor-schedule-service/pkg/response"
	"mentor-schedule-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type SlotGetter interface {
	GetAvailableSlots(ctx context.Context, mentorID string, r schedule.Range) (models.AvailableSlots, error)
}

type Response struct {
	response.Response
	api.Slots
}

func New(log *slog.Logger, getter SlotGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.slots.get.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		mentorID := chi.URLParam(r, "mentor_id")
		q := r.URL.Query()

		rng, err := schedule.ParseRange(q.Get("start_date"), q.Get("end_date"))
		if err != nil {
			log.Error("Invalid date range", sl.Err(err))
			response.Fail(w, r, err, "invalid date range")
			return
		}

		slots, err := getter.GetAvailableSlots(r.Context(), mentorID, rng)
		if err != nil {
			log.Error("Failed to get slots", sl.Err(err))
			response.Fail(w, r, err, "failed to get slots")
			return
		}

		log.Info("Slots retrieved", slog.String("mentor_id", mentorID), slog.Int("count", len(slots.Slots)))
		responseOK(w, r, slots)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, slots models.AvailableSlots) {
	render.JSON(w, r, Response{
		Slots: api.FromSlots(slots),
	})
}
