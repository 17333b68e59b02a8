package summary

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

type SummaryGetter interface {
	GetRatingSummary(ctx context.Context, mentorID, viewerID string) (*models.RatingSummary, error)
}

// Response carries a null summary when it is suppressed for the viewer.
type Response struct {
	response.Response
	MentorID string             `json:"mentor_id"`
	Summary  *api.RatingSummary `json:"summary"`
}

func New(log *slog.Logger, getter SummaryGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ratings.summary.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		mentorID := chi.URLParam(r, "mentor_id")

		var viewerID string
		if caller, ok := auth.CallerFrom(r.Context()); ok {
			viewerID = caller.UserID
		}

		s, err := getter.GetRatingSummary(r.Context(), mentorID, viewerID)
		if err != nil {
			log.Error("Failed to get rating summary", sl.Err(err))
			response.Fail(w, r, err, "failed to get rating summary")
			return
		}

		out := Response{MentorID: mentorID}
		if s != nil {
			summary := api.FromRatingSummary(*s, viewerID == mentorID)
			out.Summary = &summary
		}

		log.Debug("Rating summary served", slog.String("mentor_id", mentorID), slog.Bool("suppressed", s == nil))
		render.JSON(w, r, out)
	}
}
