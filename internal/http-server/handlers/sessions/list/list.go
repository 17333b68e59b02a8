package list

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
	"github.com/go-chi/render"
)

type SessionLister interface {
	GetSessions(ctx context.Context, caller models.Caller, role models.Role) (models.Sessions, error)
}

type Response struct {
	response.Response
	api.Sessions
}

// New lists the caller's sessions. ?role= picks the side of the booking,
// defaulting to the role in the access token.
func New(log *slog.Logger, lister SessionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sessions.list.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		caller, ok := auth.CallerFrom(r.Context())
		if !ok {
			response.Fail(w, r, response.ErrUnauthorized, "")
			return
		}

		role := caller.Role
		if q := r.URL.Query().Get("role"); q != "" {
			role = models.Role(q)
		}

		sessions, err := lister.GetSessions(r.Context(), caller, role)
		if err != nil {
			log.Error("Failed to list sessions", sl.Err(err))
			response.Fail(w, r, err, "failed to list sessions")
			return
		}

		log.Info("Sessions listed",
			slog.String("role", string(role)),
			slog.Int("current", len(sessions.Current)),
			slog.Int("history", len(sessions.History)),
		)
		render.JSON(w, r, Response{Sessions: api.FromSessions(sessions)})
	}
}
