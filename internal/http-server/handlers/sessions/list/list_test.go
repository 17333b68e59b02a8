package list

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mentor-schedule-service/internal/http-server/middleware/auth"
	"mentor-schedule-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	role models.Role
}

func (f *fakeLister) GetSessions(_ context.Context, _ models.Caller, role models.Role) (models.Sessions, error) {
	f.role = role
	return models.Sessions{
		Current: []models.Booking{{ID: "b-1", Status: models.BookingConfirmed}},
		History: []models.Booking{},
	}, nil
}

func TestListSessions(t *testing.T) {
	caller := models.Caller{UserID: "u-1", Role: models.RoleMentor}
	svc := &fakeLister{}
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req = req.WithContext(auth.WithCaller(req.Context(), caller))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleMentor, svc.role, "role defaults to the token role")
	assert.JSONEq(t, `{"current":[{"id":"b-1","mentor_id":"","customer_id":"","slot_start":"0001-01-01T00:00:00Z","slot_end":"0001-01-01T00:00:00Z","status":"confirmed","flagged_by_customer":false,"flagged_by_mentor":false,"created_at":"0001-01-01T00:00:00Z","updated_at":"0001-01-01T00:00:00Z"}],"history":[]}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/sessions?role=customer", nil)
	req = req.WithContext(auth.WithCaller(req.Context(), caller))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, models.RoleCustomer, svc.role)
}

func TestListSessionsRequiresCaller(t *testing.T) {
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), &fakeLister{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
