package flag

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mentor-schedule-service/internal/http-server/middleware/auth"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlagger struct {
	err error
}

func (f *fakeFlagger) FlagSession(_ context.Context, caller models.Caller, bookingID string) (models.Booking, error) {
	if f.err != nil {
		return models.Booking{}, f.err
	}
	return models.Booking{
		ID:                bookingID,
		Status:            models.BookingConfirmed,
		FlaggedByCustomer: caller.Role == models.RoleCustomer,
		FlaggedByMentor:   caller.Role == models.RoleMentor,
	}, nil
}

func serve(svc SessionFlagger, caller *models.Caller) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Post("/bookings/{id}/flag", New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc))

	req := httptest.NewRequest(http.MethodPost, "/bookings/b-1/flag", nil)
	if caller != nil {
		req = req.WithContext(auth.WithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestFlagSession(t *testing.T) {
	rec := serve(&fakeFlagger{}, &models.Caller{UserID: "customer-1", Role: models.RoleCustomer})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"flagged_by_customer":true`)
	assert.Contains(t, rec.Body.String(), `"flagged_by_mentor":false`)
}

func TestFlagSessionErrors(t *testing.T) {
	rec := serve(&fakeFlagger{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(&fakeFlagger{err: response.ErrForbidden}, &models.Caller{UserID: "stranger", Role: models.RoleCustomer})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")

	rec = serve(&fakeFlagger{err: response.ErrNotFound}, &models.Caller{UserID: "customer-1", Role: models.RoleCustomer})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
