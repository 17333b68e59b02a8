package rating

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mentor-schedule-service/internal/http-server/middleware/auth"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	stars int
	notes *string
}

func (f *fakeSubmitter) SubmitRating(_ context.Context, caller models.Caller, bookingID string, stars int, notes *string) (models.Booking, error) {
	f.stars, f.notes = stars, notes
	if caller.Role != models.RoleCustomer {
		return models.Booking{}, response.ErrForbidden
	}
	if stars < 1 || stars > 5 {
		return models.Booking{}, response.ErrValidation
	}
	return models.Booking{ID: bookingID, Status: models.BookingCompleted, CustomerRating: &stars}, nil
}

func serve(svc RatingSubmitter, caller *models.Caller, body string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Post("/bookings/{id}/rating", New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc))

	req := httptest.NewRequest(http.MethodPost, "/bookings/b-1/rating", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req = req.WithContext(auth.WithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

var (
	customer = &models.Caller{UserID: "customer-1", Role: models.RoleCustomer}
	mentor   = &models.Caller{UserID: "mentor-1", Role: models.RoleMentor}
)

func TestSubmitRating(t *testing.T) {
	svc := &fakeSubmitter{}
	rec := serve(svc, customer, `{"rating":4,"notes":"helpful"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, svc.stars)
	require.NotNil(t, svc.notes)
	assert.Equal(t, "helpful", *svc.notes)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
	assert.Contains(t, rec.Body.String(), `"customer_rating":4`)
}

func TestSubmitRatingErrors(t *testing.T) {
	tests := []struct {
		name     string
		caller   *models.Caller
		body     string
		wantCode int
		wantErr  string
	}{
		{"no caller", nil, `{"rating":4}`, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad json", customer, `{"rating":`, http.StatusBadRequest, "FAILED_TO_DECODE"},
		{"out of range", customer, `{"rating":6}`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"mentor", mentor, `{"rating":4}`, http.StatusForbidden, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&fakeSubmitter{}, tt.caller, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantErr)
		})
	}
}
