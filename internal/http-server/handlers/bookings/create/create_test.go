package create

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mentor-schedule-service/internal/http-server/middleware/auth"
	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReserver struct {
	err    error
	caller models.Caller
	start  time.Time
}

func (f *fakeReserver) ReserveSlot(_ context.Context, caller models.Caller, mentorID string, start, end time.Time) (models.Booking, error) {
	f.caller, f.start = caller, start
	if f.err != nil {
		return models.Booking{}, f.err
	}
	return models.Booking{
		ID:         "b-1",
		MentorID:   mentorID,
		CustomerID: caller.UserID,
		SlotStart:  start,
		SlotEnd:    end,
		Status:     models.BookingScheduled,
	}, nil
}

func serve(t *testing.T, svc SlotReserver, caller *models.Caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Post("/bookings", New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc))

	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req = req.WithContext(auth.WithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"mentor_id":"mentor-1","slot_start":"2026-10-19T16:00:00Z","slot_end":"2026-10-19T17:00:00Z"}`

var customer = &models.Caller{UserID: "customer-1", Role: models.RoleCustomer}

func TestCreateBooking(t *testing.T) {
	svc := &fakeReserver{}
	rec := serve(t, svc, customer, validBody)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Booking struct {
			ID         string `json:"id"`
			CustomerID string `json:"customer_id"`
			Status     string `json:"status"`
		} `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "b-1", resp.Booking.ID)
	assert.Equal(t, "customer-1", resp.Booking.CustomerID)
	assert.Equal(t, "scheduled", resp.Booking.Status)
	assert.Equal(t, *customer, svc.caller)
	assert.True(t, svc.start.Equal(time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC)))
}

func TestCreateBookingErrors(t *testing.T) {
	tests := []struct {
		name     string
		caller   *models.Caller
		body     string
		svcErr   error
		wantCode int
		wantErr  string
	}{
		{"no caller", nil, validBody, nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad json", customer, `{`, nil, http.StatusBadRequest, "FAILED_TO_DECODE"},
		{"missing mentor", customer, `{"slot_start":"2026-10-19T16:00:00Z","slot_end":"2026-10-19T17:00:00Z"}`, nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"missing bounds", customer, `{"mentor_id":"mentor-1"}`, nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"taken", customer, validBody, fmt.Errorf("service.ReserveSlot: %w", response.ErrConflict), http.StatusConflict, "SLOT_NOT_AVAILABLE"},
		{"locked", customer, validBody, response.ErrLocked, http.StatusLocked, "LOCKED"},
		{"unknown mentor", customer, validBody, response.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"internal", customer, validBody, fmt.Errorf("disk on fire"), http.StatusInternalServerError, "REQUEST_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeReserver{err: tt.svcErr}, tt.caller, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantErr)
			assert.NotContains(t, rec.Body.String(), "disk on fire")
		})
	}
}
