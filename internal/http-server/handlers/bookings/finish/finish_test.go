package finish

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

type fakeFinisher struct {
	bookingID string
	stars     *int
}

func (f *fakeFinisher) FinishSession(_ context.Context, caller models.Caller, bookingID string, stars *int, _ *string) (models.Booking, error) {
	f.bookingID, f.stars = bookingID, stars
	b := models.Booking{ID: bookingID, Status: models.BookingConfirmed}
	switch {
	case caller.Role == models.RoleMentor:
		b.Status = models.BookingRequiresRating
	case stars == nil:
		return b, response.ErrValidation
	default:
		b.Status = models.BookingCompleted
		b.CustomerRating = stars
	}
	return b, nil
}

func serve(svc SessionFinisher, role models.Role, payload string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Post("/bookings/{id}/finish", New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc))

	req := httptest.NewRequest(http.MethodPost, "/bookings/b-1/finish", strings.NewReader(payload))
	req = req.WithContext(auth.WithCaller(req.Context(), models.Caller{UserID: "u", Role: role}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMentorFinishWithoutBody(t *testing.T) {
	svc := &fakeFinisher{}
	rec := serve(svc, models.RoleMentor, "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "b-1", svc.bookingID)
	assert.Nil(t, svc.stars)
	assert.Contains(t, rec.Body.String(), `"status":"requires_rating"`)
}

func TestCustomerFinish(t *testing.T) {
	svc := &fakeFinisher{}
	rec := serve(svc, models.RoleCustomer, `{"rating":5,"notes":"thanks"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.stars)
	assert.Equal(t, 5, *svc.stars)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
	assert.Contains(t, rec.Body.String(), `"customer_rating":5`)

	rec = serve(svc, models.RoleCustomer, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_FAILED")
}
