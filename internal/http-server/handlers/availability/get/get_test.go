package get

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mentor-schedule-service/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGetter struct {
	err      error
	mentorID string
}

func (f *fakeGetter) GetAvailability(_ context.Context, mentorID string) (models.Availability, error) {
	f.mentorID = mentorID
	if f.err != nil {
		return models.Availability{}, f.err
	}
	return models.Availability{
		Rules: []models.AvailabilityRule{
			{ID: "r-1", MentorID: mentorID, DayOfWeek: models.Monday, StartTime: 9 * 60, EndTime: 17 * 60},
		},
		Settings: models.DefaultCalendarSettings(mentorID),
	}, nil
}

func serve(svc AvailabilityGetter) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Get("/mentors/{mentor_id}/availability", New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc))

	req := httptest.NewRequest(http.MethodGet, "/mentors/mentor-1/availability", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetAvailability(t *testing.T) {
	svc := &fakeGetter{}
	rec := serve(svc)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mentor-1", svc.mentorID)

	var resp struct {
		Rules []struct {
			DayOfWeek int    `json:"day_of_week"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
		} `json:"rules"`
		Settings struct {
			Timezone string `json:"timezone"`
		} `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rules, 1)
	assert.Equal(t, 0, resp.Rules[0].DayOfWeek)
	assert.Equal(t, "09:00", resp.Rules[0].StartTime)
	assert.Equal(t, "17:00", resp.Rules[0].EndTime)
	assert.Equal(t, models.DefaultTimezone, resp.Settings.Timezone)
}

func TestGetAvailabilityStorageFailure(t *testing.T) {
	rec := serve(&fakeGetter{err: errors.New("storage.sqlstore.GetAvailability: connection refused")})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "REQUEST_FAILED")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
