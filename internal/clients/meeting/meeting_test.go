package meeting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var booking = models.Booking{
	ID:        "b-1",
	SlotStart: time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC),
	SlotEnd:   time.Date(2026, 10, 19, 17, 0, 0, 0, time.UTC),
	Status:    models.BookingConfirmed,
}

func TestCreateRoom(t *testing.T) {
	var got createRoomRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms", r.URL.Path)

		tok, err := jwt.Parse(r.Header.Get("Authorization"), func(*jwt.Token) (any, error) {
			return []byte("secret"), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !tok.Valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		claims := tok.Claims.(jwt.MapClaims)
		assert.Equal(t, "key", claims["apikey"])

		assert.NoError(t, render.DecodeJSON(r.Body, &got))
		render.JSON(w, r, createRoomResponse{RoomID: "abcd-efgh"})
	}))
	defer srv.Close()

	c := New(srv.URL, "https://meet.example/", "key", "secret", time.Second)
	url, err := c.CreateRoom(context.Background(), booking)
	require.NoError(t, err)

	assert.Equal(t, "https://meet.example/abcd-efgh", url)
	assert.Equal(t, "booking_b-1", got.CustomRoomID)
	assert.Equal(t, 60, got.DurationMin)
}

func TestCreateRoomFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "server error", handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{name: "empty room", handler: func(w http.ResponseWriter, r *http.Request) { render.JSON(w, r, createRoomResponse{}) }},
		{name: "bad body", handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("<html>")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := New(srv.URL, "https://meet.example", "key", "secret", time.Second).CreateRoom(context.Background(), booking)
			assert.ErrorIs(t, err, response.ErrExternalService)
		})
	}
}
