// Package meeting provisions video rooms for confirmed sessions.
package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 10 * time.Minute

type Client struct {
	baseURL string
	joinURL string
	apiKey  string
	secret  []byte
	http    *http.Client
	nowFunc func() time.Time
}

func New(baseURL, joinURL, apiKey, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		joinURL: strings.TrimRight(joinURL, "/"),
		apiKey:  apiKey,
		secret:  []byte(secret),
		http:    &http.Client{Timeout: timeout},
		nowFunc: time.Now,
	}
}

type createRoomRequest struct {
	CustomRoomID string    `json:"customRoomId"`
	Description  string    `json:"description"`
	StartsAt     time.Time `json:"startsAt"`
	DurationMin  int       `json:"durationMin"`
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

// token is the short-lived HS256 credential the provisioner expects.
func (c *Client) token() (string, error) {
	now := c.nowFunc()
	claims := jwt.MapClaims{
		"apikey":      c.apiKey,
		"permissions": []string{"allow_join", "allow_mod"},
		"version":     2,
		"iat":         now.Unix(),
		"exp":         now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// CreateRoom provisions a room for the booking and returns its join URL.
// Rooms are keyed by booking id, so retrying for the same booking is safe
// on the provisioner side.
func (c *Client) CreateRoom(ctx context.Context, b models.Booking) (string, error) {
	const op = "clients.meeting.CreateRoom"

	tok, err := c.token()
	if err != nil {
		return "", fmt.Errorf("%s: sign token: %w", op, err)
	}

	body, err := json.Marshal(createRoomRequest{
		CustomRoomID: "booking_" + b.ID,
		Description:  "Mentoring session " + b.ID,
		StartsAt:     b.SlotStart.UTC(),
		DurationMin:  int(b.SlotEnd.Sub(b.SlotStart) / time.Minute),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, response.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: %w: provisioner returned %d", op, response.ErrExternalService, resp.StatusCode)
	}

	var out createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: %w: decode: %v", op, response.ErrExternalService, err)
	}
	if out.RoomID == "" {
		return "", fmt.Errorf("%s: %w: empty room id", op, response.ErrExternalService)
	}

	return c.joinURL + "/" + out.RoomID, nil
}
