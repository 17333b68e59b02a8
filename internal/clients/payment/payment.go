// Package payment talks to the Payment Processor that captures session fees.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mentor-schedule-service/pkg/response"
)

const statusSucceeded = "succeeded"

type Intent struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// VerifyIntent checks that the payment intent was captured for bookingID.
// Transport failures and processor errors wrap ErrExternalService; an intent
// that is unknown, unpaid or paid for another booking wraps ErrValidation.
func (c *Client) VerifyIntent(ctx context.Context, intentID, bookingID string) (Intent, error) {
	const op = "clients.payment.VerifyIntent"

	if intentID == "" {
		return Intent{}, fmt.Errorf("%s: %w: payment_intent_id is required", op, response.ErrValidation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payment_intents/"+url.PathEscape(intentID), nil)
	if err != nil {
		return Intent{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Intent{}, fmt.Errorf("%s: %w: %v", op, response.ErrExternalService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Intent{}, fmt.Errorf("%s: %w: unknown payment intent %q", op, response.ErrValidation, intentID)
	case resp.StatusCode >= 300:
		return Intent{}, fmt.Errorf("%s: %w: processor returned %d", op, response.ErrExternalService, resp.StatusCode)
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return Intent{}, fmt.Errorf("%s: %w: decode: %v", op, response.ErrExternalService, err)
	}

	if intent.Status != statusSucceeded {
		return intent, fmt.Errorf("%s: %w: payment is %s", op, response.ErrValidation, intent.Status)
	}
	if id, ok := intent.Metadata["booking_id"]; ok && id != bookingID {
		return intent, fmt.Errorf("%s: %w: payment belongs to another booking", op, response.ErrValidation)
	}

	return intent, nil
}
