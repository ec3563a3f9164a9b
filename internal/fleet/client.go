package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flotteq/booking-service/pkg/logging"
)

const defaultTimeout = 20 * time.Second

// APIError is a structured error returned by the core API. Message is
// safe to surface to the user (e.g. "Slot no longer available").
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fleet: core api status %d: %s", e.StatusCode, e.Message)
}

// ErrorMessage extracts a user-facing message from an error returned by
// this client. Structured core-API messages are returned verbatim;
// anything else falls back to a generic string.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "The booking could not be created. Please try again."
}

// Client talks to the FlotteQ core REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a core API client. token authenticates this service
// against the core API; the acting user is passed per call.
func NewClient(baseURL, token string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Component("fleet"),
	}
}

// ListVehicles returns the vehicles belonging to the given user.
func (c *Client) ListVehicles(ctx context.Context, userID string) ([]Vehicle, error) {
	var out vehiclesResponse
	if err := c.do(ctx, http.MethodGet, "/vehicles", userID, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Vehicles, nil
}

// ListAvailableSlots returns all slots (available or not) for a partner
// service on a date. Filtering to available windows is the caller's job.
func (c *Client) ListAvailableSlots(ctx context.Context, partnerID, serviceID, date string, durationMinutes int) ([]Slot, error) {
	path := fmt.Sprintf("/partners/%s/services/%s/slots", url.PathEscape(partnerID), url.PathEscape(serviceID))
	query := url.Values{
		"date":     {date},
		"duration": {strconv.Itoa(durationMinutes)},
	}
	var out slotsResponse
	if err := c.do(ctx, http.MethodGet, path, "", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

// CreateBooking creates a booking. Not idempotent; callers must ensure
// at most one call per user confirmation.
func (c *Client) CreateBooking(ctx context.Context, userID string, req BookingRequest) (*Booking, error) {
	var out Booking
	if err := c.do(ctx, http.MethodPost, "/bookings", userID, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, userID string, query url.Values, in, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("fleet: missing core api base url")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("fleet: marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("fleet: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fleet: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fleet: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("fleet: unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) apiError(status int, body []byte) error {
	var e apiErrorBody
	msg := ""
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			msg = e.Message
		} else if e.Error != "" {
			msg = e.Error
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 300 {
			msg = msg[:300]
		}
	}
	c.logger.Warn("core api error", "status", status, "message", msg)
	return &APIError{StatusCode: status, Message: msg}
}
