// Package api implements the REST client for the remote booking service.
// Request and response shapes are owned by the backend; this client carries
// only what the sync layer needs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/serviosync/internal/booking/domain"
)

type tokenKey struct{}

// WithToken stows the caller's bearer token in the context so every request
// issued on behalf of that caller is authorized.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Error is a server-rejected request: the status code plus whatever message
// the backend put in its error payload. The sync layer surfaces Message to
// the initiating screen.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("booking api: %d %s", e.StatusCode, e.Message)
}

// Client talks to the remote booking service. It implements
// domain.RemoteAPI.
type Client struct {
	base   string
	http   *http.Client
	logger *zap.Logger
}

// NewClient constructs a client for the given base URL.
func NewClient(base string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// ListBookings fetches the authenticated user's bookings.
func (c *Client) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	var bookings []domain.Booking
	if err := c.do(ctx, http.MethodGet, "/bookings", nil, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// GetBooking fetches one booking.
func (c *Client) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	var booking domain.Booking
	if err := c.do(ctx, http.MethodGet, "/bookings/"+id, nil, &booking); err != nil {
		return domain.Booking{}, err
	}
	return booking, nil
}

// CreateBooking submits a booking-creation payload and returns the created
// booking with its authoritative id, booking number, and subtotal.
//
// TODO: the backend has no idempotency key on this endpoint, so a
// transport-level retry could create duplicates. Do not add retries here
// until it does.
func (c *Client) CreateBooking(ctx context.Context, req domain.CreateRequest) (domain.Booking, error) {
	var booking domain.Booking
	if err := c.do(ctx, http.MethodPost, "/bookings", req, &booking); err != nil {
		return domain.Booking{}, err
	}
	return booking, nil
}

// UpdateStatus proposes a status transition. Nothing beyond success or
// failure is required of the response; the optimistic value stands until the
// next invalidated refetch.
func (c *Client) UpdateStatus(ctx context.Context, id string, upd domain.StatusUpdate) error {
	return c.do(ctx, http.MethodPatch, "/bookings/"+id+"/status", upd, nil)
}

// CancelBooking requests a customer cancellation.
func (c *Client) CancelBooking(ctx context.Context, id, reason string) error {
	payload := struct {
		Reason string `json:"reason,omitempty"`
	}{Reason: reason}
	return c.do(ctx, http.MethodPost, "/bookings/"+id+"/cancel", payload, nil)
}

// CanReview asks whether the user may review the booking.
func (c *Client) CanReview(ctx context.Context, bookingID string) (bool, error) {
	var resp struct {
		CanReview bool `json:"canReview"`
	}
	if err := c.do(ctx, http.MethodGet, "/reviews/can-review/"+bookingID, nil, &resp); err != nil {
		return false, err
	}
	return resp.CanReview, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// apiError extracts the server's error message, falling back to the HTTP
// status text when the payload is unusable.
func (c *Client) apiError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			apiErr.Message = payload.Message
		} else if payload.Error != "" {
			apiErr.Message = payload.Error
		}
	}
	c.logger.Debug("api error", zap.Int("status", apiErr.StatusCode), zap.String("message", apiErr.Message))
	return apiErr
}
