package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/example/serviosync/internal/auth"
	"github.com/example/serviosync/internal/booking/cache"
	"github.com/example/serviosync/internal/booking/domain"
	"github.com/example/serviosync/internal/booking/handler"
	"github.com/example/serviosync/internal/booking/review"
	booksync "github.com/example/serviosync/internal/booking/sync"
	"github.com/example/serviosync/internal/session"
)

const testSecret = "test-secret"

type scriptedAPI struct {
	bookings  []domain.Booking
	reviewable map[string]bool
}

func (s *scriptedAPI) ListBookings(context.Context) ([]domain.Booking, error) {
	return append([]domain.Booking(nil), s.bookings...), nil
}

func (s *scriptedAPI) GetBooking(_ context.Context, id string) (domain.Booking, error) {
	for _, b := range s.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Booking{}, domain.ErrNotFound
}

func (s *scriptedAPI) CreateBooking(_ context.Context, req domain.CreateRequest) (domain.Booking, error) {
	created := domain.Booking{
		ID:            "b-new",
		BookingNumber: "SV-2000",
		Status:        domain.StatusPending,
		ScheduledDate: req.ScheduledDate,
		ScheduledTime: req.ScheduledTime,
		Subtotal:      "90.00",
	}
	s.bookings = append(s.bookings, created)
	return created, nil
}

func (s *scriptedAPI) UpdateStatus(context.Context, string, domain.StatusUpdate) error { return nil }

func (s *scriptedAPI) CancelBooking(context.Context, string, string) error { return nil }

func (s *scriptedAPI) CanReview(_ context.Context, bookingID string) (bool, error) {
	return s.reviewable[bookingID], nil
}

func newServer(t *testing.T, remote *scriptedAPI, signedIn bool) *httptest.Server {
	t.Helper()
	store := cache.NewStore(nil, nil, cache.Config{})
	sessions := session.NewMemoryStore(nil)
	if signedIn {
		require.NoError(t, sessions.Save(context.Background(), "u1", "tok-upstream", 0))
	}
	syncer := booksync.New(store, remote, sessions, nil, nil, nil)
	gate := review.NewGate(remote, nil, nil, 0)
	srv := httptest.NewServer(handler.NewHTTP(syncer, gate, testSecret).Router())
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestListBookingsWithReviewLabels(t *testing.T) {
	remote := &scriptedAPI{
		bookings: []domain.Booking{
			{ID: "b-1", Status: domain.StatusCompleted},
			{ID: "b-2", Status: domain.StatusAccepted},
		},
		reviewable: map[string]bool{"b-1": true},
	}
	srv := newServer(t, remote, true)
	token := signToken(t, "u1", "customer")

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/bookings?include_review=true", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Bookings []struct {
			ID        string  `json:"id"`
			Status    string  `json:"status"`
			CanReview *bool   `json:"can_review"`
		} `json:"bookings"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Bookings, 2)

	byID := map[string]*bool{}
	for _, b := range payload.Bookings {
		byID[b.ID] = b.CanReview
	}
	require.NotNil(t, byID["b-1"])
	require.True(t, *byID["b-1"])
	// Only completed bookings carry the label.
	require.Nil(t, byID["b-2"])
}

func TestGuestGetsSignInPrompt(t *testing.T) {
	srv := newServer(t, &scriptedAPI{}, false)
	token := signToken(t, "u1", "customer")

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/bookings", token, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "sign_in_required", payload["error"])
}

func TestCreateBookingValidatesPayload(t *testing.T) {
	srv := newServer(t, &scriptedAPI{}, true)
	token := signToken(t, "u1", "customer")

	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/bookings", token, `{"service_id":"svc-1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, srv.URL+"/v1/bookings", token,
		`{"service_id":"svc-1","scheduled_date":"2024-05-01","scheduled_time":"10:00"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.Booking
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Equal(t, "b-new", created.ID)
}

func TestStatusUpdateRequiresProviderRole(t *testing.T) {
	remote := &scriptedAPI{bookings: []domain.Booking{{ID: "b-1", Status: domain.StatusPending}}}
	srv := newServer(t, remote, true)

	customer := signToken(t, "u1", "customer")
	resp := doRequest(t, http.MethodPatch, srv.URL+"/v1/bookings/b-1/status", customer, `{"status":"accepted"}`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	provider := signToken(t, "u1", "provider")
	resp = doRequest(t, http.MethodPatch, srv.URL+"/v1/bookings/b-1/status", provider, `{"status":"accepted"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	srv := newServer(t, &scriptedAPI{}, false)
	token := signToken(t, "u1", "customer")

	resp := doRequest(t, http.MethodPut, srv.URL+"/v1/session", token, `{"upstream_token":"tok-upstream"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/bookings", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, srv.URL+"/v1/session", token, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/bookings", token, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
