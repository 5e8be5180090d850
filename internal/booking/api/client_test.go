package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/serviosync/internal/booking/domain"
)

func TestListBookingsSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/bookings", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]domain.Booking{{ID: "b-1", Status: domain.StatusPending}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	ctx := WithToken(context.Background(), "tok-123")
	bookings, err := client.ListBookings(ctx)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	require.Equal(t, "Bearer tok-123", gotAuth)
}

func TestCreateBookingDecodesServerBooking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req domain.CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "2024-05-01", req.ScheduledDate)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.Booking{
			ID:            "b-1",
			BookingNumber: "SV-1001",
			Status:        domain.StatusPending,
			Subtotal:      "150.00",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	created, err := client.CreateBooking(context.Background(), domain.CreateRequest{
		ServiceID:     "svc-1",
		ScheduledDate: "2024-05-01",
		ScheduledTime: "10:00",
	})
	require.NoError(t, err)
	require.Equal(t, "b-1", created.ID)
	require.Equal(t, "SV-1001", created.BookingNumber)
}

func TestServerRejectionCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "cannot cancel a completed booking"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	err := client.CancelBooking(context.Background(), "b-1", "changed my mind")
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "cannot cancel a completed booking", apiErr.Message)
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.GetBooking(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCanReviewDecodesFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reviews/can-review/b-9", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]bool{"canReview": true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	ok, err := client.CanReview(context.Background(), "b-9")
	require.NoError(t, err)
	require.True(t, ok)
}
