package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/serviosync/internal/auth"
	"github.com/example/serviosync/internal/booking/api"
	"github.com/example/serviosync/internal/booking/domain"
	"github.com/example/serviosync/internal/booking/review"
	booksync "github.com/example/serviosync/internal/booking/sync"
	"github.com/example/serviosync/internal/session"
)

// HTTP exposes the synced booking view to the mobile screens.
type HTTP struct {
	syncer    *booksync.Syncer
	gate      *review.Gate
	jwtSecret string
}

// NewHTTP constructs the handler.
func NewHTTP(syncer *booksync.Syncer, gate *review.Gate, jwtSecret string) *HTTP {
	return &HTTP{syncer: syncer, gate: gate, jwtSecret: jwtSecret}
}

// Router builds the chi router with all endpoints and middlewares. Extra
// middlewares run after authentication so they see the caller's claims.
func (h *HTTP) Router(extra ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.jwtSecret, "customer", "provider"))
		r.Use(extra...)
		r.Get("/v1/bookings", h.listBookings)
		r.Get("/v1/bookings/{id}", h.getBooking)
		r.Post("/v1/bookings", h.createBooking)
		r.Post("/v1/bookings/{id}/cancel", h.cancelBooking)
		r.Patch("/v1/bookings/{id}/status", h.updateStatus)
		r.Put("/v1/session", h.saveSession)
		r.Delete("/v1/session", h.deleteSession)
	})
	return r
}

// bookingView is a Booking plus the review-eligibility label, present only
// on completed bookings when the caller asked for it.
type bookingView struct {
	domain.Booking
	CanReview *bool `json:"can_review,omitempty"`
}

func (h *HTTP) listBookings(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing claims", http.StatusUnauthorized)
		return
	}
	userID := claims.UserID()

	bookings, err := h.syncer.ListBookings(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	views := make([]bookingView, len(bookings))
	for i, b := range bookings {
		views[i] = bookingView{Booking: b}
	}

	if r.URL.Query().Get("include_review") == "true" {
		var completed []string
		for _, b := range bookings {
			if b.Status == domain.StatusCompleted {
				completed = append(completed, b.ID)
			}
		}
		if len(completed) > 0 {
			authed, err := h.syncer.Authorize(r.Context(), userID)
			if err != nil {
				h.writeError(w, err)
				return
			}
			labels := h.gate.CheckBatch(authed, completed)
			for i := range views {
				if eligible, ok := labels[views[i].ID]; ok {
					value := eligible
					views[i].CanReview = &value
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"bookings": views})
}

func (h *HTTP) getBooking(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing claims", http.StatusUnauthorized)
		return
	}
	booking, err := h.syncer.GetBooking(r.Context(), claims.UserID(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *HTTP) createBooking(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing claims", http.StatusUnauthorized)
		return
	}
	var payload domain.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if payload.ServiceID == "" || payload.ScheduledDate == "" || payload.ScheduledTime == "" {
		http.Error(w, "service_id, scheduled_date and scheduled_time are required", http.StatusBadRequest)
		return
	}
	created, err := h.syncer.CreateBooking(r.Context(), claims.UserID(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *HTTP) cancelBooking(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing claims", http.StatusUnauthorized)
		return
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	if err := h.syncer.CancelBooking(r.Context(), claims.UserID(), chi.URLParam(r, "id"), payload.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusCancelled)})
}

func (h *HTTP) updateStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing claims", http.StatusUnauthorized)
		return
	}
	// Provider-side transitions only; customers cancel through the cancel
	// endpoint.
	if claims.Role != "provider" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var payload domain.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.syncer.UpdateStatus(r.Context(), claims.UserID(), chi.URLParam(r, "id"), payload); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(payload.Status)})
}

func (h *HTTP) saveSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing claims", http.StatusUnauthorized)
		return
	}
	var payload struct {
		UpstreamToken string `json:"upstream_token"`
		TTLSeconds    int    `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UpstreamToken == "" {
		http.Error(w, "upstream_token is required", http.StatusBadRequest)
		return
	}
	ttl := time.Duration(payload.TTLSeconds) * time.Second
	if err := h.syncer.SignIn(r.Context(), claims.UserID(), payload.UpstreamToken, ttl); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) deleteSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing claims", http.StatusUnauthorized)
		return
	}
	if err := h.syncer.SignOut(r.Context(), claims.UserID()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps sync-layer errors onto the responses the screens act on:
// guest state prompts sign-in, server rejections pass the backend's message
// through for the alert dialog, everything else is a generic upstream
// failure.
func (h *HTTP) writeError(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	switch {
	case errors.Is(err, session.ErrNoSession):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "sign_in_required"})
	case errors.Is(err, domain.ErrInvalidProposal):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.StatusCode, map[string]string{"error": apiErr.Message})
	default:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "booking service unavailable"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
