package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a booking. Values are server-authoritative:
// the client only proposes a transition and reconciles with whatever the
// server decided on the next refetch.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

// TempIDPrefix marks provisional bookings that exist only in the local cache
// while the create request is in flight.
const TempIDPrefix = "temp-"

// PendingBookingNumber is the placeholder shown until the server assigns a
// real booking number.
const PendingBookingNumber = "PENDING..."

var (
	ErrNotFound        = errors.New("booking not found")
	ErrInvalidProposal = errors.New("status change not allowed from current state")
)

// Booking is a single scheduled service engagement as the customer sees it.
// Display fields are denormalized by the server; the client never joins them.
type Booking struct {
	ID            string    `json:"id"`
	BookingNumber string    `json:"booking_number"`
	Status        Status    `json:"status"`
	ScheduledDate string    `json:"scheduled_date"`
	ScheduledTime string    `json:"scheduled_time"`
	Subtotal      string    `json:"subtotal"`
	CreatedAt     time.Time `json:"created_at"`

	ServiceTitle         string `json:"service_title"`
	ProviderBusinessName string `json:"provider_business_name"`
	ProviderBusinessLogo string `json:"provider_business_logo"`
}

// Provisional reports whether the booking is an optimistic placeholder that
// has not yet been confirmed by the server.
func (b Booking) Provisional() bool {
	return strings.HasPrefix(b.ID, TempIDPrefix)
}

// proposableTransitions lists the status changes a client is allowed to
// propose. The server remains the authority on what actually happens.
var proposableTransitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanPropose reports whether a client may propose moving from s to next.
func (s Status) CanPropose(next Status) bool {
	for _, candidate := range proposableTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CreateRequest is the payload for a booking-creation call.
type CreateRequest struct {
	ServiceID     string   `json:"service_id"`
	ProviderID    string   `json:"provider_id"`
	ScheduledDate string   `json:"scheduled_date"`
	ScheduledTime string   `json:"scheduled_time"`
	AddOnIDs      []string `json:"addon_ids,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// StatusUpdate is the payload for a status-change proposal.
type StatusUpdate struct {
	Status             Status `json:"status"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	ProviderNotes      string `json:"provider_notes,omitempty"`
}

// RemoteAPI is the remote booking service contract consumed by the sync
// layer. The caller's bearer token rides in the context.
type RemoteAPI interface {
	ListBookings(ctx context.Context) ([]Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	CreateBooking(ctx context.Context, req CreateRequest) (Booking, error)
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error
	CancelBooking(ctx context.Context, id, reason string) error
	CanReview(ctx context.Context, bookingID string) (bool, error)
}

// EventType identifies booking sync events broadcast after a mutation
// settles.
type EventType string

const (
	EventBookingCreated       EventType = "BookingCreated"
	EventBookingCancelled     EventType = "BookingCancelled"
	EventBookingStatusChanged EventType = "BookingStatusChanged"
	EventListInvalidated      EventType = "BookingListInvalidated"
)

// Event describes a booking state change visible to other screens or
// instances.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	BookingID string    `json:"booking_id,omitempty"`
	Status    Status    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

// EventPublisher broadcasts sync events. Publishing is best effort; the
// settle-time invalidation is the correctness backstop, not the event.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Clock abstracts time for staleness checks and tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
