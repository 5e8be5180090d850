// Package sync keeps the local booking cache consistent with the remote
// booking service. Mutations apply optimistically, roll back on failure, and
// always invalidate the list scope on settle so the next read converges on
// server truth.
package sync

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/serviosync/internal/booking/api"
	"github.com/example/serviosync/internal/booking/cache"
	"github.com/example/serviosync/internal/booking/domain"
	"github.com/example/serviosync/internal/session"
)

const revalidateTimeout = 10 * time.Second

// Syncer coordinates reads and optimistic mutations against the shared
// booking cache. Mutations are not serialized against each other: the last
// cache write wins locally and the mandatory settle-time invalidation is the
// correctness backstop.
type Syncer struct {
	cache    *cache.Store
	remote   domain.RemoteAPI
	sessions session.Store
	events   domain.EventPublisher
	clock    domain.Clock
	logger   *zap.Logger
	tracer   trace.Tracer

	mu       sync.Mutex
	inflight map[string]*inflightFetch
}

type inflightFetch struct {
	cancel context.CancelFunc
}

// New constructs a Syncer with the required collaborators. events may be
// nil; publishing is best effort.
func New(store *cache.Store, remote domain.RemoteAPI, sessions session.Store, events domain.EventPublisher, clock domain.Clock, logger *zap.Logger) *Syncer {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		cache:    store,
		remote:   remote,
		sessions: sessions,
		events:   events,
		clock:    clock,
		logger:   logger,
		tracer:   otel.Tracer("booking.sync"),
		inflight: make(map[string]*inflightFetch),
	}
}

// ListBookings returns the user's bookings, serving from cache while fresh
// and refetching otherwise. A fetch failure leaves prior cached data in
// place.
func (s *Syncer) ListBookings(ctx context.Context, userID string) ([]domain.Booking, error) {
	// Session first: a signed-out user gets guest state even if a cached
	// list is still lingering.
	authed, err := s.Authorize(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.cache.List(userID); ok {
		return cached, nil
	}

	fetchCtx, cancel := context.WithCancel(authed)
	done := s.beginFetch(listKey(userID), cancel)
	defer done()

	bookings, err := s.remote.ListBookings(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("refresh bookings: %w", err)
	}
	// A mutation may have superseded this fetch after the response arrived;
	// its optimistic write must not be clobbered by the stale result.
	if err := fetchCtx.Err(); err != nil {
		return nil, err
	}
	s.cache.SetList(userID, bookings)
	return bookings, nil
}

// GetBooking returns a booking detail. A cached value is returned
// synchronously while a background revalidation runs, so repeat visits never
// show a blank screen; a cold read blocks on the fetch.
func (s *Syncer) GetBooking(ctx context.Context, userID, bookingID string) (domain.Booking, error) {
	authed, err := s.Authorize(ctx, userID)
	if err != nil {
		return domain.Booking{}, err
	}

	if cached, ok := s.cache.Detail(bookingID); ok {
		s.revalidateDetail(authed, bookingID)
		return cached, nil
	}

	booking, err := s.remote.GetBooking(authed, bookingID)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("fetch booking %s: %w", bookingID, err)
	}
	s.cache.SetDetail(booking)
	return booking, nil
}

// revalidateDetail refreshes one detail entry in the background. The refresh
// outlives the initiating request on purpose, but stays cancellable so a
// mutation on the same booking can abort it before applying its optimistic
// value.
func (s *Syncer) revalidateDetail(ctx context.Context, bookingID string) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), revalidateTimeout)
	done := s.beginFetch(detailKey(bookingID), cancel)
	go func() {
		defer done()
		booking, err := s.remote.GetBooking(detached, bookingID)
		if err != nil {
			// Keep the stale value; the next navigation retries.
			s.logger.Debug("detail revalidation failed", zap.String("booking_id", bookingID), zap.Error(err))
			return
		}
		if detached.Err() != nil {
			// Superseded by a mutation; drop the stale result.
			return
		}
		s.cache.SetDetail(booking)
		detailRevalidations.Inc()
	}()
}

// CreateBooking applies an optimistic placeholder, issues the remote create,
// and replaces the placeholder with the server's booking on success. On
// failure the cache is restored to the exact pre-mutation snapshot.
func (s *Syncer) CreateBooking(ctx context.Context, userID string, req domain.CreateRequest) (domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.sync.create")
	defer span.End()

	authed, err := s.Authorize(ctx, userID)
	if err != nil {
		return domain.Booking{}, err
	}

	s.cancelFetch(listKey(userID))
	snap := s.cache.Snapshot(userID)

	now := s.clock.Now()
	placeholder := domain.Booking{
		ID:            domain.TempIDPrefix + strconv.FormatInt(now.UnixMilli(), 10),
		BookingNumber: domain.PendingBookingNumber,
		Status:        domain.StatusPending,
		ScheduledDate: req.ScheduledDate,
		ScheduledTime: req.ScheduledTime,
		Subtotal:      "0",
		CreatedAt:     now,
	}
	s.cache.SetList(userID, append(snap.Bookings(), placeholder))

	created, err := s.remote.CreateBooking(authed, req)
	if err != nil {
		s.cache.Restore(userID, snap)
		s.settle(ctx, userID, domain.Event{Type: domain.EventListInvalidated, UserID: userID})
		mutationsTotal.WithLabelValues("create", "rolled_back").Inc()
		return domain.Booking{}, fmt.Errorf("create booking: %w", err)
	}

	current := s.cache.Snapshot(userID).Bookings()
	next := make([]domain.Booking, 0, len(current)+1)
	for _, b := range current {
		if !b.Provisional() {
			next = append(next, b)
		}
	}
	next = append(next, created)
	s.cache.SetList(userID, next)
	s.cache.SetDetail(created)

	s.settle(ctx, userID, domain.Event{
		Type:      domain.EventBookingCreated,
		UserID:    userID,
		BookingID: created.ID,
		Status:    created.Status,
	})
	mutationsTotal.WithLabelValues("create", "applied").Inc()
	return created, nil
}

// CancelBooking proposes a customer cancellation with optimistic local
// effect.
func (s *Syncer) CancelBooking(ctx context.Context, userID, bookingID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "booking.sync.cancel")
	defer span.End()

	return s.mutateStatus(ctx, userID, bookingID, "cancel", domain.StatusCancelled, func(authed context.Context) error {
		return s.remote.CancelBooking(authed, bookingID, reason)
	})
}

// UpdateStatus proposes a status transition (provider-side accept, reject,
// start, complete) with optimistic local effect.
func (s *Syncer) UpdateStatus(ctx context.Context, userID, bookingID string, upd domain.StatusUpdate) error {
	ctx, span := s.tracer.Start(ctx, "booking.sync.update_status")
	defer span.End()

	return s.mutateStatus(ctx, userID, bookingID, "update_status", upd.Status, func(authed context.Context) error {
		return s.remote.UpdateStatus(authed, bookingID, upd)
	})
}

// mutateStatus runs the shared Initiate -> Optimistic apply -> Remote call ->
// Reconcile/Rollback -> Settle lifecycle for status-changing mutations.
func (s *Syncer) mutateStatus(ctx context.Context, userID, bookingID, op string, next domain.Status, call func(context.Context) error) error {
	authed, err := s.Authorize(ctx, userID)
	if err != nil {
		return err
	}

	s.cancelFetch(listKey(userID))
	s.cancelFetch(detailKey(bookingID))
	listSnap := s.cache.Snapshot(userID)
	detailSnap, hadDetail := s.cache.Detail(bookingID)

	current, known := findBooking(listSnap.Bookings(), bookingID)
	if !known && hadDetail {
		current, known = detailSnap, true
	}
	if known && !current.Status.CanPropose(next) {
		return fmt.Errorf("%s %s -> %s: %w", op, current.Status, next, domain.ErrInvalidProposal)
	}

	// Optimistic apply: replace the status field only, everything else
	// untouched.
	if bookings := listSnap.Bookings(); bookings != nil {
		for i := range bookings {
			if bookings[i].ID == bookingID {
				bookings[i].Status = next
			}
		}
		s.cache.SetList(userID, bookings)
	}
	if hadDetail {
		updated := detailSnap
		updated.Status = next
		s.cache.SetDetail(updated)
	}

	if err := call(authed); err != nil {
		s.cache.Restore(userID, listSnap)
		if hadDetail {
			s.cache.SetDetail(detailSnap)
		} else {
			s.cache.InvalidateDetail(bookingID)
		}
		s.settle(ctx, userID, domain.Event{Type: domain.EventListInvalidated, UserID: userID, BookingID: bookingID})
		mutationsTotal.WithLabelValues(op, "rolled_back").Inc()
		return fmt.Errorf("%s booking %s: %w", op, bookingID, err)
	}

	eventType := domain.EventBookingStatusChanged
	if next == domain.StatusCancelled {
		eventType = domain.EventBookingCancelled
	}
	s.settle(ctx, userID, domain.Event{
		Type:      eventType,
		UserID:    userID,
		BookingID: bookingID,
		Status:    next,
	})
	mutationsTotal.WithLabelValues(op, "applied").Inc()
	return nil
}

// settle runs after every mutation, success or failure: the list scope is
// invalidated so the next read refetches authoritative state, and the change
// is broadcast for other screens and instances.
func (s *Syncer) settle(ctx context.Context, userID string, event domain.Event) {
	s.cache.InvalidateList(userID)
	if s.events == nil {
		return
	}
	event.ID = uuid.NewString()
	event.At = s.clock.Now()
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("sync event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// SignIn persists the upstream bearer token for the user and invalidates
// any cached guest-era list so the first read fetches the account's real
// bookings.
func (s *Syncer) SignIn(ctx context.Context, userID, token string, ttl time.Duration) error {
	if err := s.sessions.Save(ctx, userID, token, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.cache.InvalidateList(userID)
	return nil
}

// SignOut drops the session and invalidates the user's cached list.
func (s *Syncer) SignOut(ctx context.Context, userID string) error {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.cache.InvalidateList(userID)
	return nil
}

// Authorize resolves the user's persisted session and stamps the context
// with the upstream bearer token. Exported for callers that reach the remote
// API outside the coordinator (the review gate). No session means guest
// state: session.ErrNoSession, and no request leaves the process.
func (s *Syncer) Authorize(ctx context.Context, userID string) (context.Context, error) {
	token, err := s.sessions.Token(ctx, userID)
	if err != nil {
		return nil, err
	}
	return api.WithToken(ctx, token), nil
}

func listKey(userID string) string { return "list:" + userID }

func detailKey(bookingID string) string { return "detail:" + bookingID }

// beginFetch registers a cancellable fetch for a cache scope, cancelling any
// previous one for the same scope. The returned func deregisters the fetch.
func (s *Syncer) beginFetch(key string, cancel context.CancelFunc) func() {
	handle := &inflightFetch{cancel: cancel}
	s.mu.Lock()
	if prev, ok := s.inflight[key]; ok {
		prev.cancel()
	}
	s.inflight[key] = handle
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if s.inflight[key] == handle {
			delete(s.inflight, key)
		}
		s.mu.Unlock()
		cancel()
	}
}

// cancelFetch aborts any outstanding fetch for the scope so a slow, stale
// response cannot clobber the optimistic value about to be written.
func (s *Syncer) cancelFetch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle, ok := s.inflight[key]; ok {
		handle.cancel()
		delete(s.inflight, key)
	}
}

func findBooking(bookings []domain.Booking, id string) (domain.Booking, bool) {
	for _, b := range bookings {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Booking{}, false
}
