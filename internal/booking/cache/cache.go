package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/serviosync/internal/booking/domain"
)

// Config holds staleness tunables for the store.
type Config struct {
	// ListStaleTime is how long a cached booking list is trusted before a
	// read reports a miss. Zero keeps the default of five minutes.
	ListStaleTime time.Duration
	// GCTime is how long an unused entry survives before the sweeper may
	// purge it. Eviction is a soft hint; a purged entry is refetched on the
	// next access.
	GCTime time.Duration
}

// Store is the single shared booking cache. All screens read and write
// through its keyed API so an update made in one view is visible to the
// others after invalidation. Detail entries carry no freshness window of
// their own: policy is stale-on-every-navigation, enforced by the sync
// layer.
type Store struct {
	mu      sync.RWMutex
	clock   domain.Clock
	logger  *zap.Logger
	cfg     Config
	lists   map[string]*listEntry
	details map[string]*detailEntry
}

type listEntry struct {
	bookings   []domain.Booking
	fetchedAt  time.Time
	stale      bool
	lastAccess time.Time
}

type detailEntry struct {
	booking    domain.Booking
	lastAccess time.Time
}

// ListSnapshot captures the exact list-scope state for a user, including
// absence, so a failed mutation can restore it verbatim.
type ListSnapshot struct {
	present   bool
	bookings  []domain.Booking
	fetchedAt time.Time
	stale     bool
}

// Bookings returns the snapshot contents. Nil when the scope was absent.
func (s ListSnapshot) Bookings() []domain.Booking {
	return copyBookings(s.bookings)
}

// NewStore constructs the cache.
func NewStore(clock domain.Clock, logger *zap.Logger, cfg Config) *Store {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ListStaleTime <= 0 {
		cfg.ListStaleTime = 5 * time.Minute
	}
	if cfg.GCTime <= 0 {
		cfg.GCTime = 10 * time.Minute
	}
	return &Store{
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
		lists:   make(map[string]*listEntry),
		details: make(map[string]*detailEntry),
	}
}

// List returns the cached booking list for the user, or ok=false when the
// scope is absent, invalidated, or older than the list stale time.
func (s *Store) List(userID string) ([]domain.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lists[userID]
	if !ok {
		cacheMisses.WithLabelValues("list").Inc()
		return nil, false
	}
	now := s.clock.Now()
	entry.lastAccess = now
	if entry.stale || now.Sub(entry.fetchedAt) > s.cfg.ListStaleTime {
		cacheMisses.WithLabelValues("list").Inc()
		return nil, false
	}
	cacheHits.WithLabelValues("list").Inc()
	return copyBookings(entry.bookings), true
}

// SetList replaces the user's cached list and resets its staleness clock.
func (s *Store) SetList(userID string, bookings []domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.lists[userID] = &listEntry{
		bookings:   copyBookings(bookings),
		fetchedAt:  now,
		stale:      false,
		lastAccess: now,
	}
}

// Detail returns the cached booking if present. Presence is not freshness:
// detail reads always revalidate, so the caller treats this value as
// display-now, verify-in-background.
func (s *Store) Detail(bookingID string) (domain.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.details[bookingID]
	if !ok {
		cacheMisses.WithLabelValues("detail").Inc()
		return domain.Booking{}, false
	}
	entry.lastAccess = s.clock.Now()
	cacheHits.WithLabelValues("detail").Inc()
	return entry.booking, true
}

// SetDetail stores one booking in the detail scope.
func (s *Store) SetDetail(b domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[b.ID] = &detailEntry{booking: b, lastAccess: s.clock.Now()}
}

// InvalidateList marks the user's list stale so the next read refetches.
func (s *Store) InvalidateList(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.lists[userID]; ok {
		entry.stale = true
	}
	invalidations.WithLabelValues("list").Inc()
}

// InvalidateDetail drops one cached detail entry.
func (s *Store) InvalidateDetail(bookingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.details, bookingID)
	invalidations.WithLabelValues("detail").Inc()
}

// Snapshot captures the user's list scope exactly as it is, staleness
// included, for mutation rollback.
func (s *Store) Snapshot(userID string) ListSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.lists[userID]
	if !ok {
		return ListSnapshot{}
	}
	return ListSnapshot{
		present:   true,
		bookings:  copyBookings(entry.bookings),
		fetchedAt: entry.fetchedAt,
		stale:     entry.stale,
	}
}

// Restore puts the list scope back to a previously captured snapshot. A
// snapshot taken when the scope was absent removes the entry again, so
// rollback is all-or-nothing.
func (s *Store) Restore(userID string, snap ListSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !snap.present {
		delete(s.lists, userID)
		return
	}
	s.lists[userID] = &listEntry{
		bookings:   copyBookings(snap.bookings),
		fetchedAt:  snap.fetchedAt,
		stale:      snap.stale,
		lastAccess: s.clock.Now(),
	}
}

// Sweep evicts entries that have not been touched within the gc window and
// returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock.Now().Add(-s.cfg.GCTime)
	removed := 0
	for userID, entry := range s.lists {
		if entry.lastAccess.Before(cutoff) {
			delete(s.lists, userID)
			removed++
		}
	}
	for id, entry := range s.details {
		if entry.lastAccess.Before(cutoff) {
			delete(s.details, id)
			removed++
		}
	}
	if removed > 0 {
		evictions.Add(float64(removed))
	}
	return removed
}

// RunSweeper evicts unused entries on the given interval until the context
// is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("cache sweep", zap.Int("evicted", removed))
			}
		}
	}
}

func copyBookings(in []domain.Booking) []domain.Booking {
	if in == nil {
		return nil
	}
	return append([]domain.Booking(nil), in...)
}
