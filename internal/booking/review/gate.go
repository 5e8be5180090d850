// Package review decides whether the "leave a review" affordance may be
// shown for a completed booking. The answer is server-owned; this gate only
// caches it briefly and fails closed.
package review

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/serviosync/internal/booking/domain"
)

// API is the slice of the remote contract the gate needs.
type API interface {
	CanReview(ctx context.Context, bookingID string) (bool, error)
}

// Gate answers per-booking review eligibility with a short cache to batch
// UI checks across a list render.
type Gate struct {
	remote API
	clock  domain.Clock
	logger *zap.Logger
	ttl    time.Duration

	mu      sync.Mutex
	answers map[string]answer
}

type answer struct {
	eligible  bool
	checkedAt time.Time
}

// NewGate constructs the gate. A non-positive ttl keeps the default of two
// minutes.
func NewGate(remote API, clock domain.Clock, logger *zap.Logger, ttl time.Duration) *Gate {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Gate{
		remote:  remote,
		clock:   clock,
		logger:  logger,
		ttl:     ttl,
		answers: make(map[string]answer),
	}
}

// CheckOne reports whether the user may review the booking. The remote check
// is retried once; a second failure resolves to false so the UI never offers
// a review the server would reject. Only server answers are cached, so a
// transient outage does not pin false for the full ttl.
func (g *Gate) CheckOne(ctx context.Context, bookingID string) bool {
	now := g.clock.Now()

	g.mu.Lock()
	if cached, ok := g.answers[bookingID]; ok && now.Sub(cached.checkedAt) <= g.ttl {
		g.mu.Unlock()
		checksTotal.WithLabelValues("cached").Inc()
		return cached.eligible
	}
	g.mu.Unlock()

	eligible, err := g.remote.CanReview(ctx, bookingID)
	if err != nil {
		eligible, err = g.remote.CanReview(ctx, bookingID)
	}
	if err != nil {
		g.logger.Debug("eligibility check failed closed", zap.String("booking_id", bookingID), zap.Error(err))
		checksTotal.WithLabelValues("failed_closed").Inc()
		return false
	}

	// Stamp at store time, not call-start time, so a slow upstream does not
	// eat into the cache window.
	g.mu.Lock()
	g.answers[bookingID] = answer{eligible: eligible, checkedAt: g.clock.Now()}
	g.mu.Unlock()
	checksTotal.WithLabelValues("fetched").Inc()
	return eligible
}

// CheckBatch resolves eligibility for every id concurrently. Each failure is
// isolated: one erroring id maps to false without affecting its siblings,
// and the batch as a whole never fails.
func (g *Gate) CheckBatch(ctx context.Context, bookingIDs []string) map[string]bool {
	results := make(map[string]bool, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return results
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range bookingIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			eligible := g.CheckOne(ctx, id)
			mu.Lock()
			results[id] = eligible
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}
