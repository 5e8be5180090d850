package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/serviosync/internal/booking/cache"
	"github.com/example/serviosync/internal/booking/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newStore(clock *fakeClock) *cache.Store {
	return cache.NewStore(clock, nil, cache.Config{
		ListStaleTime: 5 * time.Minute,
		GCTime:        10 * time.Minute,
	})
}

func booking(id string, status domain.Status) domain.Booking {
	return domain.Booking{ID: id, BookingNumber: "SV-" + id, Status: status}
}

func TestListMissWhenEmpty(t *testing.T) {
	store := newStore(&fakeClock{t: time.Unix(0, 0).UTC()})
	_, ok := store.List("u1")
	require.False(t, ok)
}

func TestListHitWithinStaleTime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0).UTC()}
	store := newStore(clock)
	store.SetList("u1", []domain.Booking{booking("b-1", domain.StatusPending)})

	clock.Advance(4 * time.Minute)
	got, ok := store.List("u1")
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, "b-1", got[0].ID)
}

func TestListStaleAfterWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0).UTC()}
	store := newStore(clock)
	store.SetList("u1", []domain.Booking{booking("b-1", domain.StatusPending)})

	clock.Advance(5*time.Minute + time.Second)
	_, ok := store.List("u1")
	require.False(t, ok)
}

func TestInvalidateListForcesMiss(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0).UTC()}
	store := newStore(clock)
	store.SetList("u1", []domain.Booking{booking("b-1", domain.StatusPending)})

	store.InvalidateList("u1")
	_, ok := store.List("u1")
	require.False(t, ok)

	// A fresh SetList resets the staleness clock.
	store.SetList("u1", []domain.Booking{booking("b-2", domain.StatusAccepted)})
	got, ok := store.List("u1")
	require.True(t, ok)
	require.Equal(t, "b-2", got[0].ID)
}

func TestDetailPresenceIsNotFreshness(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0).UTC()}
	store := newStore(clock)
	store.SetDetail(booking("b-1", domain.StatusAccepted))

	got, ok := store.Detail("b-1")
	require.True(t, ok)
	require.Equal(t, domain.StatusAccepted, got.Status)

	store.InvalidateDetail("b-1")
	_, ok = store.Detail("b-1")
	require.False(t, ok)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0).UTC()}
	store := newStore(clock)
	original := []domain.Booking{booking("b-1", domain.StatusAccepted), booking("b-2", domain.StatusPending)}
	store.SetList("u1", original)

	snap := store.Snapshot("u1")

	store.SetList("u1", []domain.Booking{booking("b-3", domain.StatusCancelled)})
	store.Restore("u1", snap)

	got, ok := store.List("u1")
	require.True(t, ok)
	require.Equal(t, original, got)
}

func TestRestoreAbsentSnapshotRemovesEntry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0).UTC()}
	store := newStore(clock)

	snap := store.Snapshot("u1") // scope absent
	store.SetList("u1", []domain.Booking{booking("b-1", domain.StatusPending)})
	store.Restore("u1", snap)

	_, ok := store.List("u1")
	require.False(t, ok)
}

func TestSnapshotIsIsolatedFromLaterWrites(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0).UTC()}
	store := newStore(clock)
	store.SetList("u1", []domain.Booking{booking("b-1", domain.StatusAccepted)})

	snap := store.Snapshot("u1")
	mutated := snap.Bookings()
	mutated[0].Status = domain.StatusCancelled

	require.Equal(t, domain.StatusAccepted, snap.Bookings()[0].Status)
}

func TestSweepEvictsUnusedEntries(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0).UTC()}
	store := newStore(clock)
	store.SetList("idle", []domain.Booking{booking("b-1", domain.StatusPending)})
	store.SetDetail(booking("b-1", domain.StatusPending))

	clock.Advance(9 * time.Minute)
	store.SetList("active", []domain.Booking{booking("b-2", domain.StatusPending)})

	clock.Advance(2 * time.Minute)
	removed := store.Sweep()
	require.Equal(t, 2, removed)

	// Evicted entries simply miss; the active one is untouched.
	_, ok := store.Detail("b-1")
	require.False(t, ok)
	_, ok = store.List("active")
	require.True(t, ok)
}
