package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

var testStart = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

const (
	testShowID = uint64(1)
	seatPrice  = uint32(1500)
)

// testRig bundles an engine over the in-memory ledger and catalog with a
// deterministic clock.  The show has five seats and starts two hours from
// the rig's epoch.
type testRig struct {
	clock   *testclock.Clock
	ledger  *MemoryLedger
	catalog *MemoryCatalog
	engine  *Engine
}

func newTestRig(t *testing.T, cfg Config) *testRig {
	t.Helper()
	clk := testclock.NewClock(testStart)
	ledger := NewMemoryLedger(clk)
	catalog := NewMemoryCatalog()
	catalog.AddShow(model.Show{
		ID:             testShowID,
		ScreenID:       1,
		StartsAt:       testStart.Add(2 * time.Hour),
		EndsAt:         testStart.Add(4 * time.Hour),
		BasePriceCents: seatPrice,
		Status:         model.ShowScheduled,
	}, []model.ShowSeat{
		{SeatID: 1, PriceCents: seatPrice},
		{SeatID: 2, PriceCents: seatPrice},
		{SeatID: 3, PriceCents: seatPrice},
		{SeatID: 4, PriceCents: seatPrice},
		{SeatID: 5, PriceCents: seatPrice},
	})
	return &testRig{
		clock:   clk,
		ledger:  ledger,
		catalog: catalog,
		engine:  New(cfg, ledger, catalog, clk, zerolog.Nop()),
	}
}

func (r *testRig) statusOf(t *testing.T, seatID uint64) model.SeatStatus {
	t.Helper()
	views, err := r.engine.Availability(context.Background(), testShowID)
	require.NoError(t, err)
	for _, v := range views {
		if v.SeatID == seatID {
			return v.Status
		}
	}
	t.Fatalf("seat %d not in availability view", seatID)
	return ""
}

func TestAcquireHappyPath(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1, 2}, 0)
	require.NoError(t, err)
	require.NotZero(t, b.ID)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Equal(t, []uint64{1, 2}, b.SeatIDs())
	assert.Equal(t, 2*seatPrice, b.TotalAmountCents)
	assert.Equal(t, testStart.Add(15*time.Minute), b.ExpiresAt, "default lease is fifteen minutes")

	assert.Equal(t, model.SeatLocked, rig.statusOf(t, 1))
	assert.Equal(t, model.SeatLocked, rig.statusOf(t, 2))
	assert.Equal(t, model.SeatAvailable, rig.statusOf(t, 3))

	stored, err := rig.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, stored.Status)
}

func TestAcquireValidation(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name    string
		seatIDs []uint64
	}{
		{"empty", nil},
		{"zero id", []uint64{0}},
		{"duplicate", []uint64{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rig.engine.Acquire(ctx, 10, testShowID, tt.seatIDs, 0)
			require.ErrorIs(t, err, ErrInvalidSeats)
		})
	}

	t.Run("unknown seat", func(t *testing.T) {
		_, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{99}, 0)
		require.ErrorIs(t, err, ErrInvalidSeats)
	})
	t.Run("unknown show", func(t *testing.T) {
		_, err := rig.engine.Acquire(ctx, 10, 404, []uint64{1}, 0)
		require.ErrorIs(t, err, ErrShowNotBookable)
	})
	t.Run("show already started", func(t *testing.T) {
		rig.clock.Advance(3 * time.Hour)
		_, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
		require.ErrorIs(t, err, ErrShowNotBookable)
	})
}

func TestAcquireConflictIsAtomic(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	_, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{2}, 0)
	require.NoError(t, err)

	// Overlapping request fails whole: seat 1 was free but must not be
	// locked when seat 2 conflicts.
	_, err = rig.engine.Acquire(ctx, 11, testShowID, []uint64{1, 2}, 0)
	require.ErrorIs(t, err, ErrSeatUnavailable)
	var unavailable *SeatUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []uint64{2}, unavailable.SeatIDs)

	assert.Equal(t, model.SeatAvailable, rig.statusOf(t, 1), "no partial lock on conflict")
}

func TestParallelAcquireSingleWinner(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			_, errs[w] = rig.engine.Acquire(ctx, uint64(100+w), testShowID, []uint64{3}, 0)
		}(w)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrSeatUnavailable)
		}
	}
	assert.Equal(t, 1, wins, "exactly one acquisition of the same seat may win")
}

func TestParallelAcquireDisjointSeats(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			_, errs[w] = rig.engine.Acquire(ctx, uint64(100+w), testShowID, []uint64{uint64(w + 1)}, 0)
		}(w)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err, "disjoint seat sets must all succeed")
	}
}

func TestParallelAcquireOverlappingSets(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = rig.engine.Acquire(ctx, 1, testShowID, []uint64{2, 3}, 0)
	}()
	go func() {
		defer wg.Done()
		_, errB = rig.engine.Acquire(ctx, 2, testShowID, []uint64{3, 4}, 0)
	}()
	wg.Wait()

	// Exactly one request wins; the loser is told about seat 3.
	require.True(t, (errA == nil) != (errB == nil), "exactly one of the overlapping acquires may succeed")
	lost := errA
	if lost == nil {
		lost = errB
	}
	var unavailable *SeatUnavailableError
	require.ErrorAs(t, lost, &unavailable)
	assert.Equal(t, []uint64{3}, unavailable.SeatIDs)

	locked := 0
	views, err := rig.engine.Availability(ctx, testShowID)
	require.NoError(t, err)
	for _, v := range views {
		if v.Status == model.SeatLocked {
			locked++
		}
	}
	assert.Equal(t, 2, locked, "only the winner's two seats are held")
}

// countByStatus tallies an availability snapshot.
func countByStatus(t *testing.T, rig *testRig) map[model.SeatStatus]int {
	t.Helper()
	views, err := rig.engine.Availability(context.Background(), testShowID)
	require.NoError(t, err)
	out := make(map[model.SeatStatus]int)
	for _, v := range views {
		out[v.Status]++
	}
	return out
}

func TestSeatConservation(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	total := func(m map[model.SeatStatus]int) int {
		n := 0
		for _, c := range m {
			n += c
		}
		return n
	}

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1, 2}, 0)
	require.NoError(t, err)
	require.NoError(t, rig.engine.SetMaintenance(ctx, testShowID, 5))
	assert.Equal(t, 5, total(countByStatus(t, rig)))

	_, err = rig.engine.Confirm(ctx, b.ID, "pay-001")
	require.NoError(t, err)
	counts := countByStatus(t, rig)
	assert.Equal(t, 5, total(counts))
	assert.Equal(t, 2, counts[model.SeatBooked])
	assert.Equal(t, 1, counts[model.SeatMaintenance])
	assert.Equal(t, 2, counts[model.SeatAvailable])
}

func TestConfirmHappyPath(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1, 2}, 0)
	require.NoError(t, err)

	confirmed, err := rig.engine.Confirm(ctx, b.ID, "pay-001")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.PaymentRef)
	assert.Equal(t, "pay-001", *confirmed.PaymentRef)

	assert.Equal(t, model.SeatBooked, rig.statusOf(t, 1))
	assert.Equal(t, model.SeatBooked, rig.statusOf(t, 2))
}

func TestConfirmIdempotentSameRef(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
	require.NoError(t, err)
	_, err = rig.engine.Confirm(ctx, b.ID, "pay-001")
	require.NoError(t, err)

	// Duplicate gateway callback with the same reference is absorbed.
	again, err := rig.engine.Confirm(ctx, b.ID, "pay-001")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, again.Status)

	// A different reference on a confirmed booking is a real error.
	_, err = rig.engine.Confirm(ctx, b.ID, "pay-002")
	require.ErrorIs(t, err, ErrBookingNotPending)
}

func TestConfirmWithinSkewTolerance(t *testing.T) {
	rig := newTestRig(t, Config{ClockSkewTolerance: 2 * time.Second})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
	require.NoError(t, err)

	// One second past the deadline is inside the tolerance window.
	rig.clock.Advance(15*time.Minute + time.Second)
	_, err = rig.engine.Confirm(ctx, b.ID, "pay-001")
	require.NoError(t, err)
}

func TestConfirmAfterExpiry(t *testing.T) {
	rig := newTestRig(t, Config{ClockSkewTolerance: 2 * time.Second})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1, 2}, 0)
	require.NoError(t, err)

	rig.clock.Advance(16 * time.Minute)
	_, err = rig.engine.Confirm(ctx, b.ID, "pay-001")
	require.ErrorIs(t, err, ErrLeaseExpired)

	// The failed confirmation settled the booking as EXPIRED and freed the
	// seats in the same critical section.
	stored, err := rig.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingExpired, stored.Status)
	assert.Equal(t, model.SeatAvailable, rig.statusOf(t, 1))
	assert.Equal(t, model.SeatAvailable, rig.statusOf(t, 2))

	// Confirming again keeps reporting the expiry.
	_, err = rig.engine.Confirm(ctx, b.ID, "pay-001")
	require.ErrorIs(t, err, ErrLeaseExpired)
}

func TestConfirmUnknownBooking(t *testing.T) {
	rig := newTestRig(t, Config{})
	_, err := rig.engine.Confirm(context.Background(), 404, "pay-001")
	require.ErrorIs(t, err, ErrBookingNotFound)
}

func TestCancelPendingReleasesSeats(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1, 2}, 0)
	require.NoError(t, err)

	require.NoError(t, rig.engine.Cancel(ctx, b.ID, 10))
	assert.Equal(t, model.SeatAvailable, rig.statusOf(t, 1))
	assert.Equal(t, model.SeatAvailable, rig.statusOf(t, 2))

	stored, err := rig.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, stored.Status)

	// The freed seats can be re-acquired by someone else.
	_, err = rig.engine.Acquire(ctx, 11, testShowID, []uint64{1, 2}, 0)
	require.NoError(t, err)
}

func TestCancelOwnerOnly(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
	require.NoError(t, err)
	require.ErrorIs(t, rig.engine.Cancel(ctx, b.ID, 11), ErrUnauthorized)
	assert.Equal(t, model.SeatLocked, rig.statusOf(t, 1))
}

func TestCancelTerminalIsNoop(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
	require.NoError(t, err)
	require.NoError(t, rig.engine.Cancel(ctx, b.ID, 10))
	// Duplicate cancel (e.g. repeated gateway failure callback).
	require.NoError(t, rig.engine.Cancel(ctx, b.ID, 10))
}

func TestCancelConfirmedBeforeStart(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
	require.NoError(t, err)
	_, err = rig.engine.Confirm(ctx, b.ID, "pay-001")
	require.NoError(t, err)

	require.NoError(t, rig.engine.Cancel(ctx, b.ID, 10))
	assert.Equal(t, model.SeatAvailable, rig.statusOf(t, 1))

	stored, err := rig.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, stored.Status)

	// Second cancel of the now-terminal booking is a no-op success.
	require.NoError(t, rig.engine.Cancel(ctx, b.ID, 10))
}

func TestCancelConfirmedAfterStartPolicy(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
	require.NoError(t, err)
	_, err = rig.engine.Confirm(ctx, b.ID, "pay-001")
	require.NoError(t, err)

	rig.clock.Advance(3 * time.Hour) // show has started
	require.ErrorIs(t, rig.engine.Cancel(ctx, b.ID, 10), ErrCancellationNotAllowed)

	// With the policy enabled the same cancellation goes through.
	permissive := newTestRig(t, Config{CancelConfirmedAfterStart: true})
	b2, err := permissive.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
	require.NoError(t, err)
	_, err = permissive.engine.Confirm(ctx, b2.ID, "pay-002")
	require.NoError(t, err)
	permissive.clock.Advance(3 * time.Hour)
	require.NoError(t, permissive.engine.Cancel(ctx, b2.ID, 10))
}

func TestAvailabilityReportsExpiredLockAsAvailable(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
	require.NoError(t, err)

	views, err := rig.engine.Availability(ctx, testShowID)
	require.NoError(t, err)
	require.Len(t, views, 5)
	assert.Equal(t, model.SeatLocked, views[0].Status)
	require.NotNil(t, views[0].LeaseDeadline)
	assert.Equal(t, b.ExpiresAt, *views[0].LeaseDeadline)

	// Past the deadline the same seat reads AVAILABLE without any mutation
	// having happened yet.
	rig.clock.Advance(16 * time.Minute)
	assert.Equal(t, model.SeatAvailable, rig.statusOf(t, 1))

	// The durable state is untouched until a writer reclaims the lease.
	stored, err := rig.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, stored.Status)
}

func TestAcquireReclaimsExpiredLeaseInline(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b1, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
	require.NoError(t, err)

	rig.clock.Advance(16 * time.Minute)

	// The reaper has not run; the new acquisition reclaims the lease itself.
	b2, err := rig.engine.Acquire(ctx, 11, testShowID, []uint64{1}, 0)
	require.NoError(t, err)
	assert.NotEqual(t, b1.ID, b2.ID)

	stored, err := rig.ledger.GetBooking(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingExpired, stored.Status)
}

func TestShortLeaseOverride(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	b, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, testStart.Add(time.Minute), b.ExpiresAt)
}

func TestMaintenance(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	require.NoError(t, rig.engine.SetMaintenance(ctx, testShowID, 5))
	assert.Equal(t, model.SeatMaintenance, rig.statusOf(t, 5))

	// Blocked seats conflict like any other unavailable seat.
	_, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{5}, 0)
	require.ErrorIs(t, err, ErrSeatUnavailable)

	// A held seat cannot be blocked.
	_, err = rig.engine.Acquire(ctx, 10, testShowID, []uint64{1}, 0)
	require.NoError(t, err)
	require.ErrorIs(t, rig.engine.SetMaintenance(ctx, testShowID, 1), ErrIllegalTransition)

	require.NoError(t, rig.engine.ClearMaintenance(ctx, testShowID, 5))
	_, err = rig.engine.Acquire(ctx, 11, testShowID, []uint64{5}, 0)
	require.NoError(t, err)
}

func TestRebuildAfterRestart(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	pending, err := rig.engine.Acquire(ctx, 10, testShowID, []uint64{1, 2}, 0)
	require.NoError(t, err)
	confirmed, err := rig.engine.Acquire(ctx, 11, testShowID, []uint64{3}, 0)
	require.NoError(t, err)
	_, err = rig.engine.Confirm(ctx, confirmed.ID, "pay-001")
	require.NoError(t, err)
	cancelled, err := rig.engine.Acquire(ctx, 12, testShowID, []uint64{4}, 0)
	require.NoError(t, err)
	require.NoError(t, rig.engine.Cancel(ctx, cancelled.ID, 12))
	require.NoError(t, rig.engine.SetMaintenance(ctx, testShowID, 5))

	// Crash: all in-memory seat state is lost, the ledger survives.
	rig.engine.Index().Drop(testShowID)

	views, err := rig.engine.Availability(ctx, testShowID)
	require.NoError(t, err)
	byID := make(map[uint64]SeatView, len(views))
	for _, v := range views {
		byID[v.SeatID] = v
	}
	assert.Equal(t, model.SeatLocked, byID[1].Status)
	assert.Equal(t, model.SeatLocked, byID[2].Status)
	require.NotNil(t, byID[1].LeaseDeadline)
	assert.Equal(t, pending.ExpiresAt, *byID[1].LeaseDeadline, "rebuilt hold keeps its original deadline")
	assert.Equal(t, model.SeatBooked, byID[3].Status)
	assert.Equal(t, model.SeatAvailable, byID[4].Status, "cancelled booking's seat comes back free")
	assert.Equal(t, model.SeatMaintenance, byID[5].Status, "maintenance flag survives the rebuild")

	// The rebuilt state is live: the pending hold can still be confirmed.
	_, err = rig.engine.Confirm(ctx, pending.ID, "pay-002")
	require.NoError(t, err)
}

func TestRebuildDetectsDoubleClaim(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	// Corrupt the ledger directly: two live bookings claiming seat 1.
	deadline := testStart.Add(15 * time.Minute)
	for user := uint64(10); user <= 11; user++ {
		b := &model.Booking{
			UserID:           user,
			ShowID:           testShowID,
			Seats:            []model.BookingSeat{{SeatID: 1, PriceCents: seatPrice}},
			TotalAmountCents: seatPrice,
			ExpiresAt:        deadline,
		}
		require.NoError(t, rig.ledger.InsertPending(ctx, b))
	}

	_, err := rig.engine.Availability(ctx, testShowID)
	require.ErrorIs(t, err, ErrInconsistency)
}
