package booking

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// Config carries the tunables of the reservation engine.  Zero values fall
// back to the defaults below.
type Config struct {
	DefaultLease              time.Duration // seat hold duration when the caller does not specify one
	LockAcquireTimeout        time.Duration // wait budget for a show lock before failing with Contention
	ClockSkewTolerance        time.Duration // widening applied to the confirm-side lease check
	LockRetireAfter           time.Duration // idle period before a show lock is swept
	CancelConfirmedAfterStart bool          // policy: allow cancelling a confirmed booking once the show started
}

const (
	DefaultLease              = 15 * time.Minute
	DefaultLockAcquireTimeout = 5 * time.Second
	DefaultClockSkewTolerance = 2 * time.Second
)

func (c Config) withDefaults() Config {
	if c.DefaultLease <= 0 {
		c.DefaultLease = DefaultLease
	}
	if c.LockAcquireTimeout <= 0 {
		c.LockAcquireTimeout = DefaultLockAcquireTimeout
	}
	if c.ClockSkewTolerance <= 0 {
		c.ClockSkewTolerance = DefaultClockSkewTolerance
	}
	return c
}

// Engine is the reservation protocol: the acquire/confirm/cancel state
// machine operating on the seat index under the per-show lock.  All methods
// are safe for concurrent use; operations on the same show are totally
// ordered by show lock acquisition, operations on different shows do not
// order at all.
type Engine struct {
	cfg     Config
	ledger  Ledger
	catalog Catalog
	clock   clock.Clock
	log     zerolog.Logger
	locks   *ShowLockRegistry
	index   *SeatIndex
}

// New wires an engine from its collaborators.  The ledger and catalog are
// the only durable state; everything in-memory is rebuilt from them.
func New(cfg Config, ledger Ledger, catalog Catalog, clk clock.Clock, log zerolog.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:     cfg,
		ledger:  ledger,
		catalog: catalog,
		clock:   clk,
		log:     log,
		locks:   NewShowLockRegistry(clk, cfg.LockRetireAfter),
		index:   NewSeatIndex(catalog, ledger, log),
	}
}

// Index exposes the seat index for recovery tooling and tests.
func (e *Engine) Index() *SeatIndex { return e.index }

// getBooking loads a booking, keeping ErrBookingNotFound as-is and wrapping
// any driver failure as a Storage error.
func (e *Engine) getBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	b, err := e.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, storageErr("load booking", err)
	}
	return b, nil
}

// GetBooking returns the booking's current durable state.
func (e *Engine) GetBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return e.getBooking(ctx, bookingID)
}

// Locks exposes the show lock registry so the reaper can sweep idle locks.
func (e *Engine) Locks() *ShowLockRegistry { return e.locks }

// Acquire creates a PENDING booking holding all requested seats of a show
// until the lease deadline.  The request succeeds atomically or not at all:
// either every requested seat transitions AVAILABLE → LOCKED and exactly one
// pending booking is written to the ledger, or nothing is mutated.
//
// A non-positive lease falls back to the configured default.
func (e *Engine) Acquire(ctx context.Context, userID, showID uint64, seatIDs []uint64, lease time.Duration) (*model.Booking, error) {
	if len(seatIDs) == 0 {
		return nil, ErrInvalidSeats
	}
	seen := make(map[uint64]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if id == 0 {
			return nil, ErrInvalidSeats
		}
		if _, dup := seen[id]; dup {
			return nil, ErrInvalidSeats
		}
		seen[id] = struct{}{}
	}
	if lease <= 0 {
		lease = e.cfg.DefaultLease
	}

	show, err := e.catalog.GetShow(ctx, showID)
	if err != nil {
		if errors.Is(err, ErrShowNotFound) {
			return nil, ErrShowNotBookable
		}
		return nil, storageErr("load show", err)
	}
	if !show.Bookable(e.clock.Now()) {
		return nil, ErrShowNotBookable
	}

	release, err := e.locks.Acquire(ctx, showID, e.cfg.LockAcquireTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.index.Load(ctx, showID); err != nil {
		return nil, err
	}
	if err := e.reclaimExpired(ctx, showID); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	deadline := now.Add(lease)

	// Validate the whole request before touching anything.
	var conflicts []uint64
	seats := make([]model.BookingSeat, 0, len(seatIDs))
	err = e.index.Mutate(showID, func(idx map[uint64]*model.SeatState) error {
		for _, id := range seatIDs {
			st, ok := idx[id]
			if !ok {
				return ErrInvalidSeats
			}
			if st.Status != model.SeatAvailable {
				conflicts = append(conflicts, id)
				continue
			}
			seats = append(seats, model.BookingSeat{SeatID: id, PriceCents: st.PriceCents})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &SeatUnavailableError{SeatIDs: conflicts}
	}

	var total uint32
	for _, s := range seats {
		total += s.PriceCents
	}
	b := &model.Booking{
		UserID:           userID,
		ShowID:           showID,
		Seats:            seats,
		TotalAmountCents: total,
		Status:           model.BookingPending,
		CreatedAt:        now,
		ExpiresAt:        deadline,
	}
	// The ledger write happens inside the critical section so that the
	// durable state agrees with the index at lock release.
	if err := e.ledger.InsertPending(ctx, b); err != nil {
		return nil, storageErr("insert pending booking", err)
	}

	err = e.index.Mutate(showID, func(idx map[uint64]*model.SeatState) error {
		for _, s := range b.Seats {
			if err := idx[s.SeatID].Lock(b.ID, deadline); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Cannot happen: the seats were validated AVAILABLE under the same
		// show lock.  Treat as fatal for this show.
		e.log.Error().Err(err).Uint64("show_id", showID).Uint64("booking_id", b.ID).
			Str("alarm", "inconsistency").Msg("seat lock failed after validation")
		return nil, ErrInconsistency
	}

	e.log.Debug().Uint64("booking_id", b.ID).Uint64("show_id", showID).
		Uints64("seat_ids", b.SeatIDs()).Time("expires_at", deadline).
		Msg("seats locked for pending booking")
	return b, nil
}

// Confirm finalizes a pending booking after payment succeeded: every held
// seat moves LOCKED → BOOKED and the booking becomes CONFIRMED with the
// payment reference recorded.
//
// If the lease ran out (past the booking deadline beyond the skew
// tolerance, or any seat already reclaimed by the reaper) the booking is
// transitioned to EXPIRED in the same critical section and ErrLeaseExpired
// is returned; no seats are taken.
//
// A repeated confirmation of an already confirmed booking with the same
// payment reference is absorbed and returns the booking unchanged.
func (e *Engine) Confirm(ctx context.Context, bookingID uint64, paymentRef string) (*model.Booking, error) {
	b, err := e.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	release, err := e.locks.Acquire(ctx, b.ShowID, e.cfg.LockAcquireTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock: the reaper or a cancel may have won the race.
	b, err = e.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case model.BookingPending:
		// fall through to the lease checks below
	case model.BookingConfirmed:
		if b.PaymentRef != nil && *b.PaymentRef == paymentRef {
			return b, nil // duplicate callback, absorb
		}
		return nil, ErrBookingNotPending
	case model.BookingExpired:
		return nil, ErrLeaseExpired
	default:
		return nil, ErrBookingNotPending
	}

	if err := e.index.Load(ctx, b.ShowID); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if now.After(b.ExpiresAt.Add(e.cfg.ClockSkewTolerance)) {
		return nil, e.expireUnderLock(ctx, b)
	}

	// Every seat of the booking must still be held by it.
	stillHeld := true
	err = e.index.Mutate(b.ShowID, func(idx map[uint64]*model.SeatState) error {
		for _, id := range b.SeatIDs() {
			st, ok := idx[id]
			if !ok || st.Status != model.SeatLocked || st.HolderBookingID != b.ID {
				stillHeld = false
				return nil
			}
			if now.After(st.LeaseDeadline.Add(e.cfg.ClockSkewTolerance)) {
				stillHeld = false
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !stillHeld {
		return nil, e.expireUnderLock(ctx, b)
	}

	mutated, err := e.ledger.MarkConfirmed(ctx, b.ID, paymentRef)
	if err != nil {
		return nil, storageErr("mark confirmed", err)
	}
	if !mutated {
		// Cannot happen while we hold the show lock; treat defensively.
		return nil, ErrBookingNotPending
	}

	err = e.index.Mutate(b.ShowID, func(idx map[uint64]*model.SeatState) error {
		for _, id := range b.SeatIDs() {
			if err := idx[id].Confirm(b.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.log.Error().Err(err).Uint64("booking_id", b.ID).Uint64("show_id", b.ShowID).
			Str("alarm", "inconsistency").Msg("seat confirm failed after validation")
		return nil, ErrInconsistency
	}

	b.Status = model.BookingConfirmed
	b.PaymentRef = &paymentRef
	e.log.Info().Uint64("booking_id", b.ID).Uint64("show_id", b.ShowID).
		Uints64("seat_ids", b.SeatIDs()).Msg("booking confirmed")
	return b, nil
}

// Cancel releases every seat held by the booking and marks it CANCELLED.
// Only the booking owner may cancel; the ownership check happens before the
// show lock is taken.  Cancelling an already terminal booking is a no-op
// success, which is what absorbs duplicate failure callbacks from the
// payment gateway.
func (e *Engine) Cancel(ctx context.Context, bookingID, byUserID uint64) error {
	b, err := e.getBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.UserID != byUserID {
		return ErrUnauthorized
	}
	if b.Status.Terminal() {
		return nil
	}
	if b.Status == model.BookingConfirmed && !e.cfg.CancelConfirmedAfterStart {
		show, err := e.catalog.GetShow(ctx, b.ShowID)
		if err != nil {
			if errors.Is(err, ErrShowNotFound) {
				return ErrShowNotBookable
			}
			return storageErr("load show", err)
		}
		if !e.clock.Now().Before(show.StartsAt) {
			return ErrCancellationNotAllowed
		}
	}

	release, err := e.locks.Acquire(ctx, b.ShowID, e.cfg.LockAcquireTimeout)
	if err != nil {
		return err
	}
	defer release()

	b, err = e.getBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status.Terminal() {
		return nil
	}
	if err := e.index.Load(ctx, b.ShowID); err != nil {
		return err
	}

	mutated, err := e.ledger.MarkCancelled(ctx, b.ID)
	if err != nil {
		return storageErr("mark cancelled", err)
	}
	if !mutated {
		return nil // raced with the reaper; the seats are already free
	}

	err = e.index.Mutate(b.ShowID, func(idx map[uint64]*model.SeatState) error {
		for _, id := range b.SeatIDs() {
			st, ok := idx[id]
			if !ok || st.HolderBookingID != b.ID {
				continue // already reclaimed
			}
			if err := st.Release(b.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.log.Error().Err(err).Uint64("booking_id", b.ID).Uint64("show_id", b.ShowID).
			Str("alarm", "inconsistency").Msg("seat release failed during cancel")
		return ErrInconsistency
	}

	e.log.Info().Uint64("booking_id", b.ID).Uint64("show_id", b.ShowID).
		Uint64("user_id", byUserID).Msg("booking cancelled")
	return nil
}

// SeatView is one row of an availability snapshot.  LeaseDeadline is set
// only when the effective status is LOCKED.
type SeatView struct {
	SeatID        uint64           `json:"seat_id"`
	Status        model.SeatStatus `json:"status"`
	LeaseDeadline *time.Time       `json:"lease_deadline,omitempty"`
}

// Availability returns a point-in-time view of a show's seats without
// taking the show lock.  A LOCKED seat whose lease already expired is
// reported AVAILABLE.  The snapshot may be stale the instant it returns.
func (e *Engine) Availability(ctx context.Context, showID uint64) ([]SeatView, error) {
	if _, err := e.catalog.GetShow(ctx, showID); err != nil {
		if errors.Is(err, ErrShowNotFound) {
			return nil, ErrShowNotBookable
		}
		return nil, storageErr("load show", err)
	}
	if err := e.index.Load(ctx, showID); err != nil {
		return nil, err
	}
	states, ok := e.index.Snapshot(showID)
	if !ok {
		return nil, ErrShowNotBookable
	}
	now := e.clock.Now()
	views := make([]SeatView, 0, len(states))
	for _, st := range states {
		v := SeatView{SeatID: st.SeatID, Status: st.EffectiveStatus(now)}
		if v.Status == model.SeatLocked {
			d := st.LeaseDeadline
			v.LeaseDeadline = &d
		}
		views = append(views, v)
	}
	sort.Slice(views, func(a, b int) bool { return views[a].SeatID < views[b].SeatID })
	return views, nil
}

// SetMaintenance blocks an AVAILABLE seat for administrative work and
// persists the flag through the catalog so rebuilds see it.
func (e *Engine) SetMaintenance(ctx context.Context, showID, seatID uint64) error {
	return e.setBlocked(ctx, showID, seatID, true)
}

// ClearMaintenance returns a MAINTENANCE seat to AVAILABLE.
func (e *Engine) ClearMaintenance(ctx context.Context, showID, seatID uint64) error {
	return e.setBlocked(ctx, showID, seatID, false)
}

func (e *Engine) setBlocked(ctx context.Context, showID, seatID uint64, blocked bool) error {
	release, err := e.locks.Acquire(ctx, showID, e.cfg.LockAcquireTimeout)
	if err != nil {
		return err
	}
	defer release()

	if err := e.index.Load(ctx, showID); err != nil {
		return err
	}
	err = e.index.Mutate(showID, func(idx map[uint64]*model.SeatState) error {
		st, ok := idx[seatID]
		if !ok {
			return ErrInvalidSeats
		}
		if blocked {
			return st.SetMaintenance()
		}
		return st.ClearMaintenance()
	})
	if err != nil {
		return err
	}
	if err := e.catalog.SetSeatBlocked(ctx, showID, seatID, blocked); err != nil {
		// Revert the in-memory transition so index and catalog agree.
		_ = e.index.Mutate(showID, func(idx map[uint64]*model.SeatState) error {
			st := idx[seatID]
			if blocked {
				return st.ClearMaintenance()
			}
			return st.SetMaintenance()
		})
		return storageErr("persist seat maintenance", err)
	}
	return nil
}

// ExpireBooking reclaims one pending booking whose lease deadline passed:
// under the show lock it re-checks the status, marks the booking EXPIRED
// with a conditional ledger update, and releases its seats.  It reports
// whether the booking was actually expired; false means confirm or cancel
// got there first, which is not an error.
func (e *Engine) ExpireBooking(ctx context.Context, bookingID uint64) (bool, error) {
	b, err := e.getBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if b.Status != model.BookingPending {
		return false, nil
	}

	release, err := e.locks.Acquire(ctx, b.ShowID, e.cfg.LockAcquireTimeout)
	if err != nil {
		return false, err
	}
	defer release()

	b, err = e.getBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if b.Status != model.BookingPending {
		return false, nil
	}
	if err := e.index.Load(ctx, b.ShowID); err != nil {
		return false, err
	}
	if err := e.expireUnderLock(ctx, b); !errors.Is(err, ErrLeaseExpired) {
		return false, err
	}
	return true, nil
}

// expireUnderLock transitions a pending booking to EXPIRED and frees every
// seat it still holds.  Caller must hold the show lock.  Always returns
// ErrLeaseExpired on success so confirm can propagate it directly.
func (e *Engine) expireUnderLock(ctx context.Context, b *model.Booking) error {
	mutated, err := e.ledger.MarkExpired(ctx, b.ID)
	if err != nil {
		return storageErr("mark expired", err)
	}
	if !mutated {
		// Lost a race we cannot lose while holding the show lock; the
		// booking moved through another path.  Report its current kind.
		cur, err := e.getBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if cur.Status == model.BookingExpired {
			return ErrLeaseExpired
		}
		return ErrBookingNotPending
	}

	err = e.index.Mutate(b.ShowID, func(idx map[uint64]*model.SeatState) error {
		for _, id := range b.SeatIDs() {
			st, ok := idx[id]
			if !ok || st.HolderBookingID != b.ID || st.Status != model.SeatLocked {
				continue
			}
			if err := st.Release(b.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.log.Error().Err(err).Uint64("booking_id", b.ID).Uint64("show_id", b.ShowID).
			Str("alarm", "inconsistency").Msg("seat release failed during expiry")
		return ErrInconsistency
	}
	e.log.Info().Uint64("booking_id", b.ID).Uint64("show_id", b.ShowID).
		Msg("pending booking expired, seats reclaimed")
	return ErrLeaseExpired
}

// reclaimExpired frees seats whose lease deadline passed before new
// acquisitions are validated, expiring the owning bookings through the same
// conditional ledger transition the reaper uses.  Caller must hold the show
// lock.
func (e *Engine) reclaimExpired(ctx context.Context, showID uint64) error {
	now := e.clock.Now()
	expired := make(map[uint64][]uint64) // booking id → seat ids
	err := e.index.Mutate(showID, func(idx map[uint64]*model.SeatState) error {
		for _, st := range idx {
			if st.Status == model.SeatLocked && now.After(st.LeaseDeadline) {
				expired[st.HolderBookingID] = append(expired[st.HolderBookingID], st.SeatID)
			}
		}
		return nil
	})
	if err != nil || len(expired) == 0 {
		return err
	}

	for bookingID, seatIDs := range expired {
		mutated, err := e.ledger.MarkExpired(ctx, bookingID)
		if err != nil {
			return storageErr("mark expired", err)
		}
		if !mutated {
			cur, err := e.getBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			if cur.Status == model.BookingConfirmed {
				// A confirmed booking with LOCKED seats should be
				// impossible; leave the seats alone and raise the alarm.
				e.log.Error().Uint64("booking_id", bookingID).Uint64("show_id", showID).
					Uints64("seat_ids", seatIDs).Str("alarm", "inconsistency").
					Msg("confirmed booking still holds seat locks")
				continue
			}
		}
		err = e.index.Mutate(showID, func(idx map[uint64]*model.SeatState) error {
			for _, id := range seatIDs {
				if err := idx[id].Reap(now); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		e.log.Debug().Uint64("booking_id", bookingID).Uint64("show_id", showID).
			Uints64("seat_ids", seatIDs).Msg("expired lease reclaimed inline")
	}
	return nil
}
