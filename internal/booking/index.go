package booking

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// SeatIndex is the in-memory mapping {showId → {seatId → SeatState}} kept
// consistent with the ledger.  It materializes a show's seat state lazily on
// first use and rebuilds it from the catalog and the ledger, which is also
// exactly what happens after a process restart.
//
// Locking: the top-level map has its own mutex, held only during lookup and
// insert.  Each show entry carries an RWMutex guarding its seat map; writers
// additionally hold the ShowLock, which is what serializes mutations; the
// per-show RWMutex only makes snapshot reads safe without blocking on the
// ShowLock.
type SeatIndex struct {
	catalog Catalog
	ledger  Ledger
	log     zerolog.Logger

	mu    sync.Mutex
	shows map[uint64]*showEntry
}

type showEntry struct {
	mu    sync.RWMutex
	seats map[uint64]*model.SeatState
}

// NewSeatIndex returns an empty index backed by the given catalog and ledger.
func NewSeatIndex(catalog Catalog, ledger Ledger, log zerolog.Logger) *SeatIndex {
	return &SeatIndex{
		catalog: catalog,
		ledger:  ledger,
		log:     log,
		shows:   make(map[uint64]*showEntry),
	}
}

// Load materializes the seat state of a show from durable storage.  It is
// idempotent: once a show is loaded, subsequent calls are cheap lookups.
// Safe to call while holding the ShowLock for that show.
//
// The rebuild joins the catalog's seat list with the ledger's seat
// assignments: seats claimed by a PENDING booking come back LOCKED with
// their original lease deadline, seats of a CONFIRMED booking come back
// BOOKED, and seats whose owning booking is already terminal are reclaimed
// to AVAILABLE.  A seat claimed by two live bookings is impossible by
// invariant; it raises the inconsistency alarm.
func (i *SeatIndex) Load(ctx context.Context, showID uint64) error {
	i.mu.Lock()
	if _, ok := i.shows[showID]; ok {
		i.mu.Unlock()
		return nil
	}
	i.mu.Unlock()

	catalogSeats, err := i.catalog.SeatsForShow(ctx, showID)
	if err != nil {
		return storageErr("load show seats", err)
	}
	if len(catalogSeats) == 0 {
		return ErrShowNotFound
	}
	assignments, err := i.ledger.SeatAssignments(ctx, showID)
	if err != nil {
		return storageErr("load seat assignments", err)
	}

	seats := make(map[uint64]*model.SeatState, len(catalogSeats))
	for _, cs := range catalogSeats {
		st := &model.SeatState{
			SeatID:     cs.SeatID,
			Status:     model.SeatAvailable,
			PriceCents: cs.PriceCents,
		}
		if cs.Blocked {
			st.Status = model.SeatMaintenance
		}
		seats[cs.SeatID] = st
	}

	for _, a := range assignments {
		if a.BookingStatus.Terminal() {
			continue // booking released its seats; leave AVAILABLE
		}
		st, ok := seats[a.SeatID]
		if !ok {
			i.alarm(showID, a.SeatID, a.BookingID, "ledger references a seat the catalog does not know")
			return ErrInconsistency
		}
		if st.HolderBookingID != 0 {
			i.alarm(showID, a.SeatID, a.BookingID, "seat claimed by two live bookings")
			return ErrInconsistency
		}
		if err := st.Lock(a.BookingID, a.ExpiresAt); err != nil {
			i.alarm(showID, a.SeatID, a.BookingID, "seat not lockable during rebuild")
			return ErrInconsistency
		}
		if a.BookingStatus == model.BookingConfirmed {
			if err := st.Confirm(a.BookingID); err != nil {
				i.alarm(showID, a.SeatID, a.BookingID, "seat not confirmable during rebuild")
				return ErrInconsistency
			}
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.shows[showID]; !ok {
		i.shows[showID] = &showEntry{seats: seats}
	}
	return nil
}

// Mutate runs fn with write access to a show's seat map.  The caller must
// hold the ShowLock for the show; the per-show write lock taken here only
// fences concurrent snapshot readers.  Returns ErrShowNotFound when the show
// has not been loaded.
func (i *SeatIndex) Mutate(showID uint64, fn func(seats map[uint64]*model.SeatState) error) error {
	i.mu.Lock()
	e, ok := i.shows[showID]
	i.mu.Unlock()
	if !ok {
		return ErrShowNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.seats)
}

// Snapshot returns a point-in-time copy of a show's seat states, sorted is
// not guaranteed.  It never blocks on the ShowLock; callers must treat the
// result as possibly stale the instant it is returned.  The second return
// is false when the show has not been loaded.
func (i *SeatIndex) Snapshot(showID uint64) ([]model.SeatState, bool) {
	i.mu.Lock()
	e, ok := i.shows[showID]
	i.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.SeatState, 0, len(e.seats))
	for _, st := range e.seats {
		out = append(out, *st)
	}
	return out, true
}

// Drop forgets the in-memory state of a show.  The next Load rebuilds from
// the ledger.  Used when a show is retired and by crash-recovery tests.
func (i *SeatIndex) Drop(showID uint64) {
	i.mu.Lock()
	delete(i.shows, showID)
	i.mu.Unlock()
}

func (i *SeatIndex) alarm(showID, seatID, bookingID uint64, msg string) {
	i.log.Error().
		Uint64("show_id", showID).
		Uint64("seat_id", seatID).
		Uint64("booking_id", bookingID).
		Str("alarm", "inconsistency").
		Msg(msg)
}
