package booking

import (
	"context"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// Ledger is the durable record of bookings and their seat sets, and the
// authoritative source of truth for crash recovery.  Implementations must
// make every conditional transition atomic relative to concurrent reads of
// the same booking; the returned bool reports whether the row was actually
// mutated, which is how racing transitions (e.g. reaper vs. confirm) are
// resolved.  Bookings are never deleted, only their statuses move.
type Ledger interface {
	// InsertPending writes a new PENDING booking and its seat set.  It
	// assigns the booking id and creation timestamp on the passed value.
	InsertPending(ctx context.Context, b *model.Booking) error

	// MarkConfirmed moves PENDING → CONFIRMED and records the payment
	// reference.  Returns false when the booking was not PENDING.
	MarkConfirmed(ctx context.Context, bookingID uint64, paymentRef string) (bool, error)

	// MarkCancelled moves PENDING or CONFIRMED → CANCELLED.  Returns false
	// when the booking was already terminal.
	MarkCancelled(ctx context.Context, bookingID uint64) (bool, error)

	// MarkExpired moves PENDING → EXPIRED.  Returns false when the booking
	// was not PENDING, which the reaper treats as "someone got there
	// first" and skips.
	MarkExpired(ctx context.Context, bookingID uint64) (bool, error)

	// GetBooking loads a booking with its seat set.  Returns
	// ErrBookingNotFound for unknown ids.
	GetBooking(ctx context.Context, bookingID uint64) (*model.Booking, error)

	// FindPending returns all PENDING bookings whose expiry deadline is at
	// or before the given instant.  Used by the reaper's scan.
	FindPending(ctx context.Context, expiringBefore time.Time) ([]model.Booking, error)

	// SeatAssignments returns, for a show, every seat claimed by any
	// booking together with that booking's current status.  SeatIndex uses
	// it to rebuild in-memory state after a restart.
	SeatAssignments(ctx context.Context, showID uint64) ([]SeatAssignment, error)
}

// SeatAssignment is one row of the ledger join used for recovery: a seat, the
// booking that claims it, and where that booking currently stands.
type SeatAssignment struct {
	BookingID     uint64
	SeatID        uint64
	PriceCents    uint32
	BookingStatus model.BookingStatus
	ExpiresAt     time.Time // lease deadline of the owning booking
}

// Catalog is the engine's read-only view of the show inventory, plus the one
// write it needs: persisting the maintenance flag of a seat so rebuilds see
// it.  Implementations return ErrShowNotFound for unknown shows.
type Catalog interface {
	// GetShow returns the core view of a show.
	GetShow(ctx context.Context, showID uint64) (*model.Show, error)

	// SeatsForShow returns every seat valid for the show with its
	// effective price (base price × seat-type multiplier) and whether it
	// is administratively blocked.
	SeatsForShow(ctx context.Context, showID uint64) ([]model.ShowSeat, error)

	// SetSeatBlocked persists the maintenance flag for one seat of a show.
	SetSeatBlocked(ctx context.Context, showID, seatID uint64, blocked bool) error
}
