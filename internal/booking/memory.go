package booking

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// MemoryLedger is a Ledger kept entirely in process memory.  Conditional
// transitions are atomic under a single mutex, which is all the contract
// asks for.  Tests use it directly; crash recovery is simulated by dropping
// the seat index while keeping the ledger.
type MemoryLedger struct {
	clock clock.Clock

	mu       sync.Mutex
	nextID   uint64
	bookings map[uint64]*model.Booking
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger(clk clock.Clock) *MemoryLedger {
	return &MemoryLedger{clock: clk, nextID: 1, bookings: make(map[uint64]*model.Booking)}
}

func cloneBooking(b *model.Booking) *model.Booking {
	out := *b
	out.Seats = append([]model.BookingSeat(nil), b.Seats...)
	if b.PaymentRef != nil {
		ref := *b.PaymentRef
		out.PaymentRef = &ref
	}
	return &out
}

// InsertPending assigns the next id and stores a copy of the booking.
func (l *MemoryLedger) InsertPending(ctx context.Context, b *model.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b.ID = l.nextID
	l.nextID++
	b.Status = model.BookingPending
	if b.CreatedAt.IsZero() {
		b.CreatedAt = l.clock.Now()
	}
	l.bookings[b.ID] = cloneBooking(b)
	return nil
}

// MarkConfirmed moves PENDING → CONFIRMED and records the payment reference.
func (l *MemoryLedger) MarkConfirmed(ctx context.Context, bookingID uint64, paymentRef string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[bookingID]
	if !ok || b.Status != model.BookingPending {
		return false, nil
	}
	b.Status = model.BookingConfirmed
	b.PaymentRef = &paymentRef
	return true, nil
}

// MarkCancelled moves PENDING or CONFIRMED → CANCELLED.
func (l *MemoryLedger) MarkCancelled(ctx context.Context, bookingID uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[bookingID]
	if !ok || b.Status.Terminal() {
		return false, nil
	}
	b.Status = model.BookingCancelled
	return true, nil
}

// MarkExpired moves PENDING → EXPIRED.
func (l *MemoryLedger) MarkExpired(ctx context.Context, bookingID uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[bookingID]
	if !ok || b.Status != model.BookingPending {
		return false, nil
	}
	b.Status = model.BookingExpired
	return true, nil
}

// GetBooking returns a copy of the stored booking.
func (l *MemoryLedger) GetBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[bookingID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

// FindPending returns copies of all PENDING bookings expiring at or before
// the given instant.
func (l *MemoryLedger) FindPending(ctx context.Context, expiringBefore time.Time) ([]model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var due []model.Booking
	for _, b := range l.bookings {
		if b.Status == model.BookingPending && !b.ExpiresAt.After(expiringBefore) {
			due = append(due, *cloneBooking(b))
		}
	}
	return due, nil
}

// SeatAssignments returns every seat claim for a show with the owning
// booking's current status.
func (l *MemoryLedger) SeatAssignments(ctx context.Context, showID uint64) ([]SeatAssignment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []SeatAssignment
	for _, b := range l.bookings {
		if b.ShowID != showID {
			continue
		}
		for _, s := range b.Seats {
			out = append(out, SeatAssignment{
				BookingID:     b.ID,
				SeatID:        s.SeatID,
				PriceCents:    s.PriceCents,
				BookingStatus: b.Status,
				ExpiresAt:     b.ExpiresAt,
			})
		}
	}
	return out, nil
}

// MemoryCatalog is a Catalog backed by maps, for tests and local runs.
type MemoryCatalog struct {
	mu    sync.Mutex
	shows map[uint64]model.Show
	seats map[uint64][]model.ShowSeat
}

// NewMemoryCatalog returns an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{shows: make(map[uint64]model.Show), seats: make(map[uint64][]model.ShowSeat)}
}

// AddShow registers a show and its seat inventory.
func (c *MemoryCatalog) AddShow(show model.Show, seats []model.ShowSeat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shows[show.ID] = show
	c.seats[show.ID] = append([]model.ShowSeat(nil), seats...)
}

// GetShow returns the stored show or ErrShowNotFound.
func (c *MemoryCatalog) GetShow(ctx context.Context, showID uint64) (*model.Show, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	show, ok := c.shows[showID]
	if !ok {
		return nil, ErrShowNotFound
	}
	return &show, nil
}

// SeatsForShow returns a copy of the show's seat inventory.
func (c *MemoryCatalog) SeatsForShow(ctx context.Context, showID uint64) ([]model.ShowSeat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seats, ok := c.seats[showID]
	if !ok {
		return nil, ErrShowNotFound
	}
	return append([]model.ShowSeat(nil), seats...), nil
}

// SetSeatBlocked flips the maintenance flag of one seat.
func (c *MemoryCatalog) SetSeatBlocked(ctx context.Context, showID, seatID uint64, blocked bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	seats, ok := c.seats[showID]
	if !ok {
		return ErrShowNotFound
	}
	for i := range seats {
		if seats[i].SeatID == seatID {
			seats[i].Blocked = blocked
			return nil
		}
	}
	return ErrInvalidSeats
}
