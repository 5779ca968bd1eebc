package model

import "time"

// ShowStatus enumerates the states of a scheduled screening.
type ShowStatus string

const (
	ShowScheduled ShowStatus = "SCHEDULED"
	ShowCancelled ShowStatus = "CANCELLED"
	ShowFinished  ShowStatus = "FINISHED"
)

// Show is the reservation engine's view of a scheduled screening.  It
// carries only what the booking core needs: identity, timing (to forbid
// acquisition once the show has started) and pricing.
//
// Fields:
//
//	ID             – primary key identifier.
//	ScreenID       – screen where the show takes place.
//	StartsAt       – when the show begins.
//	EndsAt         – when the show ends (after StartsAt).
//	BasePriceCents – base seat price in cents before seat-type multipliers.
//	Status         – current state of the show.
type Show struct {
	ID             uint64     // shows.id
	ScreenID       uint64     // shows.screen_id
	StartsAt       time.Time  // shows.starts_at
	EndsAt         time.Time  // shows.ends_at
	BasePriceCents uint32     // shows.base_price_cents
	Status         ShowStatus // shows.status
}

// Bookable reports whether new seat acquisitions are allowed: the show must
// be scheduled and must not have started yet.
func (s *Show) Bookable(now time.Time) bool {
	return s.Status == ShowScheduled && now.Before(s.StartsAt)
}

// ShowSeat describes one seat offered for a show as the catalog sees it:
// its identity, the effective price after the seat-type multiplier, and
// whether the seat is administratively blocked.
//
// Fields:
//
//	SeatID     – seat identifier within the screen.
//	PriceCents – effective price for this show in cents.
//	Blocked    – seat is under maintenance and must not be sold.
type ShowSeat struct {
	SeatID     uint64 // show_seats.seat_id
	PriceCents uint32 // show_seats.price_cents
	Blocked    bool   // show_seats.status = 'BLOCKED'
}
