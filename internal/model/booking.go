package model

import "time"

// BookingStatus enumerates the lifecycle states of a booking.  Transitions
// are monotonic: PENDING may move to CONFIRMED, CANCELLED or EXPIRED;
// CONFIRMED may only move to CANCELLED (explicit cancellation with refund
// handled outside the core); CANCELLED and EXPIRED never change again.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingExpired   BookingStatus = "EXPIRED"
)

// Terminal reports whether the booking has released its seats for good.
// A CONFIRMED booking still owns seats and is therefore not terminal here.
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingExpired
}

// BookingSeat records one seat claimed by a booking together with the
// price charged for it.
//
// Fields:
//
//	SeatID     – seat claimed by the booking.
//	PriceCents – price for this seat in cents.
type BookingSeat struct {
	SeatID     uint64 // booking_seats.seat_id
	PriceCents uint32 // booking_seats.price_cents
}

// Booking is a user's claim on a set of seats for a show.  While PENDING it
// holds seat leases until ExpiresAt; on confirmation the seats become
// booked; cancellation or expiry releases them.  Bookings are never deleted
// and never mutated after reaching a terminal status.
//
// Fields:
//
//	ID               – ledger-assigned identifier.
//	UserID           – user who made the booking.
//	ShowID           – show being booked.
//	Seats            – seats claimed, with per-seat prices.
//	TotalAmountCents – total price across all seats, in cents.
//	Status           – lifecycle status.
//	PaymentRef       – external payment reference; nil until payment begins.
//	CreatedAt        – creation timestamp.
//	ExpiresAt        – lease deadline of the initial seat hold.
type Booking struct {
	ID               uint64        // bookings.id
	UserID           uint64        // bookings.user_id
	ShowID           uint64        // bookings.show_id
	Seats            []BookingSeat // bookings ↔ booking_seats
	TotalAmountCents uint32        // bookings.total_amount_cents
	Status           BookingStatus // bookings.status
	PaymentRef       *string       // bookings.payment_ref (nullable)
	CreatedAt        time.Time     // bookings.created_at
	ExpiresAt        time.Time     // bookings.expires_at
}

// SeatIDs returns the ids of all seats claimed by the booking, in the order
// they were requested.
func (b *Booking) SeatIDs() []uint64 {
	ids := make([]uint64, 0, len(b.Seats))
	for _, s := range b.Seats {
		ids = append(ids, s.SeatID)
	}
	return ids
}
