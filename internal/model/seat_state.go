package model

import (
	"errors"
	"fmt"
	"time"
)

// SeatStatus enumerates the states a seat can be in for a particular show.
type SeatStatus string

const (
	SeatAvailable   SeatStatus = "AVAILABLE"   // seat can be locked by a new booking
	SeatLocked      SeatStatus = "LOCKED"      // seat is held by a pending booking until its lease deadline
	SeatBooked      SeatStatus = "BOOKED"      // seat belongs to a confirmed booking
	SeatMaintenance SeatStatus = "MAINTENANCE" // seat is administratively blocked
)

// ErrIllegalTransition is the sentinel for seat state machine violations.
// Use errors.Is to detect it; the concrete *IllegalTransitionError carries
// the offending seat and transition.
var ErrIllegalTransition = errors.New("illegal seat transition")

// IllegalTransitionError reports an attempt to move a seat through a
// transition the state machine does not allow.  These indicate a bug in the
// caller, never a recoverable user error.
type IllegalTransitionError struct {
	SeatID uint64
	From   SeatStatus
	Op     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("seat %d: illegal transition %s from %s", e.SeatID, e.Op, e.From)
}

// Is reports ErrIllegalTransition so callers can match without the type.
func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// SeatState is the per-(show,seat) value the reservation engine operates on.
// All mutation goes through the transition helpers below, which enforce the
// legal moves of the seat state machine:
//
//	AVAILABLE ──lock──▶ LOCKED ──confirm──▶ BOOKED
//	    ▲                 │
//	    │                 ├── release ──▶ AVAILABLE
//	    │                 └── reap (deadline passed) ──▶ AVAILABLE
//	MAINTENANCE (admin only, entered from and cleared back to AVAILABLE)
//
// Fields:
//
//	SeatID          – stable seat identifier within the show.
//	Status          – current status, one of the SeatStatus values.
//	HolderBookingID – booking holding the seat; zero unless LOCKED or BOOKED.
//	LeaseDeadline   – absolute lease expiry; meaningful only when LOCKED.
//	PriceCents      – price of this seat for this show, in cents.
type SeatState struct {
	SeatID          uint64
	Status          SeatStatus
	HolderBookingID uint64
	LeaseDeadline   time.Time
	PriceCents      uint32
}

// Lock transitions AVAILABLE → LOCKED on behalf of the given booking.
func (s *SeatState) Lock(bookingID uint64, deadline time.Time) error {
	if s.Status != SeatAvailable {
		return &IllegalTransitionError{SeatID: s.SeatID, From: s.Status, Op: "lock"}
	}
	s.Status = SeatLocked
	s.HolderBookingID = bookingID
	s.LeaseDeadline = deadline
	return nil
}

// Renew extends the lease deadline of a LOCKED seat.  The new deadline must
// be strictly later than the current one.
func (s *SeatState) Renew(bookingID uint64, deadline time.Time) error {
	if s.Status != SeatLocked || s.HolderBookingID != bookingID || !deadline.After(s.LeaseDeadline) {
		return &IllegalTransitionError{SeatID: s.SeatID, From: s.Status, Op: "renew"}
	}
	s.LeaseDeadline = deadline
	return nil
}

// Confirm transitions LOCKED → BOOKED.  The booking must match the holder.
func (s *SeatState) Confirm(bookingID uint64) error {
	if s.Status != SeatLocked || s.HolderBookingID != bookingID {
		return &IllegalTransitionError{SeatID: s.SeatID, From: s.Status, Op: "confirm"}
	}
	s.Status = SeatBooked
	s.LeaseDeadline = time.Time{}
	return nil
}

// Release returns a LOCKED or BOOKED seat to AVAILABLE.  The booking must
// match the holder.  Used by cancellation and by lease reclamation paths
// that already verified the holder.
func (s *SeatState) Release(bookingID uint64) error {
	if (s.Status != SeatLocked && s.Status != SeatBooked) || s.HolderBookingID != bookingID {
		return &IllegalTransitionError{SeatID: s.SeatID, From: s.Status, Op: "release"}
	}
	s.Status = SeatAvailable
	s.HolderBookingID = 0
	s.LeaseDeadline = time.Time{}
	return nil
}

// Reap returns a LOCKED seat whose lease deadline has passed to AVAILABLE.
func (s *SeatState) Reap(now time.Time) error {
	if s.Status != SeatLocked || !now.After(s.LeaseDeadline) {
		return &IllegalTransitionError{SeatID: s.SeatID, From: s.Status, Op: "reap"}
	}
	s.Status = SeatAvailable
	s.HolderBookingID = 0
	s.LeaseDeadline = time.Time{}
	return nil
}

// SetMaintenance blocks an AVAILABLE seat for administrative work.
func (s *SeatState) SetMaintenance() error {
	if s.Status != SeatAvailable {
		return &IllegalTransitionError{SeatID: s.SeatID, From: s.Status, Op: "maintenance"}
	}
	s.Status = SeatMaintenance
	return nil
}

// ClearMaintenance returns a MAINTENANCE seat to AVAILABLE.
func (s *SeatState) ClearMaintenance() error {
	if s.Status != SeatMaintenance {
		return &IllegalTransitionError{SeatID: s.SeatID, From: s.Status, Op: "clear-maintenance"}
	}
	s.Status = SeatAvailable
	return nil
}

// EffectiveStatus collapses a LOCKED seat with an expired lease into
// AVAILABLE.  Availability views use this so readers never see a stale hold
// the reaper has not reclaimed yet.
func (s *SeatState) EffectiveStatus(now time.Time) SeatStatus {
	if s.Status == SeatLocked && now.After(s.LeaseDeadline) {
		return SeatAvailable
	}
	return s.Status
}
