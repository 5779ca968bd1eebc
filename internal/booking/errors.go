// Package booking implements the seat reservation engine: per-show seat
// state kept consistent with a durable booking ledger, an exclusive lock per
// show serializing all mutations, time-bounded seat leases handed to pending
// bookings, and the background reaper that reclaims expired leases.
//
// The engine is a library.  It performs no transport or persistence of its
// own; callers inject a Ledger, a Catalog and a Clock.  Every failure is one
// of the closed set of error kinds defined in this file, recognizable with
// errors.Is, so the layer above can map them without string matching.
package booking

import (
	"errors"
	"fmt"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

var (
	// ErrInvalidSeats is returned when the requested seat set is empty,
	// contains duplicates, or names seats that do not belong to the show.
	ErrInvalidSeats = errors.New("invalid seat selection")

	// ErrShowNotBookable is returned when the show is unknown, cancelled,
	// or has already started.
	ErrShowNotBookable = errors.New("show not bookable")

	// ErrShowNotFound is returned by Catalog implementations for unknown
	// show ids.  The engine folds it into ErrShowNotBookable at the API
	// boundary.
	ErrShowNotFound = errors.New("show not found")

	// ErrBookingNotFound is returned when no booking with the given id
	// exists in the ledger.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrBookingNotPending is returned when an operation requires a
	// PENDING booking but the booking has moved on.
	ErrBookingNotPending = errors.New("booking not pending")

	// ErrLeaseExpired is returned when a confirmation arrives after the
	// seat lease ran out.  The booking is transitioned to EXPIRED in the
	// same critical section; the caller may initiate a refund.
	ErrLeaseExpired = errors.New("lease expired")

	// ErrUnauthorized is returned when the calling user does not own the
	// booking they are trying to cancel.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCancellationNotAllowed is returned when policy forbids cancelling
	// a confirmed booking after the show has started.
	ErrCancellationNotAllowed = errors.New("cancellation not allowed")

	// ErrContention is returned when the show lock could not be acquired
	// within the configured budget.  Callers should retry with backoff.
	ErrContention = errors.New("show lock contention")

	// ErrTimeout is returned when the request deadline elapsed before the
	// show lock was acquired.  Nothing was mutated.
	ErrTimeout = errors.New("request deadline exceeded")

	// ErrSeatUnavailable is the sentinel matched by *SeatUnavailableError.
	ErrSeatUnavailable = errors.New("seats unavailable")

	// ErrStorage is the sentinel matched by *StorageError.
	ErrStorage = errors.New("storage failure")

	// ErrInconsistency signals that the ledger and the seat index disagree
	// in a way that should be impossible.  It is fatal for the affected
	// show; an alarm is logged with the offending ids.
	ErrInconsistency = errors.New("ledger/index inconsistency")
)

// SeatUnavailableError reports which requested seats were not AVAILABLE.
// The acquire fails atomically: no seat was locked and nothing was written.
type SeatUnavailableError struct {
	SeatIDs []uint64 // offending seats, in request order
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable: %v", e.SeatIDs)
}

// Is reports ErrSeatUnavailable so callers can match without the type.
func (e *SeatUnavailableError) Is(target error) bool { return target == ErrSeatUnavailable }

// StorageError wraps a ledger or catalog I/O failure.  The engine guarantees
// no partial in-memory state was left behind when one is returned.
type StorageError struct {
	Op  string // operation that failed, e.g. "insert pending"
	Err error  // underlying driver error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

// Is reports ErrStorage so callers can match without the type.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Unwrap exposes the underlying driver error.
func (e *StorageError) Unwrap() error { return e.Err }

// storageErr is a small helper used throughout the engine.
func storageErr(op string, err error) error { return &StorageError{Op: op, Err: err} }

// ErrIllegalTransition re-exports the seat state machine sentinel so callers
// of the engine only need this package to classify every failure kind.
var ErrIllegalTransition = model.ErrIllegalTransition
