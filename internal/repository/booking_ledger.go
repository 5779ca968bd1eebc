// Package repository provides the MySQL-backed implementations of the
// booking core's outbound dependencies: the durable booking ledger and the
// read-only show catalog.  All timestamps are stored and compared in UTC.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/booking"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// BookingLedger persists bookings and their seat sets in the bookings and
// booking_seats tables.  Bookings are never deleted; every lifecycle change
// is a conditional UPDATE on the status column, which is what makes the
// racing transitions of the engine (reaper vs. confirm vs. cancel) safe:
// exactly one of them observes RowsAffected = 1.
type BookingLedger struct {
	db *sql.DB
}

// NewBookingLedger returns a ledger bound to the provided database.
func NewBookingLedger(db *sql.DB) *BookingLedger { return &BookingLedger{db: db} }

// InsertPending writes the booking and its seats in one transaction and
// populates the generated id and creation timestamp on the passed value.
func (l *BookingLedger) InsertPending(ctx context.Context, b *model.Booking) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const ins = `INSERT INTO bookings (user_id, show_id, status, total_amount_cents, expires_at)
	             VALUES (?, ?, 'PENDING', ?, ?)`
	res, err := tx.ExecContext(ctx, ins, b.UserID, b.ShowID, b.TotalAmountCents, b.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)

	if len(b.Seats) > 0 {
		query := `INSERT INTO booking_seats (booking_id, seat_id, price_cents) VALUES `
		args := make([]interface{}, 0, len(b.Seats)*3)
		for i, s := range b.Seats {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, b.ID, s.SeatID, s.PriceCents)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	// Read back the row so the caller sees the DB-assigned creation time.
	const sel = `SELECT created_at FROM bookings WHERE id = ?`
	if err := tx.QueryRowContext(ctx, sel, b.ID).Scan(&b.CreatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// MarkConfirmed moves PENDING → CONFIRMED and records the payment reference.
func (l *BookingLedger) MarkConfirmed(ctx context.Context, bookingID uint64, paymentRef string) (bool, error) {
	const q = `UPDATE bookings SET status = 'CONFIRMED', payment_ref = ?
	           WHERE id = ? AND status = 'PENDING'`
	return l.conditional(ctx, q, paymentRef, bookingID)
}

// MarkCancelled moves PENDING or CONFIRMED → CANCELLED.
func (l *BookingLedger) MarkCancelled(ctx context.Context, bookingID uint64) (bool, error) {
	const q = `UPDATE bookings SET status = 'CANCELLED'
	           WHERE id = ? AND status IN ('PENDING','CONFIRMED')`
	return l.conditional(ctx, q, bookingID)
}

// MarkExpired moves PENDING → EXPIRED.
func (l *BookingLedger) MarkExpired(ctx context.Context, bookingID uint64) (bool, error) {
	const q = `UPDATE bookings SET status = 'EXPIRED'
	           WHERE id = ? AND status = 'PENDING'`
	return l.conditional(ctx, q, bookingID)
}

func (l *BookingLedger) conditional(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetBooking loads one booking with its seat set.
func (l *BookingLedger) GetBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	const q = `SELECT id, user_id, show_id, status, total_amount_cents, payment_ref, created_at, expires_at
	           FROM bookings WHERE id = ?`
	var b model.Booking
	var status string
	var payRef sql.NullString
	err := l.db.QueryRowContext(ctx, q, bookingID).Scan(
		&b.ID, &b.UserID, &b.ShowID, &status, &b.TotalAmountCents,
		&payRef, &b.CreatedAt, &b.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	if payRef.Valid {
		ref := payRef.String
		b.PaymentRef = &ref
	}

	const seatQ = `SELECT seat_id, price_cents FROM booking_seats WHERE booking_id = ? ORDER BY seat_id`
	rows, err := l.db.QueryContext(ctx, seatQ, b.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s model.BookingSeat
		if err := rows.Scan(&s.SeatID, &s.PriceCents); err != nil {
			return nil, err
		}
		b.Seats = append(b.Seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

// FindPending returns all PENDING bookings with expires_at at or before the
// given instant, including their seat sets.
func (l *BookingLedger) FindPending(ctx context.Context, expiringBefore time.Time) ([]model.Booking, error) {
	const q = `SELECT id, user_id, show_id, status, total_amount_cents, payment_ref, created_at, expires_at
	           FROM bookings
	           WHERE status = 'PENDING' AND expires_at <= ?
	           ORDER BY expires_at`
	rows, err := l.db.QueryContext(ctx, q, expiringBefore.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := make([]model.Booking, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		var b model.Booking
		var status string
		var payRef sql.NullString
		if err := rows.Scan(&b.ID, &b.UserID, &b.ShowID, &status, &b.TotalAmountCents,
			&payRef, &b.CreatedAt, &b.ExpiresAt); err != nil {
			return nil, err
		}
		b.Status = model.BookingStatus(status)
		if payRef.Valid {
			ref := payRef.String
			b.PaymentRef = &ref
		}
		index[b.ID] = len(due)
		due = append(due, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return due, nil
	}

	// Fetch seats for all due bookings in a single query.
	ids := make([]interface{}, 0, len(due))
	placeholders := make([]string, 0, len(due))
	for _, b := range due {
		ids = append(ids, b.ID)
		placeholders = append(placeholders, "?")
	}
	seatQ := `SELECT booking_id, seat_id, price_cents FROM booking_seats
	          WHERE booking_id IN (` + strings.Join(placeholders, ",") + `)
	          ORDER BY booking_id, seat_id`
	srows, err := l.db.QueryContext(ctx, seatQ, ids...)
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var bid uint64
		var s model.BookingSeat
		if err := srows.Scan(&bid, &s.SeatID, &s.PriceCents); err != nil {
			return nil, err
		}
		if i, ok := index[bid]; ok {
			due[i].Seats = append(due[i].Seats, s)
		}
	}
	if err := srows.Err(); err != nil {
		return nil, err
	}
	return due, nil
}

// SeatAssignments joins booking_seats with bookings for one show, giving
// the seat index everything it needs to rebuild after a restart.
func (l *BookingLedger) SeatAssignments(ctx context.Context, showID uint64) ([]booking.SeatAssignment, error) {
	const q = `SELECT bs.booking_id, bs.seat_id, bs.price_cents, b.status, b.expires_at
	           FROM booking_seats bs
	           JOIN bookings b ON b.id = bs.booking_id
	           WHERE b.show_id = ?
	           ORDER BY bs.seat_id`
	rows, err := l.db.QueryContext(ctx, q, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.SeatAssignment
	for rows.Next() {
		var a booking.SeatAssignment
		var status string
		if err := rows.Scan(&a.BookingID, &a.SeatID, &a.PriceCents, &status, &a.ExpiresAt); err != nil {
			return nil, err
		}
		a.BookingStatus = model.BookingStatus(status)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
