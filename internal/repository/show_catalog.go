package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/movie-ticket-booking/internal/booking"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// ShowCatalog is the read-only MySQL view of the show inventory consumed by
// the booking core, plus the single write the core needs: persisting a
// seat's maintenance flag.  Seat prices are computed here as base price ×
// seat-type multiplier so the engine never sees seat types at all.
type ShowCatalog struct {
	db *sql.DB
}

// NewShowCatalog returns a catalog bound to the provided database.
func NewShowCatalog(db *sql.DB) *ShowCatalog { return &ShowCatalog{db: db} }

// GetShow loads the core view of a show.  Unknown ids map to
// booking.ErrShowNotFound so the engine can classify them.
func (c *ShowCatalog) GetShow(ctx context.Context, showID uint64) (*model.Show, error) {
	const q = `SELECT id, screen_id, starts_at, ends_at, base_price_cents, status
	           FROM shows WHERE id = ?`
	var s model.Show
	var status string
	err := c.db.QueryRowContext(ctx, q, showID).Scan(
		&s.ID, &s.ScreenID, &s.StartsAt, &s.EndsAt, &s.BasePriceCents, &status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrShowNotFound
		}
		return nil, err
	}
	s.Status = model.ShowStatus(status)
	return &s, nil
}

// SeatsForShow returns every seat offered for the show.  The effective
// price multiplies the show's base price by the seat type's multiplier
// (stored as percent, 100 = ×1.0), rounding down to whole cents.
func (c *ShowCatalog) SeatsForShow(ctx context.Context, showID uint64) ([]model.ShowSeat, error) {
	const q = `SELECT ss.seat_id, s.base_price_cents * ss.price_multiplier_pct DIV 100, ss.status
	           FROM show_seats ss
	           JOIN shows s ON s.id = ss.show_id
	           WHERE ss.show_id = ?
	           ORDER BY ss.seat_id`
	rows, err := c.db.QueryContext(ctx, q, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []model.ShowSeat
	for rows.Next() {
		var seat model.ShowSeat
		var status string
		if err := rows.Scan(&seat.SeatID, &seat.PriceCents, &status); err != nil {
			return nil, err
		}
		seat.Blocked = status == "BLOCKED"
		seats = append(seats, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}

// SetSeatBlocked persists the maintenance flag of one seat.  The engine
// only calls this under the show lock after validating the transition, so
// the UPDATE is unconditional on the previous status.
func (c *ShowCatalog) SetSeatBlocked(ctx context.Context, showID, seatID uint64, blocked bool) error {
	status := "OPEN"
	if blocked {
		status = "BLOCKED"
	}
	const q = `UPDATE show_seats SET status = ? WHERE show_id = ? AND seat_id = ?`
	res, err := c.db.ExecContext(ctx, q, status, showID, seatID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrInvalidSeats
	}
	return nil
}
