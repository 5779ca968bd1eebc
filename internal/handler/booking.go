package handler

import (
	"errors"   // for errors.Is / errors.As comparisons
	"net/http" // HTTP status codes
	"strconv"  // parsing path parameters
	"time"     // converting the optional lease override

	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/booking"
	"github.com/iliyamo/movie-ticket-booking/internal/cache"
	queue_publisher "github.com/iliyamo/movie-ticket-booking/internal/service"
)

// BookingHandler exposes the reservation engine over HTTP.  All methods
// assume the caller's identity arrives in the X-User-ID header; upstream
// infrastructure (API gateway) is responsible for authenticating it.  The
// handler itself holds no locks and keeps no state: every request is a
// single engine call plus status-code mapping.
type BookingHandler struct {
	Engine *booking.Engine
	Cache  *cache.Availability // may be nil; availability then always reads live
	Log    zerolog.Logger
}

// NewBookingHandler constructs a handler.  The engine must be non-nil.
func NewBookingHandler(engine *booking.Engine, avail *cache.Availability, log zerolog.Logger) *BookingHandler {
	if engine == nil {
		panic("nil engine passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: engine, Cache: avail, Log: log}
}

// getUserID extracts the caller's user id from the X-User-ID header.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Request().Header.Get("X-User-ID")
	if v == "" {
		return 0, errors.New("missing X-User-ID header")
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		return 0, errors.New("invalid X-User-ID header")
	}
	return n, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// respondError maps the engine's error kinds onto HTTP statuses.  Seat
// conflicts carry the offending seat ids so the client can re-pick.
func respondError(c echo.Context, err error) error {
	var unavailable *booking.SeatUnavailableError
	switch {
	case errors.As(err, &unavailable):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       "some seats are unavailable",
			"unavailable": unavailable.SeatIDs,
		})
	case errors.Is(err, booking.ErrInvalidSeats):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat selection"})
	case errors.Is(err, booking.ErrShowNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
	case errors.Is(err, booking.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, booking.ErrShowNotBookable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "show is not open for booking"})
	case errors.Is(err, booking.ErrLeaseExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "hold expired"})
	case errors.Is(err, booking.ErrBookingNotPending):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking is not pending"})
	case errors.Is(err, booking.ErrCancellationNotAllowed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "cancellation not allowed"})
	case errors.Is(err, booking.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, booking.ErrContention), errors.Is(err, booking.ErrTimeout):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "show is busy, retry"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// AcquireSeats handles POST /v1/shows/:id/acquire.  The request body must
// contain a JSON object with a "seat_ids" array of positive integers.  On
// success it returns 201 Created with the booking id, total price and the
// hold's expiration timestamp.  Unavailable seats produce 409 with the
// conflicting ids.
func (h *BookingHandler) AcquireSeats(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	var body struct {
		SeatIDs      []uint64 `json:"seat_ids"`
		LeaseSeconds int      `json:"lease_seconds"` // optional; 0 means server default
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
	}
	lease := time.Duration(body.LeaseSeconds) * time.Second

	b, err := h.Engine.Acquire(c.Request().Context(), userID, showID, body.SeatIDs, lease)
	if err != nil {
		return respondError(c, err)
	}
	if h.Cache != nil {
		h.Cache.Invalidate(c.Request().Context(), showID)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"booking_id":         b.ID,
		"seat_ids":           b.SeatIDs(),
		"total_amount_cents": b.TotalAmountCents,
		"expires_at":         b.ExpiresAt,
	})
}

// ConfirmBooking handles POST /v1/bookings/:id/confirm.  The request body
// carries the payment reference issued by the gateway.  Confirming an
// already-confirmed booking with the same reference succeeds again, so
// payment retries are harmless.  An expired hold returns 410 Gone.
func (h *BookingHandler) ConfirmBooking(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var body struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := c.Bind(&body); err != nil || body.PaymentRef == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_ref is required"})
	}

	b, err := h.Engine.Confirm(c.Request().Context(), bookingID, body.PaymentRef)
	if err != nil {
		return respondError(c, err)
	}
	if h.Cache != nil {
		h.Cache.Invalidate(c.Request().Context(), b.ShowID)
	}
	// Event emission is best effort; the confirmation already committed.
	_ = queue_publisher.PublishBookingConfirmed(c.Request().Context(), b, h.Log)
	return c.JSON(http.StatusOK, echo.Map{
		"booking_id":         b.ID,
		"status":             b.Status,
		"total_amount_cents": b.TotalAmountCents,
	})
}

// CancelBooking handles POST /v1/bookings/:id/cancel.  Only the booking's
// owner may cancel.  Cancelling a booking that already reached a terminal
// state succeeds without effect, which absorbs duplicate gateway callbacks.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	b, err := h.Engine.GetBooking(c.Request().Context(), bookingID)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Engine.Cancel(c.Request().Context(), bookingID, userID); err != nil {
		return respondError(c, err)
	}
	if h.Cache != nil {
		h.Cache.Invalidate(c.Request().Context(), b.ShowID)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetBooking handles GET /v1/bookings/:id.  It returns the booking's
// current state to its owner; other users receive 403.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	b, err := h.Engine.GetBooking(c.Request().Context(), bookingID)
	if err != nil {
		return respondError(c, err)
	}
	if b.UserID != userID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking_id":         b.ID,
		"show_id":            b.ShowID,
		"status":             b.Status,
		"seat_ids":           b.SeatIDs(),
		"total_amount_cents": b.TotalAmountCents,
		"expires_at":         b.ExpiresAt,
	})
}

// Availability handles GET /v1/shows/:id/seats.  No authentication is
// required so guests can browse the seat map.  Snapshots are served from
// the Redis cache when possible; a miss reads the live seat index and
// refills the cache.
func (h *BookingHandler) Availability(c echo.Context) error {
	showID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	ctx := c.Request().Context()

	if h.Cache != nil {
		if seats, hit := h.Cache.Get(ctx, showID); hit {
			c.Response().Header().Set("X-Cache", "HIT")
			return c.JSON(http.StatusOK, echo.Map{"seats": seats})
		}
	}
	seats, err := h.Engine.Availability(ctx, showID)
	if err != nil {
		return respondError(c, err)
	}
	if h.Cache != nil {
		h.Cache.Put(ctx, showID, seats)
		c.Response().Header().Set("X-Cache", "MISS")
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": seats})
}

// SetMaintenance handles PUT /v1/shows/:id/seats/:seat_id/maintenance.  It
// takes a seat out of sale.  Only available seats can be blocked; a held or
// booked seat returns 409.
func (h *BookingHandler) SetMaintenance(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	seatID, ok := pathID(c, "seat_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	if err := h.Engine.SetMaintenance(c.Request().Context(), showID, seatID); err != nil {
		if errors.Is(err, booking.ErrIllegalTransition) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "seat is held or booked"})
		}
		return respondError(c, err)
	}
	if h.Cache != nil {
		h.Cache.Invalidate(c.Request().Context(), showID)
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearMaintenance handles DELETE /v1/shows/:id/seats/:seat_id/maintenance.
// It returns a blocked seat to sale.
func (h *BookingHandler) ClearMaintenance(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	seatID, ok := pathID(c, "seat_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	if err := h.Engine.ClearMaintenance(c.Request().Context(), showID, seatID); err != nil {
		if errors.Is(err, booking.ErrIllegalTransition) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "seat is not under maintenance"})
		}
		return respondError(c, err)
	}
	if h.Cache != nil {
		h.Cache.Invalidate(c.Request().Context(), showID)
	}
	return c.NoContent(http.StatusNoContent)
}
