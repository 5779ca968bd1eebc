package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// PaymentStatus enumerates the outcomes a payment gateway can report.
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentTimedOut  PaymentStatus = "TIMED_OUT"
)

// PaymentOutcome is one callback from the external payment gateway.
//
// Fields:
//
//	BookingID  – booking the payment was taken for.
//	UserID     – booking owner, echoed back by the gateway.
//	PaymentRef – gateway reference for the payment attempt.
//	Status     – how the attempt ended.
type PaymentOutcome struct {
	BookingID  uint64
	UserID     uint64
	PaymentRef string
	Status     PaymentStatus
}

// Refunder initiates a refund at the external gateway.  The core does not
// track refund state; it only triggers one when a confirmation arrives too
// late for a lease that was already reclaimed.
type Refunder interface {
	Refund(ctx context.Context, bookingID uint64, paymentRef string) error
}

// PaymentCallbackAdapter is the thin boundary between gateway callbacks and
// the engine: every outcome becomes exactly one of confirm or cancel.
// Duplicate callbacks are absorbed by the idempotence of those operations,
// so gateways with at-least-once delivery need no special handling.
type PaymentCallbackAdapter struct {
	engine   *Engine
	refunder Refunder
	log      zerolog.Logger

	// OnConfirmed, when set, is invoked after a successful confirmation,
	// e.g. to publish a booking.confirmed event.  Failures inside the hook
	// must not affect the booking; the hook gets no error return.
	OnConfirmed func(ctx context.Context, b *model.Booking)
}

// NewPaymentCallbackAdapter wires the adapter.  The refunder may be nil when
// no refund channel exists; late confirmations are then only logged.
func NewPaymentCallbackAdapter(engine *Engine, refunder Refunder, log zerolog.Logger) *PaymentCallbackAdapter {
	return &PaymentCallbackAdapter{engine: engine, refunder: refunder, log: log}
}

// HandleOutcome applies one gateway callback.  Success confirms the booking;
// failure or timeout cancels it.  A success that arrives after the lease
// expired triggers a refund and is not an error from the gateway's point of
// view: the money flow is corrected, the seats are already resold or free.
func (a *PaymentCallbackAdapter) HandleOutcome(ctx context.Context, o PaymentOutcome) error {
	switch o.Status {
	case PaymentSucceeded:
		b, err := a.engine.Confirm(ctx, o.BookingID, o.PaymentRef)
		if err == nil {
			if a.OnConfirmed != nil {
				a.OnConfirmed(ctx, b)
			}
			return nil
		}
		if errors.Is(err, ErrLeaseExpired) {
			a.log.Warn().Uint64("booking_id", o.BookingID).Str("payment_ref", o.PaymentRef).
				Msg("payment succeeded after lease expiry, refunding")
			if a.refunder == nil {
				return nil
			}
			if rerr := a.refunder.Refund(ctx, o.BookingID, o.PaymentRef); rerr != nil {
				return fmt.Errorf("refund after expired lease: %w", rerr)
			}
			return nil
		}
		return err
	case PaymentFailed, PaymentTimedOut:
		// Cancel is a no-op success on already terminal bookings, which is
		// what absorbs duplicate failure callbacks.
		return a.engine.Cancel(ctx, o.BookingID, o.UserID)
	default:
		return fmt.Errorf("unknown payment status %q for booking %d", o.Status, o.BookingID)
	}
}
