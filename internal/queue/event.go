// Package queue defines message payloads exchanged over the message broker
// and the consumer that feeds payment outcomes into the booking core.
package queue

// PaymentOutcomeEvent is published by the payment gateway integration when a
// payment attempt finishes.  EventID is a gateway-generated UUID; consumers
// do not need to deduplicate on it because confirm and cancel are
// idempotent, but it makes duplicate deliveries visible in logs.
type PaymentOutcomeEvent struct {
	EventID    string `json:"event_id"`
	BookingID  uint64 `json:"booking_id"`
	UserID     uint64 `json:"user_id"`
	PaymentRef string `json:"payment_ref"`
	Status     string `json:"status"` // SUCCEEDED, FAILED or TIMED_OUT
	OccurredAt string `json:"occurred_at"`
}

// BookingConfirmedEvent is published when a booking is successfully
// confirmed.  It contains enough information for downstream consumers to
// notify or run analytics without querying the primary database.
type BookingConfirmedEvent struct {
	EventID          string   `json:"event_id"`
	BookingID        uint64   `json:"booking_id"`
	UserID           uint64   `json:"user_id"`
	ShowID           uint64   `json:"show_id"`
	SeatIDs          []uint64 `json:"seat_ids"`
	TotalAmountCents uint32   `json:"total_amount_cents"`
	PaymentRef       string   `json:"payment_ref"`
	ConfirmedAt      string   `json:"confirmed_at"`
}
