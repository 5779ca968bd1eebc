// Package queue_publisher provides functions to publish domain events to
// RabbitMQ.  Errors are logged and returned to allow callers to ignore
// failures without interrupting the main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	q "github.com/iliyamo/movie-ticket-booking/internal/queue"
)

const confirmedQueueName = "booking.confirmed"

// PublishBookingConfirmed announces a confirmed booking on the
// "booking.confirmed" queue for notification and analytics consumers.  Any
// error is logged and returned so the caller can choose to ignore it; a
// confirmed booking must not be rolled back because an event could not be
// emitted.  Messages are marked persistent so they survive broker restarts.
func PublishBookingConfirmed(ctx context.Context, b *model.Booking, log zerolog.Logger) error {
	ref := ""
	if b.PaymentRef != nil {
		ref = *b.PaymentRef
	}
	event := q.BookingConfirmedEvent{
		EventID:          uuid.NewString(),
		BookingID:        b.ID,
		UserID:           b.UserID,
		ShowID:           b.ShowID,
		SeatIDs:          b.SeatIDs(),
		TotalAmountCents: b.TotalAmountCents,
		PaymentRef:       ref,
		ConfirmedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	conn, err := amqp.Dial(q.BrokerURL())
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent).  Durable so messages survive
	// broker restarts.
	if _, err := ch.QueueDeclare(
		confirmedQueueName, // name
		true,               // durable
		false,              // autoDelete
		false,              // exclusive
		false,              // noWait
		nil,                // args
	); err != nil {
		log.Warn().Err(err).Msg("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq: marshal event failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",                 // default exchange
		confirmedQueueName, // routing key = queue name
		false,              // mandatory
		false,              // immediate
		pub,
	); err != nil {
		log.Warn().Err(err).Msg("rabbitmq: publish failed")
		return err
	}
	return nil
}
