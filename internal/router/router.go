package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/movie-ticket-booking/internal/handler" // import the handlers that implement business logic
)

// RegisterRoutes registers routes that do not require a user identity on
// the provided Echo instance.  Guests can check service health and browse
// seat availability before deciding to book.
func RegisterRoutes(e *echo.Echo, b *handler.BookingHandler) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
	// Seat availability is public so guests can preview the seat map.
	e.GET("/v1/shows/:id/seats", b.Availability)
}

// RegisterBooking registers the reservation endpoints.  All of them expect
// the caller's identity in the X-User-ID header; an API gateway in front of
// this service is responsible for authenticating it.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler) {
	g := e.Group("/v1")
	// Hold seats for a show.  Returns the pending booking and its lease.
	g.POST("/shows/:id/acquire", b.AcquireSeats)
	// Inspect a booking's current state.
	g.GET("/bookings/:id", b.GetBooking)
	// Finalize a pending booking with the gateway's payment reference.
	g.POST("/bookings/:id/confirm", b.ConfirmBooking)
	// Cancel a booking, releasing any held seats.
	g.POST("/bookings/:id/cancel", b.CancelBooking)
	// Operator endpoints: take a seat out of sale and bring it back.
	g.PUT("/shows/:id/seats/:seat_id/maintenance", b.SetMaintenance)
	g.DELETE("/shows/:id/seats/:seat_id/maintenance", b.ClearMaintenance)
}
