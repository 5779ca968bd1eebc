package booking

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
)

// DefaultReaperTick is the default interval between expiry scans.
const DefaultReaperTick = 30 * time.Second

// Reaper is the background worker enforcing lease deadlines.  Each tick it
// pulls every PENDING booking whose deadline passed and reclaims it through
// Engine.ExpireBooking, one show lock at a time, with the scheduler free to
// run others in between.
//
// The reaper is idempotent and safe to run in multiple instances: the
// ledger transition PENDING → EXPIRED is conditional, so whoever loses the
// race simply skips the booking.
type Reaper struct {
	engine *Engine
	ledger Ledger
	clock  clock.Clock
	tick   time.Duration
	log    zerolog.Logger
}

// NewReaper returns a reaper scanning at the given interval.  A non-positive
// tick falls back to DefaultReaperTick.
func NewReaper(engine *Engine, ledger Ledger, clk clock.Clock, tick time.Duration, log zerolog.Logger) *Reaper {
	if tick <= 0 {
		tick = DefaultReaperTick
	}
	return &Reaper{engine: engine, ledger: ledger, clock: clk, tick: tick, log: log}
}

// Run ticks until the context is cancelled.  Errors from individual ticks
// are logged, never fatal: the next tick retries whatever is still due.
func (r *Reaper) Run(ctx context.Context) {
	r.log.Info().Dur("tick", r.tick).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reaper stopped")
			return
		case <-r.clock.After(r.tick):
			if _, err := r.Tick(ctx); err != nil {
				r.log.Warn().Err(err).Msg("reaper tick failed")
			}
		}
	}
}

// Tick performs one expiry scan and returns how many bookings it reclaimed.
// Exposed so tests and operators can drive the reaper deterministically.
func (r *Reaper) Tick(ctx context.Context) (int, error) {
	due, err := r.ledger.FindPending(ctx, r.clock.Now())
	if err != nil {
		return 0, storageErr("scan pending bookings", err)
	}
	reclaimed := 0
	for _, b := range due {
		expired, err := r.engine.ExpireBooking(ctx, b.ID)
		switch {
		case err == nil:
			if expired {
				reclaimed++
			}
		case errors.Is(err, ErrContention) || errors.Is(err, ErrTimeout):
			// The show is busy; the booking stays due and the next tick
			// picks it up again.
			r.log.Debug().Uint64("booking_id", b.ID).Uint64("show_id", b.ShowID).
				Msg("show lock busy, deferring expiry")
		default:
			r.log.Warn().Err(err).Uint64("booking_id", b.ID).Uint64("show_id", b.ShowID).
				Msg("failed to expire booking")
		}
	}
	if swept := r.engine.Locks().Sweep(); swept > 0 {
		r.log.Debug().Int("locks", swept).Msg("retired idle show locks")
	}
	return reclaimed, nil
}
