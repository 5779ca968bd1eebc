package booking

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"
)

func TestShowLockExclusive(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	reg := NewShowLockRegistry(clk, time.Minute)
	ctx := context.Background()

	release, err := reg.Acquire(ctx, 1, 50*time.Millisecond)
	require.NoError(t, err)

	// Second acquisition of the same show exhausts its budget.
	_, err = reg.Acquire(ctx, 1, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrContention)

	// A different show is independent.
	release2, err := reg.Acquire(ctx, 2, 20*time.Millisecond)
	require.NoError(t, err)
	release2()

	release()
	release3, err := reg.Acquire(ctx, 1, 20*time.Millisecond)
	require.NoError(t, err)
	release3()
}

func TestShowLockCallerDeadline(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	reg := NewShowLockRegistry(clk, time.Minute)

	release, err := reg.Acquire(context.Background(), 1, 50*time.Millisecond)
	require.NoError(t, err)
	defer release()

	// The caller's own deadline elapsing is reported as a timeout, not as
	// contention: the request is dead either way.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = reg.Acquire(ctx, 1, time.Second)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestShowLockReleaseIdempotent(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	reg := NewShowLockRegistry(clk, time.Minute)
	ctx := context.Background()

	release, err := reg.Acquire(ctx, 1, 20*time.Millisecond)
	require.NoError(t, err)
	release()
	release() // second call must be a no-op

	// The lock still admits exactly one holder.
	r1, err := reg.Acquire(ctx, 1, 20*time.Millisecond)
	require.NoError(t, err)
	_, err = reg.Acquire(ctx, 1, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrContention)
	r1()
}

func TestShowLockSweep(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	reg := NewShowLockRegistry(clk, time.Minute)
	ctx := context.Background()

	release1, err := reg.Acquire(ctx, 1, 20*time.Millisecond)
	require.NoError(t, err)
	release1()
	release2, err := reg.Acquire(ctx, 2, 20*time.Millisecond)
	require.NoError(t, err)
	// Show 2 stays held across the sweep.

	require.Equal(t, 2, reg.Len())
	require.Equal(t, 0, reg.Sweep(), "nothing idle past the retirement period yet")

	clk.Advance(2 * time.Minute)
	require.Equal(t, 1, reg.Sweep(), "only the idle lock is retired")
	require.Equal(t, 1, reg.Len())

	release2()
	clk.Advance(2 * time.Minute)
	require.Equal(t, 1, reg.Sweep())
	require.Equal(t, 0, reg.Len())
}
