package booking

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/semaphore"
)

// DefaultLockRetireAfter is how long an uncontended show lock may sit idle
// before the registry sweeps it, capping memory for long-running processes
// that touch many shows.
const DefaultLockRetireAfter = 10 * time.Minute

// showLock is one exclusive lock guarding all seat mutations of one show.
// A weighted semaphore of capacity one is used instead of sync.Mutex so the
// wait can be bounded by a context.
type showLock struct {
	sem      *semaphore.Weighted
	refs     int       // holders plus waiters; guarded by the registry mutex
	idleFrom time.Time // when refs last dropped to zero
}

// ShowLockRegistry hands out the single exclusive lock per active show id.
// Locks are created lazily on first request and retired once they have been
// idle past the retirement period.  Retirement is safe because the locks are
// pure mutual-exclusion primitives carrying no data: a retired and recreated
// lock excludes exactly the same critical sections.
//
// The registry-level mutex is held only during lookup, insert and erase,
// never while waiting on a show lock, so the single-lock-at-a-time
// discipline of the engine cannot deadlock on it.
type ShowLockRegistry struct {
	clock       clock.Clock
	retireAfter time.Duration

	mu    sync.Mutex
	locks map[uint64]*showLock
}

// NewShowLockRegistry returns an empty registry.  A non-positive retireAfter
// falls back to DefaultLockRetireAfter.
func NewShowLockRegistry(clk clock.Clock, retireAfter time.Duration) *ShowLockRegistry {
	if retireAfter <= 0 {
		retireAfter = DefaultLockRetireAfter
	}
	return &ShowLockRegistry{
		clock:       clk,
		retireAfter: retireAfter,
		locks:       make(map[uint64]*showLock),
	}
}

// Acquire obtains the exclusive lock for a show, waiting at most budget and
// never past the caller's context deadline.  On success it returns a release
// function that must be called exactly once, on every exit path.
//
// The two failure modes are distinct: ErrTimeout when the caller's own
// deadline elapsed first (the request is dead, nothing was mutated) and
// ErrContention when the wait budget ran out (the caller may retry with
// backoff).
func (r *ShowLockRegistry) Acquire(ctx context.Context, showID uint64, budget time.Duration) (release func(), err error) {
	r.mu.Lock()
	l, ok := r.locks[showID]
	if !ok {
		l = &showLock{sem: semaphore.NewWeighted(1)}
		r.locks[showID] = l
	}
	l.refs++
	r.mu.Unlock()

	waitCtx := ctx
	var cancel context.CancelFunc
	if budget > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		r.unref(l)
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, ErrContention
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			r.unref(l)
		})
	}, nil
}

func (r *ShowLockRegistry) unref(l *showLock) {
	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		l.idleFrom = r.clock.Now()
	}
	r.mu.Unlock()
}

// Sweep retires locks that have been idle past the retirement period and
// returns how many were removed.  The reaper calls it once per tick.
func (r *ShowLockRegistry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.retireAfter)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, l := range r.locks {
		if l.refs == 0 && l.idleFrom.Before(cutoff) {
			delete(r.locks, id)
			removed++
		}
	}
	return removed
}

// Len reports how many locks are currently registered.
func (r *ShowLockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
