// Package cache provides the Redis-backed availability cache.  Availability
// is the one read-heavy endpoint of the service; caching its snapshots for a
// few seconds keeps browse traffic off the seat index during on-sale spikes.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/booking"
)

// Availability caches per-show seat snapshots in Redis.  A nil Redis client
// disables the cache entirely: Get always misses and Put/Invalidate are
// no-ops, so the service keeps working when Redis is down.  Entries carry a
// short TTL and are invalidated on every seat mutation, which bounds
// staleness to the TTL even if an invalidation is lost.
type Availability struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
}

// NewAvailability builds the cache.  TTL values at or below zero fall back
// to five seconds; longer TTLs risk showing expired holds as taken.
func NewAvailability(rdb *redis.Client, ttl time.Duration, prefix string, log zerolog.Logger) *Availability {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if prefix == "" {
		prefix = "availability"
	}
	return &Availability{rdb: rdb, ttl: ttl, prefix: prefix, log: log}
}

func (a *Availability) key(showID uint64) string {
	return fmt.Sprintf("%s:show:%d", a.prefix, showID)
}

// Get returns the cached snapshot for a show, or ok=false on a miss.  Redis
// errors count as misses; the caller falls through to the live seat index.
func (a *Availability) Get(ctx context.Context, showID uint64) ([]booking.SeatView, bool) {
	if a.rdb == nil {
		return nil, false
	}
	bs, err := a.rdb.Get(ctx, a.key(showID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			a.log.Warn().Err(err).Uint64("show_id", showID).Msg("availability cache: get failed")
		}
		return nil, false
	}
	var seats []booking.SeatView
	if err := json.Unmarshal(bs, &seats); err != nil {
		// Corrupt entry; drop it and miss.
		_ = a.rdb.Del(ctx, a.key(showID)).Err()
		return nil, false
	}
	return seats, true
}

// Put stores a snapshot with the configured TTL.  Failures are logged and
// swallowed; a cache write must never fail an availability read.
func (a *Availability) Put(ctx context.Context, showID uint64, seats []booking.SeatView) {
	if a.rdb == nil {
		return
	}
	bs, err := json.Marshal(seats)
	if err != nil {
		return
	}
	if err := a.rdb.SetEx(ctx, a.key(showID), bs, a.ttl).Err(); err != nil {
		a.log.Warn().Err(err).Uint64("show_id", showID).Msg("availability cache: set failed")
	}
}

// Invalidate drops the cached snapshot for a show.  Called after every
// mutation that changes seat states (acquire, confirm, cancel, expiry,
// maintenance) so readers pick up the change on the next request.
func (a *Availability) Invalidate(ctx context.Context, showID uint64) {
	if a.rdb == nil {
		return
	}
	if err := a.rdb.Del(ctx, a.key(showID)).Err(); err != nil {
		a.log.Warn().Err(err).Uint64("show_id", showID).Msg("availability cache: invalidate failed")
	}
}
