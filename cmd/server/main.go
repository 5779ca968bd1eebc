package main // Entry point package

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"    // optional .env loading for local development
	"github.com/juju/clock"       // wall clock passed to the engine
	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/booking"
	"github.com/iliyamo/movie-ticket-booking/internal/cache"
	"github.com/iliyamo/movie-ticket-booking/internal/config"
	"github.com/iliyamo/movie-ticket-booking/internal/database"
	"github.com/iliyamo/movie-ticket-booking/internal/handler"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/queue"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
	"github.com/iliyamo/movie-ticket-booking/internal/router"
	queue_publisher "github.com/iliyamo/movie-ticket-booking/internal/service"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer func() { _ = db.Close() }()

	ledger := repository.NewBookingLedger(db)
	catalog := repository.NewShowCatalog(db)

	engine := booking.New(booking.Config{
		DefaultLease:              cfg.DefaultLease,
		LockAcquireTimeout:        cfg.LockAcquireTimeout,
		ClockSkewTolerance:        cfg.ClockSkewTolerance,
		CancelConfirmedAfterStart: cfg.CancelConfirmedAfterStart,
	}, ledger, catalog, clock.WallClock, log)

	// Redis is optional; a nil client disables the availability cache.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable, availability cache disabled")
	}
	cacheCfg := config.LoadCacheConfig()
	var avail *cache.Availability
	if cacheCfg.Enabled && rdb != nil {
		avail = cache.NewAvailability(rdb, cacheCfg.TTL, cacheCfg.Prefix, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background expiry sweep.
	reaper := booking.NewReaper(engine, ledger, clock.WallClock, cfg.ReaperTick, log)
	go reaper.Run(ctx)

	// Payment outcomes arrive over RabbitMQ and feed the callback adapter.
	adapter := booking.NewPaymentCallbackAdapter(engine, nil, log)
	adapter.OnConfirmed = func(ctx context.Context, b *model.Booking) {
		if avail != nil {
			avail.Invalidate(ctx, b.ShowID)
		}
		_ = queue_publisher.PublishBookingConfirmed(ctx, b, log)
	}
	go func() {
		if err := queue.StartPaymentConsumer(ctx, adapter, log); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("payment consumer stopped")
		}
	}()

	e := echo.New()
	e.HideBanner = true
	bh := handler.NewBookingHandler(engine, avail, log)
	router.RegisterRoutes(e, bh)
	router.RegisterBooking(e, bh)

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()
	if err := e.Start(addr); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
