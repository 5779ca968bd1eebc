package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time expresses the engine durations
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers, durations for the engine knobs.
type Config struct {
	Env                       string        // application environment (e.g. "dev", "prod")
	Port                      string        // HTTP port to listen on
	DBUser                    string        // database username
	DBPass                    string        // database password (optional)
	DBHost                    string        // database host address
	DBPort                    string        // database port number
	DBName                    string        // database name
	DefaultLease              time.Duration // how long an acquired hold lives before it expires
	ReaperTick                time.Duration // interval between expiry sweeps
	LockAcquireTimeout        time.Duration // max wait for a show lock before giving up
	ClockSkewTolerance        time.Duration // grace added to lease checks on confirm
	CancelConfirmedAfterStart bool          // allow cancelling confirmed bookings after showtime
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The engine knobs are
// optional and fall back to the documented defaults.
func Load() Config {
	return Config{
		Env:                       must("APP_ENV"),      // environment (dev/test/prod)
		Port:                      must("APP_PORT"),     // port to bind the HTTP server
		DBUser:                    must("DB_USER"),      // database user
		DBPass:                    os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:                    must("DB_HOST"),      // database host
		DBPort:                    must("DB_PORT"),      // database port
		DBName:                    must("DB_NAME"),      // database name
		DefaultLease:              secondsOr("DEFAULT_LEASE_SECONDS", 900),
		ReaperTick:                secondsOr("REAPER_TICK_SECONDS", 30),
		LockAcquireTimeout:        millisOr("LOCK_ACQUIRE_TIMEOUT_MS", 5000),
		ClockSkewTolerance:        millisOr("CLOCK_SKEW_TOLERANCE_MS", 2000),
		CancelConfirmedAfterStart: boolOr("CANCEL_CONFIRMED_AFTER_START", false),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// secondsOr reads an integer number of seconds, falling back to def when
// the variable is unset.  A present but malformed value is fatal so a typo
// cannot silently change a lease or sweep interval.
func secondsOr(key string, def int) time.Duration {
	return time.Duration(intOr(key, def)) * time.Second
}

// millisOr is like secondsOr but interprets the value as milliseconds.
func millisOr(key string, def int) time.Duration {
	return time.Duration(intOr(key, def)) * time.Millisecond
}

func intOr(key string, def int) int {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func boolOr(key string, def bool) bool {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		log.Fatalf("invalid bool for %s: %q", key, s)
	}
	return b
}
