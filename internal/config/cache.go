package config

import (
	"os"
	"time"
)

// CacheConfig defines settings for the Redis-backed availability cache.
// When Enabled is false or no Redis client is configured, the availability
// endpoint always reads the live seat index.  TTL bounds how stale a cached
// seat map may get; it should stay well under the reaper tick so expired
// holds never linger in responses.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
// Defaults are used when variables are not set.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: getenv("CACHE_ENABLED", "true") == "true",
		TTL:     parseDur(getenv("CACHE_TTL", "5s")),
		Prefix:  getenv("CACHE_PREFIX", "availability"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Second
	}
	return d
}
