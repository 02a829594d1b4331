// Package config loads the server settings from the environment, falling back
// to defaults for anything unset or unparsable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// RateLimitConfig controls per-client throttling of register, login and
// send-message. A zero PerMinute leaves those routes unthrottled.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

func (r RateLimitConfig) Enabled() bool {
	return r.PerMinute > 0
}

type Config struct {
	Addr            string
	DBDriver        string
	DBDSN           string
	JWTSecret       string
	JWTTTL          time.Duration
	RedisAddr       string
	StreamDelay     time.Duration
	PingInterval    time.Duration
	QueueLimit      int
	RateLimit       RateLimitConfig
	RequireAuth     bool
	LogLevel        string
	ShutdownTimeout time.Duration
}

func Default() *Config {
	return &Config{
		Addr:         ":8000",
		DBDriver:     DriverSQLite,
		DBDSN:        "chat.db",
		JWTTTL:       24 * time.Hour,
		StreamDelay:  time.Second,
		PingInterval: 30 * time.Second,
		QueueLimit:   10000,
		RateLimit: RateLimitConfig{
			Burst: 10,
		},
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads the environment on top of Default.
func Load() *Config {
	cfg := Default()

	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.DBDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")

	cfg.JWTTTL = parseDuration(os.Getenv("JWT_TTL"), cfg.JWTTTL)
	cfg.StreamDelay = parseDuration(os.Getenv("STREAM_DELAY"), cfg.StreamDelay)
	cfg.PingInterval = parseDuration(os.Getenv("PING_INTERVAL"), cfg.PingInterval)
	cfg.ShutdownTimeout = parseDuration(os.Getenv("SHUTDOWN_TIMEOUT"), cfg.ShutdownTimeout)
	cfg.QueueLimit = parseIntValue(os.Getenv("QUEUE_LIMIT"), cfg.QueueLimit)
	cfg.RateLimit.PerMinute = parseIntValue(os.Getenv("RATE_LIMIT_PER_MINUTE"), cfg.RateLimit.PerMinute)
	cfg.RateLimit.Burst = parseIntValue(os.Getenv("RATE_LIMIT_BURST"), cfg.RateLimit.Burst)
	cfg.RequireAuth = parseBool(os.Getenv("REQUIRE_AUTH"), cfg.RequireAuth)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	return cfg
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want %s or %s)", c.DBDriver, DriverPostgres, DriverSQLite)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is not set")
	}
	if c.StreamDelay <= 0 {
		return fmt.Errorf("STREAM_DELAY must be positive")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("PING_INTERVAL must be positive")
	}
	if c.RequireAuth && c.JWTSecret == "" {
		return fmt.Errorf("REQUIRE_AUTH needs JWT_SECRET")
	}
	return nil
}

// parseDuration accepts Go durations ("1500ms") or a bare number of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}
