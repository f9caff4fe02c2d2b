// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and SKY_* environment variables over them.
// - Validate reports problems wrapped in ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreBackend selects memory, sqlite or redis.
	StoreBackend string `koanf:"store_backend"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// Redis connection for the redis backend.
	RedisAddr     string `koanf:"redis_addr"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPassword string `koanf:"redis_password"`

	// DailyCron is the schedule of the daily session job.
	DailyCron string `koanf:"daily_cron"`

	// AutoSchedule makes sure the daily job exists on startup.
	AutoSchedule bool `koanf:"auto_schedule"`

	// CallTimeoutMS bounds every call to an external collaborator.
	CallTimeoutMS int `koanf:"call_timeout_ms"`

	// PublishAttempts is the total number of content-unit create attempts.
	PublishAttempts int `koanf:"publish_attempts"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// AdminToken gates the admin routes. Empty leaves them open.
	AdminToken string `koanf:"admin_token"`

	// NATSURL enables event announcements when set.
	NATSURL           string `koanf:"nats_url"`
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		StoreBackend:        BackendMemory,
		SQLitePath:          "skyscraper.db",
		RedisAddr:           "localhost:6379",
		DailyCron:           "0 1 * * *",
		AutoSchedule:        true,
		CallTimeoutMS:       5000,
		PublishAttempts:     3,
		MaxLeaderboardLimit: 100,
		NATSSubjectPrefix:   "skyscraper",
	}
}

// CallTimeout returns CallTimeoutMS as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMS) * time.Millisecond
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks every field and reports the first problem.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.CallTimeoutMS <= 0:
		return fmt.Errorf("%w: call_timeout_ms must be positive", ErrInvalidConfig)
	case c.PublishAttempts < 1:
		return fmt.Errorf("%w: publish_attempts must be at least 1", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1:
		return fmt.Errorf("%w: max_leaderboard_limit must be at least 1", ErrInvalidConfig)
	case c.RedisDB < 0:
		return fmt.Errorf("%w: redis_db must not be negative", ErrInvalidConfig)
	}

	switch strings.ToLower(c.StoreBackend) {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite backend", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}

	if _, err := cronParser.Parse(c.DailyCron); err != nil {
		return fmt.Errorf("%w: daily_cron %q: %w", ErrInvalidConfig, c.DailyCron, err)
	}
	return nil
}
