package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type SchedulerConfig struct {
	PollInterval    time.Duration `env:"SCHEDULER_POLL_INTERVAL, default=30s"`
	BatchSize       int           `env:"SCHEDULER_BATCH_SIZE, default=50"`
	DefaultTimezone string        `env:"SCHEDULER_DEFAULT_TIMEZONE, default=UTC"`
	SendRate        float64       `env:"SCHEDULER_SEND_RATE, default=5"`
	LogLevel        string        `env:"LOG_LEVEL, default=info"`
}

func NewSchedulerConfigFromEnv() (*SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("SCHEDULER_POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("SCHEDULER_BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_DEFAULT_TIMEZONE %q: %w", cfg.DefaultTimezone, err)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Level parses LogLevel as a slog level name such as "debug" or "warn".
func (c *SchedulerConfig) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Location loads DefaultTimezone, which NewSchedulerConfigFromEnv has already validated.
func (c *SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
