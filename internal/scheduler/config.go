package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/entitlements/internal/config"
)

// Config controls the renewal scan trigger, batch size and parallelism.
type Config struct {
	Enabled     bool
	Schedule    string
	BatchSize   int
	Concurrency int
	JobTimeout  time.Duration
	LockTTL     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Schedule:    "@daily",
		BatchSize:   100,
		Concurrency: 4,
		JobTimeout:  30 * time.Minute,
		LockTTL:     time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = defaults.Schedule
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Scheduler.Enabled,
		Schedule:    cfg.Scheduler.Schedule,
		BatchSize:   cfg.Scheduler.BatchSize,
		Concurrency: cfg.Scheduler.Concurrency,
		JobTimeout:  cfg.Scheduler.JobTimeout,
		LockTTL:     cfg.Scheduler.LockTTL,
	}.withDefaults()
}
