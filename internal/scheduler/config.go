package scheduler

import (
	"time"

	"github.com/smallbiznis/referly/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	// SessionRetention keeps expired and revoked sessions this long before
	// they are purged.
	SessionRetention time.Duration
	// EnabledJobs limits the sweep to the named jobs; empty runs them all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      time.Hour,
		BatchSize:        200,
		JobTimeout:       2 * time.Minute,
		SessionRetention: 24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:      cfg.Scheduler.Interval,
		SessionRetention: cfg.Scheduler.SessionRetention,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.SessionRetention <= 0 {
		c.SessionRetention = defaults.SessionRetention
	}
	return c
}
