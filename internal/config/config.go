// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/distsched/scheduler/internal/env"
)

// Config is the root configuration for the scheduler binary (cmd/scheduler).
type Config struct {
	Database      DatabaseConfig
	HTTP          HTTPConfig
	ConfigStore   ConfigStoreConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
}

// Load reads configuration from the environment, applies defaults for
// zero-valued fields, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.MaxOpenConns <= 0 {
		// 0 means auto-scale; leave as-is, the postgres package handles it.
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if c.Database.ConnMaxIdleTime <= 0 {
		c.Database.ConnMaxIdleTime = time.Minute
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 1 << 20 // 1MiB
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if c.ConfigStore.Dir == "" {
		c.ConfigStore.Dir = "configstore-data"
	}
	if c.ConfigStore.Format == "" {
		c.ConfigStore.Format = "yaml"
	}
	if c.Scheduler.ReconcileInterval <= 0 {
		c.Scheduler.ReconcileInterval = 15 * time.Minute
	}
	if c.Scheduler.MaxStartupJitter <= 0 {
		c.Scheduler.MaxStartupJitter = 30 * time.Second
	}
	if c.Scheduler.ShutdownGracePeriod <= 0 {
		c.Scheduler.ShutdownGracePeriod = 30 * time.Second
	}
	if c.Scheduler.ServerIdentity == "" {
		c.Scheduler.ServerIdentity = defaultServerIdentity()
	}
	if c.Scheduler.Environment == "" {
		c.Scheduler.Environment = "default"
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "distsched-scheduler"
	}
}
