package config

import (
	"fmt"
	"time"
)

// DatabaseConfig holds PostgreSQL connection settings for the JobRepository store.
type DatabaseConfig struct {
	DSN             string        `env:"SCHEDULER_DB_DSN"`
	MaxOpenConns    int           `env:"SCHEDULER_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"SCHEDULER_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"SCHEDULER_DB_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `env:"SCHEDULER_DB_CONN_MAX_IDLE_TIME"`
}

// Validate satisfies internal/env.Validator.
func (c DatabaseConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("SCHEDULER_DB_DSN is required")
	}
	return nil
}
