package config

import "time"

// HTTPConfig holds settings for the Management API server (C7).
type HTTPConfig struct {
	Port            int           `env:"SCHEDULER_HTTP_PORT"`
	ReadTimeout     time.Duration `env:"SCHEDULER_HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `env:"SCHEDULER_HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `env:"SCHEDULER_HTTP_SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `env:"SCHEDULER_HTTP_MAX_BODY_BYTES"`
}
