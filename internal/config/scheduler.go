package config

import "time"

// SchedulerConfig holds settings for SchedulerManager (C4) and
// ConfigChangeReconciler (C6).
type SchedulerConfig struct {
	// ServerIdentity names this process instance in JobLog rows. Defaults to
	// hostname:pid.
	ServerIdentity string `env:"SCHEDULER_SERVER_IDENTITY"`

	// ReconcileInterval is how often the reconciler's full sweep runs,
	// independent of ConfigStore push notifications.
	ReconcileInterval time.Duration `env:"SCHEDULER_RECONCILE_INTERVAL"`

	// MaxStartupJitter avoids a thundering herd across instances restarting together.
	MaxStartupJitter time.Duration `env:"SCHEDULER_MAX_STARTUP_JITTER"`

	// ShutdownGracePeriod bounds how long in-flight fires are allowed to
	// finish during graceful shutdown before JobLogs are swept to FAILED.
	ShutdownGracePeriod time.Duration `env:"SCHEDULER_SHUTDOWN_GRACE_PERIOD"`

	// Environment is the active profile used to resolve a registered job's
	// natural key during Bootstrap when its registration metadata leaves
	// Environment unset.
	Environment string `env:"SCHEDULER_ENVIRONMENT"`
}
