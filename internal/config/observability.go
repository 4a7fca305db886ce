package config

// ObservabilityConfig holds OTLP exporter settings. Standard OTEL_* variables
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc.) are read directly by the SDK's
// WithFromEnv resource detector and the otlp*http exporters; this struct only
// carries what the scheduler itself decides, not what the SDK already owns.
type ObservabilityConfig struct {
	ServiceName string `env:"SCHEDULER_OTEL_SERVICE_NAME"`
	Enabled     bool   `env:"SCHEDULER_OTEL_ENABLED"`
}
