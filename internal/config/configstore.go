package config

// ConfigStoreConfig holds settings for the local/file-backed ConfigStore
// adapter (C2): a directory watched with fsnotify, read/written with the
// document format below, layered with env/default precedence via viper.
type ConfigStoreConfig struct {
	Dir string `env:"SCHEDULER_CONFIGSTORE_DIR"`
	// Format is "yaml" or "json"; selects the document codec for documents
	// written under Dir.
	Format string `env:"SCHEDULER_CONFIGSTORE_FORMAT"`
}
