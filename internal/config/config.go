package config

import "time"

// WatcherConfig is the root configuration for an updatewatch instance.
type WatcherConfig struct {
	Stream        StreamConfig       `yaml:"stream"`
	Notifications NotificationConfig `yaml:"notifications"`
	Database      DBConfig           `yaml:"database"`
	Server        ServerConfig       `yaml:"server"`
	Log           LogConfig          `yaml:"log"`
}

// StreamConfig holds the event stream endpoint and reconnection settings.
type StreamConfig struct {
	BaseURL           string         `yaml:"base_url"`            // e.g. http://localhost:8000 or ws://localhost:8000
	Token             string         `yaml:"token"`               // Bearer token, optional
	InitialRetryDelay time.Duration  `yaml:"initial_retry_delay"` // First backoff delay
	MaxRetryDelay     time.Duration  `yaml:"max_retry_delay"`     // Backoff cap
	StaleTimeout      *time.Duration `yaml:"stale_timeout"`       // Reconnect after this long without data; nil means default, 0 never
	BufferSize        int            `yaml:"buffer_size"`         // Per-transport frame buffer
}

// Stale returns the stale-stream timeout. Zero disables the watchdog.
func (c StreamConfig) Stale() time.Duration {
	if c.StaleTimeout == nil {
		return DefaultStaleTimeout
	}
	return *c.StaleTimeout
}

// NotificationConfig controls user-facing notifications.
type NotificationConfig struct {
	Enabled *bool `yaml:"enabled"` // nil means default (enabled)
	Store   bool  `yaml:"store"`   // Persist notifications to the database

	QueueSize     int           `yaml:"queue_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// NotificationsEnabled reports whether notifications are turned on.
func (c NotificationConfig) NotificationsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DBConfig holds the optional PostgreSQL connection used by the notification store.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ServerConfig holds the health/metrics HTTP server settings.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
