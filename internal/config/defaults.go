package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL           = "http://localhost:8000"
	DefaultInitialRetryDelay = 1000 * time.Millisecond
	DefaultMaxRetryDelay     = 30000 * time.Millisecond
	DefaultStaleTimeout      = 90 * time.Second
	DefaultStreamBufferSize  = 256
	DefaultQueueSize         = 1000
	DefaultBatchSize         = 100
	DefaultFlushInterval     = 2 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultServerPort        = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// ApplyDefaults fills every zero-valued optional field.
func (c *WatcherConfig) ApplyDefaults() {
	// Stream defaults
	if c.Stream.BaseURL == "" {
		c.Stream.BaseURL = DefaultBaseURL
	}
	if c.Stream.InitialRetryDelay == 0 {
		c.Stream.InitialRetryDelay = DefaultInitialRetryDelay
	}
	if c.Stream.MaxRetryDelay == 0 {
		c.Stream.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if c.Stream.StaleTimeout == nil {
		stale := DefaultStaleTimeout
		c.Stream.StaleTimeout = &stale
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}

	// Notification defaults
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = DefaultQueueSize
	}
	if c.Notifications.BatchSize == 0 {
		c.Notifications.BatchSize = DefaultBatchSize
	}
	if c.Notifications.FlushInterval == 0 {
		c.Notifications.FlushInterval = DefaultFlushInterval
	}

	// Database defaults only matter when the store is on
	if c.Notifications.Store {
		applyDBDefaults(&c.Database)
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
