package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
//
// An unreachable endpoint is not a validation error: the stream client retries
// it like any other transport failure. Only a URL that cannot be parsed at all
// is rejected here.
func (c *WatcherConfig) Validate() error {
	if c.Stream.BaseURL == "" {
		return errors.New("stream.base_url is required")
	}
	u, err := url.Parse(c.Stream.BaseURL)
	if err != nil {
		return fmt.Errorf("stream.base_url is invalid: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("stream.base_url scheme must be http, https, ws or wss, got %q", u.Scheme)
	}

	if c.Stream.InitialRetryDelay <= 0 {
		return errors.New("stream.initial_retry_delay must be > 0")
	}
	if c.Stream.MaxRetryDelay < c.Stream.InitialRetryDelay {
		return fmt.Errorf("stream.max_retry_delay (%s) cannot be less than initial_retry_delay (%s)",
			c.Stream.MaxRetryDelay, c.Stream.InitialRetryDelay)
	}
	if c.Stream.Stale() < 0 {
		return errors.New("stream.stale_timeout must be >= 0")
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	if c.Notifications.Store {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Notifications.BatchSize < 1 {
			return errors.New("notifications.batch_size must be >= 1")
		}
		if c.Notifications.QueueSize < 1 {
			return errors.New("notifications.queue_size must be >= 1")
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLevel maps a log.level string to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", level)
}
