package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
stream:
  base_url: https://updates.example.com
  initial_retry_delay: 500ms
  max_retry_delay: 10s
server:
  port: 8081
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.BaseURL != "https://updates.example.com" {
		t.Errorf("Stream.BaseURL = %q, want %q", cfg.Stream.BaseURL, "https://updates.example.com")
	}
	if cfg.Stream.InitialRetryDelay != 500*time.Millisecond {
		t.Errorf("Stream.InitialRetryDelay = %v, want 500ms", cfg.Stream.InitialRetryDelay)
	}
	if cfg.Stream.MaxRetryDelay != 10*time.Second {
		t.Errorf("Stream.MaxRetryDelay = %v, want 10s", cfg.Stream.MaxRetryDelay)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_STREAM_TOKEN", "secret123")

	yaml := `
stream:
  base_url: http://localhost:8000
  token: ${TEST_STREAM_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.Token != "secret123" {
		t.Errorf("Stream.Token = %q, want %q", cfg.Stream.Token, "secret123")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "stream: {}\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Stream.BaseURL != DefaultBaseURL {
		t.Errorf("Stream.BaseURL = %q, want default %q", cfg.Stream.BaseURL, DefaultBaseURL)
	}
	if cfg.Stream.InitialRetryDelay != time.Second {
		t.Errorf("Stream.InitialRetryDelay = %v, want 1s", cfg.Stream.InitialRetryDelay)
	}
	if cfg.Stream.MaxRetryDelay != 30*time.Second {
		t.Errorf("Stream.MaxRetryDelay = %v, want 30s", cfg.Stream.MaxRetryDelay)
	}
	if cfg.Stream.Stale() != DefaultStaleTimeout {
		t.Errorf("Stream.Stale() = %v, want default %v", cfg.Stream.Stale(), DefaultStaleTimeout)
	}
	if !cfg.Notifications.NotificationsEnabled() {
		t.Error("notifications should default to enabled")
	}
	if cfg.Database.Port != 0 {
		t.Errorf("Database.Port = %d, want 0 when store is disabled", cfg.Database.Port)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, DefaultLogFormat)
	}
}

func TestLoadWithDefaults_StaleTimeoutDisabled(t *testing.T) {
	path := writeTempFile(t, "stream:\n  stale_timeout: 0s\n")

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Stream.StaleTimeout == nil || *cfg.Stream.StaleTimeout != 0 {
		t.Fatalf("Stream.StaleTimeout = %v, want explicit 0", cfg.Stream.StaleTimeout)
	}
	if cfg.Stream.Stale() != 0 {
		t.Errorf("Stream.Stale() = %v, want 0 (disabled)", cfg.Stream.Stale())
	}
}

func TestLoadWithDefaults_StoreEnablesDBDefaults(t *testing.T) {
	yaml := `
notifications:
  enabled: false
  store: true
database:
  host: localhost
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Notifications.NotificationsEnabled() {
		t.Error("notifications.enabled: false was ignored")
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Database.MaxConns != DefaultMaxConns {
		t.Errorf("Database.MaxConns = %d, want default %d", cfg.Database.MaxConns, DefaultMaxConns)
	}
}

func TestLoadAndValidate_Invalid(t *testing.T) {
	path := writeTempFile(t, "stream:\n  base_url: ftp://example.com\n")

	if _, err := LoadAndValidate(path); err == nil {
		t.Error("expected validation error for ftp scheme")
	}
}

func TestValidate(t *testing.T) {
	valid := func() WatcherConfig {
		var c WatcherConfig
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*WatcherConfig)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *WatcherConfig) {},
			wantErr: "",
		},
		{
			name:    "missing base url",
			mutate:  func(c *WatcherConfig) { c.Stream.BaseURL = "" },
			wantErr: "stream.base_url is required",
		},
		{
			name:    "unsupported scheme",
			mutate:  func(c *WatcherConfig) { c.Stream.BaseURL = "ftp://example.com" },
			wantErr: `stream.base_url scheme must be http, https, ws or wss, got "ftp"`,
		},
		{
			name: "max below initial",
			mutate: func(c *WatcherConfig) {
				c.Stream.InitialRetryDelay = 5 * time.Second
				c.Stream.MaxRetryDelay = time.Second
			},
			wantErr: "stream.max_retry_delay (1s) cannot be less than initial_retry_delay (5s)",
		},
		{
			name:    "missing database host with store",
			mutate:  func(c *WatcherConfig) { c.Notifications.Store = true },
			wantErr: "database.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *WatcherConfig) {
				c.Notifications.Store = true
				c.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 2, MinConns: 5}
			},
			wantErr: "database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "bad port",
			mutate:  func(c *WatcherConfig) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log format",
			mutate:  func(c *WatcherConfig) { c.Log.Format = "xml" },
			wantErr: `log.format must be text or json, got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
