package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrStaleConnection   = errors.New("connection stale (no data)")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrStreamClosed      = errors.New("stream closed by server")
	ErrUnexpectedStatus  = errors.New("unexpected http status")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// EventsPath is the fixed path of the event stream below the base URL.
const EventsPath = "/api/events"

// Status is the connectivity state of a Manager.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusReconnecting
	StatusConnected
)

// String returns the lowercase name used in logs, metrics and the health endpoint.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusConnected:
		return "connected"
	}
	return "unknown"
}

// Frame is one raw payload received from the stream.
type Frame struct {
	Data       []byte    // One JSON envelope
	ReceivedAt time.Time // Local timestamp when the frame was read
}

// ClientConfig configures a single stream transport.
type ClientConfig struct {
	URL          string        // Full stream URL (base URL + EventsPath)
	Token        string        // Bearer token (empty = no auth header)
	StaleTimeout time.Duration // Max time without any data before the stream is considered stale (0 = disabled)
	WriteTimeout time.Duration // Write deadline for WebSocket control frames
	BufferSize   int           // Frame channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		StaleTimeout: 90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	BaseURL           string        // e.g. http://localhost:8000 (EventsPath is appended)
	Token             string        // Bearer token for the stream endpoint
	InitialRetryDelay time.Duration // First backoff delay, also the reset value
	MaxRetryDelay     time.Duration // Backoff cap
	StaleTimeout      time.Duration // Passed to each transport
	BufferSize        int           // Passed to each transport
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		InitialRetryDelay: 1000 * time.Millisecond,
		MaxRetryDelay:     30000 * time.Millisecond,
		StaleTimeout:      90 * time.Second,
		BufferSize:        256,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Status         Status
	Connects       int64 // Successful transport opens
	Failures       int64 // Transport failures (connect errors, drops, stale streams)
	FramesReceived int64
	RetryDelay     time.Duration // Delay the next failure would wait
	RetryAttempt   int
}
