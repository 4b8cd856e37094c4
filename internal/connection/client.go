package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client represents a single event stream transport.
type Client interface {
	// Connect establishes the stream. ctx bounds both the handshake and the
	// lifetime of the stream.
	Connect(ctx context.Context) error

	// Close releases the transport. Safe to call more than once.
	Close() error

	// Messages returns a channel of frames in arrival order.
	Messages() <-chan Frame

	// Errors returns a channel that receives at most one terminal stream error.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// ClientFactory builds a transport for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) (Client, error)

// NewClient picks a transport by URL scheme: http/https streams Server-Sent
// Events, ws/wss uses a WebSocket.
func NewClient(cfg ClientConfig, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return newSSEClient(cfg, logger), nil
	case "ws", "wss":
		return newWSClient(cfg, logger), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

// StreamURL joins a base URL and EventsPath.
func StreamURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + EventsPath
}

// stream holds the channel plumbing and state shared by both transports.
type stream struct {
	cfg    ClientConfig
	logger *slog.Logger

	// Output channels
	messages chan Frame
	errors   chan error
	done     chan struct{}

	// State
	mu         sync.RWMutex
	connected  bool
	closed     bool
	lastDataAt time.Time
}

func (s *stream) init(cfg ClientConfig, logger *slog.Logger) {
	size := cfg.BufferSize
	if size < 1 {
		size = 1
	}
	s.cfg = cfg
	s.logger = logger
	s.messages = make(chan Frame, size)
	s.errors = make(chan error, 1)
	s.done = make(chan struct{})
}

// Messages returns the frames channel.
func (s *stream) Messages() <-chan Frame {
	return s.messages
}

// Errors returns the errors channel.
func (s *stream) Errors() <-chan error {
	return s.errors
}

// IsConnected returns the current connection state.
func (s *stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *stream) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// markConnected flips to connected unless Close already ran.
func (s *stream) markConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.connected = true
	s.lastDataAt = time.Now()
	return true
}

// markClosed flips to closed and reports whether this call did it.
func (s *stream) markClosed() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	close(s.done)
	return true
}

func (s *stream) touch() time.Time {
	now := time.Now()
	s.mu.Lock()
	s.lastDataAt = now
	s.mu.Unlock()
	return now
}

// emit delivers a frame, blocking until the consumer takes it or the stream closes.
func (s *stream) emit(data []byte, receivedAt time.Time) bool {
	select {
	case s.messages <- Frame{Data: data, ReceivedAt: receivedAt}:
		return true
	case <-s.done:
		return false
	}
}

// fail reports a terminal error unless the stream was closed locally.
func (s *stream) fail(err error) {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	select {
	case <-s.done:
		// Ignore errors after Close() is called
		return
	default:
	}

	select {
	case s.errors <- err:
	default:
	}
}

// staleLoop reports ErrStaleConnection when nothing has arrived for StaleTimeout.
// ping, if non-nil, runs on every tick (WebSocket keepalive).
func (s *stream) staleLoop(ping func()) {
	interval := s.cfg.StaleTimeout / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if ping != nil {
				ping()
			}

			s.mu.RLock()
			last := s.lastDataAt
			s.mu.RUnlock()

			if time.Since(last) > s.cfg.StaleTimeout {
				s.logger.Warn("no data received, connection stale",
					"last_data", last,
					"timeout", s.cfg.StaleTimeout,
				)
				s.fail(ErrStaleConnection)
				return
			}
		}
	}
}
