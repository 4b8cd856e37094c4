package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/updatewatch/internal/version"
)

// wsClient receives frames over a WebSocket, one text message per frame.
type wsClient struct {
	stream

	conn *websocket.Conn

	// Write serialization
	writeMu sync.Mutex
}

func newWSClient(cfg ClientConfig, logger *slog.Logger) *wsClient {
	c := &wsClient{}
	c.init(cfg, logger)
	return c
}

// Connect establishes the WebSocket connection.
func (c *wsClient) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrAlreadyClosed
	}

	// Build headers
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	// Dial with context
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if !c.markConnected() {
		conn.Close()
		return ErrAlreadyClosed
	}

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		c.touch()

		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	// The stream ends with the caller's context
	stop := context.AfterFunc(ctx, func() { c.Close() })

	go func() {
		defer stop()
		c.readLoop(conn)
	}()
	if c.cfg.StaleTimeout > 0 {
		go c.staleLoop(c.ping)
	}

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// Close gracefully closes the connection.
func (c *wsClient) Close() error {
	if !c.markClosed() {
		return nil
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return conn.Close()
}

// readLoop reads messages from the WebSocket and emits them as frames.
func (c *wsClient) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		receivedAt := c.touch() // Capture timestamp immediately

		if err != nil {
			c.fail(err)
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		if !c.emit(data, receivedAt) {
			return
		}
	}
}

// ping sends a keepalive; the pong refreshes the stale timer.
func (c *wsClient) ping() {
	if err := c.sendPing(); err != nil {
		c.logger.Debug("failed to send ping", "error", err)
	}
}

func (c *wsClient) sendPing() error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if conn == nil || !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	return conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline)
}
