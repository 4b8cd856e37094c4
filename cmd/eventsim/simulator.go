package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// sample events cycled by the simulator, heartbeats and one malformed
// frame included.
var samples = []string{
	`{"type":"update_available","data":{"container_name":"web","new_version":"2.0"}}`,
	`{"type":"ping"}`,
	`{"type":"update_applied","data":{"container_name":"web","new_version":"2.0"}}`,
	`{"type":"container_restarted","data":{"container_name":"worker","reason":"oom"}}`,
	`{"type":"health_check_failed","data":{"container_name":"db","error":"timeout after 5s"}}`,
	`{"type":"update_failed","data":{"container_name":"cache","error":"image not found"}}`,
	`{"type":"scan_started","data":{"containers":4}}`,
	`{"type":"update_available","data":`,
}

// simulator streams samples to every client, as SSE or WebSocket depending
// on the request.
type simulator struct {
	interval  time.Duration
	dropAfter int
	token     string
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// emitter writes one frame to a client.
type emitter func(frame string) error

func (s *simulator) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r)
		return
	}
	s.serveSSE(w, r)
}

func (s *simulator) serveSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	s.stream(r, func(frame string) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

func (s *simulator) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain control frames so pings are answered
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	s.stream(r, func(frame string) error {
		return conn.WriteMessage(websocket.TextMessage, []byte(frame))
	})
}

// stream sends the connected ack, then samples until the client leaves or
// dropAfter is reached.
func (s *simulator) stream(r *http.Request, emit emitter) {
	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Info("client connected")

	if err := emit(envelope("connected", nil)); err != nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for sent := 0; s.dropAfter == 0 || sent < s.dropAfter; sent++ {
		select {
		case <-r.Context().Done():
			logger.Info("client disconnected", "sent", sent)
			return
		case <-ticker.C:
		}

		if err := emit(samples[sent%len(samples)]); err != nil {
			logger.Info("write failed", "error", err)
			return
		}
	}

	logger.Info("dropping stream", "sent", s.dropAfter)
}

// envelope encodes an event with the current timestamp.
func envelope(eventType string, data map[string]any) string {
	b, _ := json.Marshal(struct {
		Type      string         `json:"type"`
		Data      map[string]any `json:"data,omitempty"`
		Timestamp string         `json:"timestamp"`
	}{eventType, data, time.Now().UTC().Format(time.RFC3339)})
	return string(b)
}
