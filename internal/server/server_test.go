package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/updatewatch/internal/connection"
	"github.com/rickgao/updatewatch/internal/metrics"
)

// fakeController moves to onConnect when ReconnectNow is called.
type fakeController struct {
	status     atomic.Int32
	reconnects atomic.Int32
	onConnect  connection.Status
}

func newFakeController(status connection.Status) *fakeController {
	c := &fakeController{onConnect: connection.StatusConnected}
	c.status.Store(int32(status))
	return c
}

func (c *fakeController) Status() connection.Status {
	return connection.Status(c.status.Load())
}

func (c *fakeController) Stats() connection.ManagerStats {
	return connection.ManagerStats{
		Status:         c.Status(),
		Connects:       3,
		Failures:       2,
		FramesReceived: 40,
		RetryDelay:     2 * time.Second,
		RetryAttempt:   1,
	}
}

func (c *fakeController) ReconnectNow() {
	c.reconnects.Add(1)
	c.status.Store(int32(c.onConnect))
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		status     connection.Status
		db         Pinger
		wantCode   int
		wantStatus string
		wantDB     string
	}{
		{"connected", connection.StatusConnected, nil, http.StatusOK, "healthy", ""},
		{"reconnecting", connection.StatusReconnecting, nil, http.StatusServiceUnavailable, "unhealthy", ""},
		{"disconnected", connection.StatusDisconnected, nil, http.StatusServiceUnavailable, "unhealthy", ""},
		{"database up", connection.StatusConnected, fakePinger{}, http.StatusOK, "healthy", "connected"},
		{"database down", connection.StatusConnected, fakePinger{err: errors.New("refused")}, http.StatusOK, "degraded", "error: refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{WithLogger(quietLogger())}
			if tt.db != nil {
				opts = append(opts, WithDatabase(tt.db))
			}
			s := New(Config{}, newFakeController(tt.status), opts...)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}

			var body healthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Stream.Status != tt.status.String() {
				t.Errorf("stream.status = %q, want %q", body.Stream.Status, tt.status.String())
			}
			if body.Stream.RetryDelayMs != 2000 {
				t.Errorf("retry_delay_ms = %d, want 2000", body.Stream.RetryDelayMs)
			}
			if got := body.Components["database"]; got != tt.wantDB {
				t.Errorf("components.database = %q, want %q", got, tt.wantDB)
			}
		})
	}
}

func TestReconnect(t *testing.T) {
	ctrl := newFakeController(connection.StatusDisconnected)
	s := New(Config{}, ctrl, WithLogger(quietLogger()))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconnect", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusOK)
	}
	if n := ctrl.reconnects.Load(); n != 1 {
		t.Errorf("reconnects = %d, want 1", n)
	}
	if !strings.Contains(rec.Body.String(), `"status":"connected"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestReconnect_NotConnectedInTime(t *testing.T) {
	ctrl := newFakeController(connection.StatusDisconnected)
	ctrl.onConnect = connection.StatusReconnecting
	s := New(Config{ReconnectWait: 50 * time.Millisecond}, ctrl, WithLogger(quietLogger()))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconnect", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if !strings.Contains(rec.Body.String(), `"status":"reconnecting"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestReconnect_ConcurrentRejected(t *testing.T) {
	ctrl := newFakeController(connection.StatusDisconnected)
	ctrl.onConnect = connection.StatusReconnecting
	s := New(Config{ReconnectWait: time.Second}, ctrl, WithLogger(quietLogger()))
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := http.Post(server.URL+"/reconnect", "application/json", nil)
		if err == nil {
			resp.Body.Close()
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !s.inflight.running(opReconnect) {
		if time.Now().After(deadline) {
			t.Fatal("first reconnect never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Post(server.URL+"/reconnect", "application/json", nil)
	if err != nil {
		t.Fatalf("second POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second reconnect code = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	wg.Wait()
	if n := ctrl.reconnects.Load(); n != 1 {
		t.Errorf("reconnects = %d, want 1", n)
	}
	if s.inflight.running(opReconnect) {
		t.Error("reconnect still marked in flight")
	}
}

func TestReconnect_MethodNotAllowed(t *testing.T) {
	s := New(Config{}, newFakeController(connection.StatusConnected), WithLogger(quietLogger()))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reconnect", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	mt := metrics.New(reg)
	mt.SetStatus("connected")

	s := New(Config{MetricsPath: "/prom"}, newFakeController(connection.StatusConnected),
		WithLogger(quietLogger()),
		WithGatherer(reg),
	)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prom", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `updatewatch_stream_status{status="connected"} 1`) {
		t.Errorf("metrics output missing stream status:\n%s", rec.Body.String())
	}
}

func TestInflight(t *testing.T) {
	f := newInflight()

	if !f.begin("backup") {
		t.Fatal("first begin = false")
	}
	if f.begin("backup") {
		t.Error("second begin = true, want false")
	}
	if !f.begin("settings") {
		t.Error("independent op blocked")
	}

	f.end("backup")
	if f.running("backup") {
		t.Error("backup still running after end")
	}
	if !f.begin("backup") {
		t.Error("begin after end = false")
	}
}
