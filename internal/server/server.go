package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/updatewatch/internal/connection"
)

const opReconnect = "reconnect"

// Controller is the part of the connection manager the server drives.
type Controller interface {
	Status() connection.Status
	Stats() connection.ManagerStats
	ReconnectNow()
}

// Pinger checks an optional dependency such as the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server settings.
type Config struct {
	Port          int
	MetricsPath   string        // Default: /metrics
	ReconnectWait time.Duration // How long POST /reconnect waits for the stream. Default: 10s
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDatabase adds a database component to /health.
func WithDatabase(db Pinger) Option {
	return func(s *Server) {
		s.db = db
	}
}

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// Server is the health and control HTTP server.
type Server struct {
	cfg      Config
	ctrl     Controller
	db       Pinger
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	inflight *inflight
	router   chi.Router
}

// New creates a Server for ctrl.
func New(cfg Config, ctrl Controller, opts ...Option) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 10 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
		inflight: newInflight(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Post("/reconnect", s.handleReconnect)
	r.Handle(cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router = r

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting health server", "port", s.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown health server: %w", err)
	}
	return nil
}

type streamHealth struct {
	Status         string `json:"status"`
	Connects       int64  `json:"connects"`
	Failures       int64  `json:"failures"`
	FramesReceived int64  `json:"frames_received"`
	RetryDelayMs   int64  `json:"retry_delay_ms"`
	RetryAttempt   int    `json:"retry_attempt"`
	Reconnecting   bool   `json:"manual_reconnect_in_flight"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Stream     streamHealth      `json:"stream"`
	Components map[string]string `json:"components,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.ctrl.Stats()

	health := healthResponse{
		Status: "healthy",
		Stream: streamHealth{
			Status:         stats.Status.String(),
			Connects:       stats.Connects,
			Failures:       stats.Failures,
			FramesReceived: stats.FramesReceived,
			RetryDelayMs:   stats.RetryDelay.Milliseconds(),
			RetryAttempt:   stats.RetryAttempt,
			Reconnecting:   s.inflight.running(opReconnect),
		},
	}

	if s.db != nil {
		health.Components = make(map[string]string)
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			health.Status = "degraded"
			health.Components["database"] = "error: " + err.Error()
		} else {
			health.Components["database"] = "connected"
		}
	}

	code := http.StatusOK
	if stats.Status != connection.StatusConnected {
		health.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, health)
}

type reconnectResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleReconnect forces a reconnect and waits for the stream to come back,
// bounded by ReconnectWait and the request context.
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if !s.inflight.begin(opReconnect) {
		writeJSON(w, http.StatusConflict, reconnectResponse{
			Status: s.ctrl.Status().String(),
			Error:  "reconnect already in progress",
		})
		return
	}
	defer s.inflight.end(opReconnect)

	s.logger.Info("manual reconnect requested", "remote", r.RemoteAddr)
	s.ctrl.ReconnectNow()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReconnectWait)
	defer cancel()

	if s.waitConnected(ctx) {
		writeJSON(w, http.StatusOK, reconnectResponse{Status: connection.StatusConnected.String()})
		return
	}
	writeJSON(w, http.StatusAccepted, reconnectResponse{Status: s.ctrl.Status().String()})
}

// waitConnected polls until the stream is connected or ctx ends.
func (s *Server) waitConnected(ctx context.Context) bool {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.ctrl.Status() == connection.StatusConnected {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
