// eventsim serves a fake update event stream for local testing.
// Usage: go run ./cmd/eventsim --port 8000 --interval 2s --drop-after 10
//
// Point updatewatch at http://localhost:8000 (SSE) or ws://localhost:8000
// (WebSocket). With --drop-after the stream is closed after that many events
// to exercise reconnection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	port := flag.Int("port", 8000, "listen port")
	interval := flag.Duration("interval", 2*time.Second, "delay between events")
	dropAfter := flag.Int("drop-after", 0, "close each stream after this many events (0 = never)")
	token := flag.String("token", "", "require this bearer token")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := &simulator{
		interval:  *interval,
		dropAfter: *dropAfter,
		token:     *token,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/api/events", sim.handleEvents)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("event simulator listening",
		"port", *port,
		"interval", *interval,
		"drop_after", *dropAfter,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
