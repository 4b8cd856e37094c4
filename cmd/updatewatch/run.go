package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/updatewatch/internal/config"
	"github.com/rickgao/updatewatch/internal/connection"
	"github.com/rickgao/updatewatch/internal/database"
	"github.com/rickgao/updatewatch/internal/dispatcher"
	"github.com/rickgao/updatewatch/internal/metrics"
	"github.com/rickgao/updatewatch/internal/notify"
	"github.com/rickgao/updatewatch/internal/server"
	"github.com/rickgao/updatewatch/internal/version"
)

// shutdownTimeout bounds each component's graceful stop.
const shutdownTimeout = 10 * time.Second

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the event stream and serve health and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/updatewatch.example.yaml", "path to config file")

	return cmd
}

func run(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting updatewatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"base_url", cfg.Stream.BaseURL,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mt := metrics.New(registry)

	sinks := []notify.Sink{notify.NewLogSink(logger.With("component", "notify"))}

	var pool *pgxpool.Pool
	var store *notify.Store
	if cfg.Notifications.Store {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		store = notify.NewStore(notify.StoreConfig{
			QueueSize:     cfg.Notifications.QueueSize,
			BatchSize:     cfg.Notifications.BatchSize,
			FlushInterval: cfg.Notifications.FlushInterval,
		}, pool, mt, logger.With("component", "store"))
		if err := store.Start(ctx); err != nil {
			return fmt.Errorf("start notification store: %w", err)
		}
		sinks = append(sinks, store)
	}

	sink := notify.NewMulti(logger, sinks...)

	dispatcherOpts := []dispatcher.Option{
		dispatcher.WithLogger(logger.With("component", "dispatcher")),
		dispatcher.WithMetrics(mt),
		dispatcher.WithNotificationsEnabled(cfg.Notifications.NotificationsEnabled()),
	}
	for _, eventType := range []string{
		dispatcher.TypeUpdateAvailable,
		dispatcher.TypeUpdateApplied,
		dispatcher.TypeUpdateFailed,
		dispatcher.TypeContainerRestarted,
		dispatcher.TypeHealthCheckFailed,
	} {
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithHandler(eventType, logEvent(logger, eventType)))
	}
	d := dispatcher.New(sink, dispatcherOpts...)

	manager := connection.NewManager(managerConfig(cfg.Stream), d,
		connection.WithLogger(logger.With("component", "connection")),
		connection.WithMetrics(mt),
	)
	manager.OnStatusChange(func(from, to connection.Status) {
		logger.Info("stream status changed", "from", from.String(), "to", to.String())
	})

	serverOpts := []server.Option{
		server.WithLogger(logger.With("component", "server")),
		server.WithGatherer(registry),
	}
	if pool != nil {
		serverOpts = append(serverOpts, server.WithDatabase(pool))
	}
	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		MetricsPath: cfg.Server.MetricsPath,
	}, manager, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	g.Go(func() error {
		if err := manager.Start(gctx); err != nil {
			return fmt.Errorf("start stream manager: %w", err)
		}
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return manager.Stop(stopCtx)
	})

	logger.Info("updatewatch running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	err = g.Wait()

	if store != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Stop(stopCtx); err != nil {
			logger.Warn("notification store stop failed", "error", err)
		}
	}

	logger.Info("updatewatch stopped")
	return err
}

// managerConfig maps the stream section onto the connection manager.
func managerConfig(cfg config.StreamConfig) connection.ManagerConfig {
	return connection.ManagerConfig{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.Token,
		InitialRetryDelay: cfg.InitialRetryDelay,
		MaxRetryDelay:     cfg.MaxRetryDelay,
		StaleTimeout:      cfg.Stale(),
		BufferSize:        cfg.BufferSize,
	}
}

// logEvent returns a handler that logs an event's payload.
func logEvent(logger *slog.Logger, eventType string) dispatcher.HandlerFunc {
	logger = logger.With("component", "events", "type", eventType)
	return func(data map[string]any) error {
		attrs := make([]any, 0, 2*len(data))
		for k, v := range data {
			attrs = append(attrs, k, v)
		}
		logger.Info("event received", attrs...)
		return nil
	}
}
