package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/logansec/realtime/internal/archive"
	"github.com/logansec/realtime/internal/collab"
	"github.com/logansec/realtime/internal/config"
	"github.com/logansec/realtime/internal/database"
	"github.com/logansec/realtime/internal/feed"
	"github.com/logansec/realtime/internal/registry"
	"github.com/logansec/realtime/internal/retry"
	"github.com/logansec/realtime/internal/server"
	"github.com/logansec/realtime/internal/subscription"
	"github.com/logansec/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/dashboard.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting dashboard realtime server",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
		"collaborator", cfg.Collaborator.Command,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Start the query engine session
	session := collab.NewSession(collab.Config{
		Command:        cfg.Collaborator.Command,
		Args:           cfg.Collaborator.Args,
		ConnectTimeout: cfg.Collaborator.ConnectTimeout,
		CallTimeout:    cfg.Collaborator.CallTimeout,
		MaxAttempts:    cfg.Collaborator.MaxAttempts,
		Backoff: retry.Policy{
			Base: cfg.Collaborator.RetryBaseDelay,
			Cap:  cfg.Collaborator.RetryMaxDelay,
		},
	}, logger)
	defer session.Close()

	logger.Info("connecting to query engine", "command", cfg.Collaborator.Command)
	if err := session.Connect(ctx); err != nil {
		// The session reconnects lazily on the first call, so a dead
		// engine at boot is not fatal.
		logger.Warn("query engine not available at startup", "error", err)
	} else {
		logger.Info("query engine connected")
	}

	// Connection registry
	reg := registry.New(registry.Config{
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
	}, logger)

	// Subscription engine feeding the registry
	engine := subscription.NewEngine(subscription.Config{
		DefaultInterval: cfg.Subscriptions.DefaultInterval,
		MinInterval:     cfg.Subscriptions.MinInterval,
		PollTimeout:     cfg.Subscriptions.PollTimeout,
	}, reg, feed.NewFetchers(session), logger)
	reg.SetSubscriptions(engine)

	// Ad-hoc query runner
	queries := feed.NewQueryRunner(session, reg, cfg.Collaborator.CallTimeout, logger)
	reg.SetQueries(queries)

	// Optional delivery archive
	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.Database.Host,
			"database", cfg.Archive.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Archive.Database)
		if err != nil {
			logger.Error("failed to connect to archive database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		tap := make(chan registry.Delivered, cfg.Archive.BufferSize)
		reg.SetDeliveryTap(tap)

		writer := archive.NewWriter(archive.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			BufferSize:    cfg.Archive.BufferSize,
		}, tap, pool, logger)

		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start archive writer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			writer.Stop(shutdownCtx)
		}()
		logger.Info("archive writer started")
	}

	// WebSocket server
	srv := server.New(server.Config{Addr: cfg.Server.Addr}, reg, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	logger.Info("dashboard realtime server running",
		"instance_id", cfg.Instance.ID,
		"ws_url", "ws://localhost"+cfg.Server.Addr+"/ws",
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("dashboard realtime server stopped")
}
