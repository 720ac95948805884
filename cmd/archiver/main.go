package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/goalpost/realtime/internal/archive"
	"github.com/goalpost/realtime/internal/backoff"
	"github.com/goalpost/realtime/internal/config"
	"github.com/goalpost/realtime/internal/connection"
	"github.com/goalpost/realtime/internal/router"
	"github.com/goalpost/realtime/internal/storage"
	"github.com/goalpost/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/archiver.example.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting archiver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"workspace", cfg.Workspace.WorkspaceID,
		"system_feed", cfg.Workspace.SystemFeed,
	)

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

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)
	pool, err := storage.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Archive writer
	writer := archive.NewWriter(archive.Config{
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
		BufferSize:    cfg.Archive.BufferSize,
	}, cfg.Instance.ID, pool, logger)

	if err := writer.Start(ctx); err != nil {
		logger.Error("failed to start archive writer", "error", err)
		os.Exit(1)
	}

	// Connection manager
	mgr := connection.NewManager(managerConfig(cfg), logger)

	mgr.OnStateChange(func(old, new connection.State) {
		logger.Info("connection state", "from", old, "to", new)
	})
	mgr.OnError(func(err error) {
		logger.Warn("connection error", "error", err)
	})

	// Every domain update flows into the archive. Enqueue never blocks, so
	// the dispatch path stays realtime even when the database lags.
	for _, msgType := range []string{
		router.TypeTaskUpdate,
		router.TypeAgentUpdate,
		router.TypeDeliverableUpdate,
		router.TypeThinkingStep,
		router.TypeGoalDecompositionStart,
		router.TypeGoalDecompositionDone,
	} {
		mgr.Router().Handle(msgType, writer.Enqueue)
	}
	mgr.Router().HandleGeneral(writer.Enqueue)

	if err := mgr.Connect(); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	// Health server + stats loop under one supervision group.
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(cfg.Health.Path, pool, mgr, writer),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port, "path", cfg.Health.Path)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				connStats := mgr.Stats()
				archiveStats := writer.Stats()
				logger.Info("stats",
					"state", mgr.State(),
					"connections", connStats.TotalConnections,
					"reconnects", connStats.ReconnectAttempts,
					"received", connStats.MessagesReceived,
					"archived", archiveStats.Inserts,
					"archive_errors", archiveStats.Errors,
					"archive_dropped", archiveStats.Dropped,
				)
			}
		}
	})

	logger.Info("archiver running",
		"instance_id", cfg.Instance.ID,
		"url", managerConfig(cfg).URL(),
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
		cancel()
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := mgr.Close(shutdownCtx); err != nil {
		logger.Error("connection shutdown error", "error", err)
	}
	if err := writer.Stop(shutdownCtx); err != nil {
		logger.Error("archive writer shutdown error", "error", err)
	}

	logger.Info("archiver stopped")
}

// managerConfig maps file configuration onto the connection manager.
func managerConfig(cfg *config.ArchiverConfig) connection.ManagerConfig {
	return connection.ManagerConfig{
		Host:              cfg.Workspace.Host,
		WorkspaceID:       cfg.Workspace.WorkspaceID,
		SystemFeed:        cfg.Workspace.SystemFeed,
		TLS:               cfg.Workspace.TLS,
		ConnectTimeout:    cfg.Connection.ConnectTimeout,
		HeartbeatInterval: cfg.Connection.HeartbeatInterval,
		LivenessMultiple:  cfg.Connection.LivenessMultiple,
		WriteTimeout:      cfg.Connection.WriteTimeout,
		Backoff: backoff.Policy{
			BaseDelay:   cfg.Connection.ReconnectBaseDelay,
			MaxDelay:    cfg.Connection.ReconnectMaxDelay,
			Factor:      cfg.Connection.ReconnectFactor,
			JitterMax:   cfg.Connection.ReconnectJitterMax,
			MaxAttempts: cfg.Connection.MaxAttempts,
		},
		HistorySize: cfg.Connection.HistorySize,
		BufferSize:  cfg.Connection.BufferSize,
	}
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(path string, pool *pgxpool.Pool, mgr *connection.Manager, writer *archive.Writer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		state := mgr.State()
		health.Components["connection"] = state.String()
		switch state {
		case connection.StateConnected:
		case connection.StatePermanentlyFailed:
			health.Status = "unhealthy"
		default:
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		stats := writer.Stats()
		health.Components["archive"] = map[string]int64{
			"inserts": stats.Inserts,
			"errors":  stats.Errors,
			"dropped": stats.Dropped,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/history", func(w http.ResponseWriter, r *http.Request) {
		history := mgr.Router().History().Snapshot()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":    len(history),
			"messages": history,
		})
	})

	return mux
}
