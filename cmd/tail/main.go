// tail connects to a workspace real-time feed and prints events to console.
// Usage: go run ./cmd/tail --host localhost:8000 --workspace ws-42 --tasks T1,T2
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goalpost/realtime/internal/connection"
	"github.com/goalpost/realtime/internal/model"
	"github.com/goalpost/realtime/internal/router"
)

func main() {
	host := flag.String("host", "localhost:8000", "backend host[:port]")
	workspace := flag.String("workspace", "", "workspace id")
	system := flag.Bool("system", false, "connect to the system feed instead of a workspace")
	tls := flag.Bool("tls", false, "use wss://")
	tasks := flag.String("tasks", "", "comma-separated task ids to subscribe to (empty = all updates)")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if !*system && *workspace == "" {
		logger.Error("either --workspace or --system is required")
		os.Exit(1)
	}

	cfg := connection.DefaultManagerConfig()
	cfg.Host = *host
	cfg.WorkspaceID = *workspace
	cfg.SystemFeed = *system
	cfg.TLS = *tls

	mgr := connection.NewManager(cfg, logger)

	mgr.OnStateChange(func(old, new connection.State) {
		fmt.Printf("[STATE] %s -> %s\n", old, new)
	})
	mgr.OnError(func(err error) {
		fmt.Printf("[ERROR] %v\n", err)
	})

	registerPrinters(mgr.Router(), *verbose)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	for _, task := range splitTasks(*tasks) {
		if err := mgr.Subscribe(task); err != nil {
			logger.Error("subscribe failed", "task", task, "error", err)
			os.Exit(1)
		}
	}

	if err := mgr.Connect(); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				rtrStats := mgr.Router().Stats()
				logger.Info("stats",
					"state", mgr.State(),
					"connections", stats.TotalConnections,
					"reconnects", stats.ReconnectAttempts,
					"received", stats.MessagesReceived,
					"sent", stats.MessagesSent,
					"dispatched", rtrStats.Dispatched,
					"parse_errors", rtrStats.ParseErrors,
				)
			}
		}
	}()

	logger.Info("tailing - press Ctrl+C to stop", "url", cfg.URL())

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if err := mgr.Close(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func splitTasks(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func registerPrinters(rtr *router.Router, verbose bool) {
	rtr.Handle(router.TypeTaskUpdate, func(msg router.Message) {
		if verbose {
			printJSON("TASK", msg.Payload)
			return
		}
		task, err := model.DecodeTask(msg.Payload)
		if err != nil {
			fmt.Printf("[TASK] undecodable payload: %v\n", err)
			return
		}
		fmt.Printf("[TASK] id=%s status=%s progress=%.0f%% title=%q\n",
			task.ID, task.Status, task.Progress*100, task.Title)
	})

	rtr.Handle(router.TypeAgentUpdate, func(msg router.Message) {
		if verbose {
			printJSON("AGENT", msg.Payload)
			return
		}
		agent, err := model.DecodeAgent(msg.Payload)
		if err != nil {
			fmt.Printf("[AGENT] undecodable payload: %v\n", err)
			return
		}
		fmt.Printf("[AGENT] id=%s name=%s status=%s task=%s\n",
			agent.ID, agent.Name, agent.Status, agent.CurrentTaskID)
	})

	rtr.Handle(router.TypeDeliverableUpdate, func(msg router.Message) {
		if verbose {
			printJSON("DELIVERABLE", msg.Payload)
			return
		}
		d, err := model.DecodeDeliverable(msg.Payload)
		if err != nil {
			fmt.Printf("[DELIVERABLE] undecodable payload: %v\n", err)
			return
		}
		fmt.Printf("[DELIVERABLE] id=%s status=%s v%d title=%q\n",
			d.ID, d.Status, d.Version, d.Title)
	})

	rtr.Handle(router.TypeThinkingStep, func(msg router.Message) {
		step, err := model.DecodeThinkingStep(msg.Payload)
		if err != nil {
			fmt.Printf("[THINKING] undecodable payload: %v\n", err)
			return
		}
		fmt.Printf("[THINKING] task=%s step=%d %s\n", step.TaskID, step.Step, step.Content)
	})

	rtr.Handle(router.TypeGoalDecompositionStart, func(msg router.Message) {
		start, err := model.DecodeDecompositionStart(msg.Payload)
		if err != nil {
			fmt.Printf("[DECOMPOSE] undecodable payload: %v\n", err)
			return
		}
		fmt.Printf("[DECOMPOSE] started goal=%s title=%q\n", start.GoalID, start.Title)
	})

	rtr.Handle(router.TypeGoalDecompositionDone, func(msg router.Message) {
		result, err := model.DecodeDecompositionResult(msg.Payload)
		if err != nil {
			fmt.Printf("[DECOMPOSE] undecodable payload: %v\n", err)
			return
		}
		fmt.Printf("[DECOMPOSE] completed goal=%s tasks=%d\n", result.GoalID, len(result.TaskIDs))
	})

	rtr.HandleGeneral(func(msg router.Message) {
		fmt.Printf("[OTHER] type=%s topic=%s\n", msg.Type, msg.Topic)
	})
}

func printJSON(tag string, payload json.RawMessage) {
	var buf map[string]any
	if err := json.Unmarshal(payload, &buf); err != nil {
		fmt.Printf("[%s] %s\n", tag, payload)
		return
	}
	data, _ := json.MarshalIndent(buf, "", "  ")
	fmt.Printf("[%s] %s\n", tag, data)
}
