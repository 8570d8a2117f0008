package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jpalmerr/labwatch"
	"github.com/jpalmerr/labwatch/example/mockgitlab"
)

func main() {
	// start a fake GitLab instance that changes state every 20-60s
	go func() {
		if err := http.ListenAndServe(":9999", mockgitlab.New(true, nil)); err != nil {
			slog.Error("mock server error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	target, err := labwatch.NewTarget("http://localhost:9999", "demo-token",
		labwatch.WithAuthHeader(labwatch.AuthPrivateToken),
		labwatch.WithTimeout(5*time.Second),
	)
	if err != nil {
		slog.Error("invalid target", "error", err)
		os.Exit(1)
	}

	w, err := labwatch.New(target,
		labwatch.WithDatabase(filepath.Join(os.TempDir(), "labwatch-demo.db")),
		labwatch.WithAutoMigrate(),
		labwatch.WithContinuous(5*time.Second),
		labwatch.WithSaveResponses(true),
		labwatch.WithListenAddr(":9090"),
		labwatch.WithProgress(os.Stderr, true),
		labwatch.WithCycleCallback(func(r labwatch.CycleResult) {
			if !r.OK() {
				slog.Warn("instance unhealthy",
					"base_url", r.BaseURL,
					"health", r.HealthCheckPassed,
					"readiness", r.ReadinessCheckPassed,
				)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  labwatch demo")
	fmt.Println()
	fmt.Println("  Polling a mock GitLab instance every 5s")
	fmt.Println("  Recent polls:  http://localhost:9090/api/polls")
	fmt.Println("  Metrics:       http://localhost:9090/metrics")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		slog.Error("labwatch error", "error", err)
		os.Exit(1)
	}
}
