package labwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/labwatch/internal/metrics"
	"github.com/jpalmerr/labwatch/internal/poller"
	"github.com/jpalmerr/labwatch/internal/probe"
	"github.com/jpalmerr/labwatch/internal/server"
	"github.com/jpalmerr/labwatch/internal/store"
)

const (
	defaultDatabase   = "labwatch.db"
	defaultMirrorSize = 100
)

// Watcher polls a GitLab instance and records every poll.
//
// Watcher is created using [New] with functional options and run with
// [Watcher.Run].
//
// The typical lifecycle is:
//
//	target, err := labwatch.NewTarget("https://gitlab.example.com", token)
//	if err != nil {
//	    slog.Error("invalid target", "error", err)
//	    os.Exit(1)
//	}
//	w, err := labwatch.New(target, labwatch.WithContinuous(5*time.Minute))
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	err = w.Run(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancelling it stops the
// watcher after the in-flight cycle has committed its record.
type Watcher struct {
	target Target
	cfg    watcherConfig
	logger *slog.Logger

	metrics *metrics.Collector
}

// New creates a new [Watcher] for target with the given options.
//
// Options have sensible defaults:
//   - Database: labwatch.db (SQLite)
//   - Mode: a single cycle
//   - Responses: not saved
//
// Returns an error if any option is invalid.
func New(target Target, opts ...Option) (*Watcher, error) {
	if target.url == "" {
		return nil, errors.New("target is required; create it with NewTarget")
	}

	cfg := watcherConfig{
		database:   defaultDatabase,
		interval:   poller.DefaultInterval,
		mirrorSize: defaultMirrorSize,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		target:  target,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}, nil
}

// Target returns the polled instance.
func (w *Watcher) Target() Target {
	return w.target
}

// Continuous reports whether the watcher repeats cycles.
func (w *Watcher) Continuous() bool {
	return w.cfg.continuous
}

// Interval returns the wait between continuous cycles.
func (w *Watcher) Interval() time.Duration {
	return w.cfg.interval
}

// Run polls the target until done.
//
// In single-shot mode Run performs one cycle and returns. In continuous mode
// it keeps polling until ctx is cancelled; cancellation is observed only
// between cycles, so the in-flight cycle always commits its record first.
//
// Returns nil on success or graceful shutdown. Returns an error if the
// database cannot be opened, its schema is outdated, the status server fails
// to start, or a record cannot be committed.
func (w *Watcher) Run(ctx context.Context) error {
	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	db, err := store.Open(ctx, w.cfg.database, store.Options{
		CreateIfMissing: w.cfg.autoMigrate,
		Logger:          w.logger,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if w.cfg.autoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	} else if err := db.CheckSchema(ctx); err != nil {
		return err
	}

	client, err := probe.NewClient(probe.Config{
		BaseURL:    w.target.url,
		Token:      w.target.token,
		AuthHeader: probe.AuthHeader(w.target.authHeader),
		Headers:    w.target.headers,
		Timeout:    w.target.timeout,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	cycleOpts := poller.CycleOptions{
		SaveResponses: w.cfg.saveResponses,
		Logger:        w.logger,
	}
	if w.cfg.progress != nil {
		cycleOpts.Reporter = poller.NewTextReporter(w.cfg.progress, w.cfg.colorize)
	}
	cycle := poller.NewCycle(client, db, cycleOpts)

	// recent records are mirrored in memory for the status server
	mirror := store.NewMemoryStore(w.cfg.mirrorSize)

	scheduler, err := poller.NewScheduler(cycle, poller.SchedulerOptions{
		Continuous: w.cfg.continuous,
		Interval:   w.cfg.interval,
		OnCycle: func(res poller.Result, commitErr error) {
			w.afterCycle(mirror, res, commitErr)
		},
	}, w.logger)
	if err != nil {
		return err
	}

	if w.cfg.listenAddr != "" {
		srvCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()

		httpServer := server.NewServer(mirror, w.cfg.listenAddr, w.metrics.Handler(), w.logger)
		if err := httpServer.Start(srvCtx); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	w.logger.Info("labwatch starting",
		"base_url", w.target.url,
		"domain", w.target.Domain(),
		"database", db.Dialect(),
		"continuous", w.cfg.continuous,
		"interval", w.cfg.interval.String(),
	)

	if err := scheduler.Run(ctx); err != nil {
		return err
	}

	w.logger.Info("labwatch stopped")
	return nil
}

// afterCycle fans a finished cycle out to metrics, the mirror and callbacks.
func (w *Watcher) afterCycle(mirror *store.MemoryStore, res poller.Result, commitErr error) {
	w.metrics.Observe(res, commitErr)

	if commitErr == nil {
		rec := res.Record
		if err := mirror.Insert(context.Background(), &rec); err != nil {
			w.logger.Warn("failed to mirror poll record", "record_id", rec.ID, "error", err)
		}
	}

	if len(w.cfg.cycleCallbacks) == 0 {
		return
	}
	public := toCycleResult(res, commitErr)
	for _, cb := range w.cfg.cycleCallbacks {
		invokeCallbackSafe(cb, public, w.logger)
	}
}

// toCycleResult converts the internal cycle result to the public API type.
func toCycleResult(res poller.Result, commitErr error) CycleResult {
	out := CycleResult{
		BaseURL:              res.Record.BaseURL,
		Started:              res.Started,
		Duration:             res.Duration,
		HealthCheckPassed:    res.Record.HealthCheckPassed,
		ReadinessCheckPassed: res.Record.ReadinessCheckPassed,
		InstanceVersion:      res.Record.InstanceVersion,
		Fault:                res.Outcome.Fault,
		CommitErr:            commitErr,
	}
	if commitErr == nil {
		out.RecordID = res.Record.ID
	}

	for _, s := range res.Outcome.Stages {
		sr := StageResult{
			Stage:   Stage(s.Stage),
			Passed:  s.Passed,
			Latency: s.Latency,
		}
		if s.Failure != nil {
			sr.StatusCode = s.Failure.Response.StatusCode
			sr.Err = s.Failure
		}
		out.Stages = append(out.Stages, sr)
	}
	return out
}

// invokeCallbackSafe calls a cycle callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(CycleResult), result CycleResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cycle callback panicked",
				"panic", r,
				"base_url", result.BaseURL,
			)
		}
	}()
	cb(result)
}
