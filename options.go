package labwatch

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// watcherConfig holds mutable state during Watcher construction.
type watcherConfig struct {
	database       string
	continuous     bool
	interval       time.Duration
	saveResponses  bool
	autoMigrate    bool
	listenAddr     string
	mirrorSize     int
	progress       io.Writer
	colorize       bool
	logger         *slog.Logger
	cycleCallbacks []func(CycleResult)
}

// Option is a function that configures a [Watcher] instance during
// construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*watcherConfig) error

// WithDatabase sets where poll records are stored.
//
// A DSN starting with postgres:// or postgresql:// selects PostgreSQL; any
// other value is a SQLite file path. Defaults to "labwatch.db".
//
// Returns an error if the DSN is empty.
func WithDatabase(dsn string) Option {
	return func(cfg *watcherConfig) error {
		if strings.TrimSpace(dsn) == "" {
			return errors.New("database must not be empty")
		}
		cfg.database = dsn
		return nil
	}
}

// WithContinuous keeps polling until the context passed to [Watcher.Run] is
// cancelled, waiting interval between cycles. Without it a single cycle runs.
//
// Returns an error if the interval is zero or negative.
//
// Example:
//
//	w, err := labwatch.New(target,
//	    labwatch.WithContinuous(5*time.Minute),
//	)
func WithContinuous(interval time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if interval <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.continuous = true
		cfg.interval = interval
		return nil
	}
}

// WithSaveResponses stores the raw response bodies on every record.
func WithSaveResponses(save bool) Option {
	return func(cfg *watcherConfig) error {
		cfg.saveResponses = save
		return nil
	}
}

// WithAutoMigrate creates the database and applies pending schema changes
// before the first cycle. Without it, [Watcher.Run] refuses to start on a
// missing database or an outdated schema.
func WithAutoMigrate() Option {
	return func(cfg *watcherConfig) error {
		cfg.autoMigrate = true
		return nil
	}
}

// WithListenAddr serves /api/polls, /metrics and /healthz on addr while the
// watcher runs.
//
// Example:
//
//	labwatch.WithListenAddr(":9090")
func WithListenAddr(addr string) Option {
	return func(cfg *watcherConfig) error {
		if strings.TrimSpace(addr) == "" {
			return errors.New("listen address must not be empty")
		}
		cfg.listenAddr = addr
		return nil
	}
}

// WithRecentLimit sets how many recent records the status server keeps in
// memory. Defaults to 100.
//
// Returns an error if n is zero or negative.
func WithRecentLimit(n int) Option {
	return func(cfg *watcherConfig) error {
		if n <= 0 {
			return errors.New("recent limit must be positive")
		}
		cfg.mirrorSize = n
		return nil
	}
}

// WithProgress writes human-readable progress lines for every cycle to w.
// Colour codes are emitted only when colorize is true.
//
// Returns an error if w is nil.
func WithProgress(w io.Writer, colorize bool) Option {
	return func(cfg *watcherConfig) error {
		if w == nil {
			return errors.New("progress writer cannot be nil")
		}
		cfg.progress = w
		cfg.colorize = colorize
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher instance.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watcherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithCycleCallback registers a function to be called after every cycle.
//
// Multiple callbacks may be registered by calling WithCycleCallback multiple
// times; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. They run between cycles on the
// polling goroutine, so a slow callback delays the next cycle.
//
// Panics within callbacks are recovered and logged; they do not stop the
// watcher.
//
// Example:
//
//	labwatch.WithCycleCallback(func(r labwatch.CycleResult) {
//	    if !r.ReadinessCheckPassed {
//	        log.Printf("ALERT: %s is not ready", r.BaseURL)
//	    }
//	})
//
// Nil callbacks are silently ignored.
func WithCycleCallback(cb func(CycleResult)) Option {
	return func(cfg *watcherConfig) error {
		if cb == nil {
			return nil
		}
		cfg.cycleCallbacks = append(cfg.cycleCallbacks, cb)
		return nil
	}
}
