package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the wait between continuous cycles.
const DefaultInterval = 300 * time.Second

// CycleRunner runs one poll cycle. [*Cycle] implements it.
type CycleRunner interface {
	Run(ctx context.Context) (Result, error)
}

// SchedulerOptions configures a [Scheduler].
type SchedulerOptions struct {
	// Continuous repeats cycles until the context is cancelled. When false
	// exactly one cycle runs.
	Continuous bool

	// Interval is the wait between the end of one cycle and the start of the
	// next. Zero means [DefaultInterval].
	Interval time.Duration

	// OnCycle, if set, is called after every cycle with its result and commit
	// error. It runs on the scheduler goroutine.
	OnCycle func(Result, error)
}

// Scheduler repeats poll cycles.
//
// A cycle is never interrupted: it runs on a context detached from
// cancellation, so an interrupt arriving mid-probe lets the probe finish and
// the record commit. The wait between cycles is the only point where
// cancellation is observed.
//
// Run is safe to call once; subsequent calls return an error.
type Scheduler struct {
	runner     CycleRunner
	continuous bool
	interval   time.Duration
	onCycle    func(Result, error)
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewScheduler creates a [Scheduler]. It returns an error if the interval is
// negative.
func NewScheduler(runner CycleRunner, opts SchedulerOptions, logger *slog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("cycle runner is required")
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", opts.Interval)
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		runner:     runner,
		continuous: opts.Continuous,
		interval:   opts.Interval,
		onCycle:    opts.OnCycle,
		logger:     logger,
	}, nil
}

// Interval returns the effective wait between cycles.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run runs one cycle, or in continuous mode keeps running cycles until ctx is
// cancelled. Cancellation ends Run with a nil error once the in-flight cycle
// has committed.
//
// A failed commit ends Run with that error; it is not retried.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	for {
		res, err := s.runner.Run(context.WithoutCancel(ctx))
		if s.onCycle != nil {
			s.onCycle(res, err)
		}
		if err != nil {
			return err
		}

		if !s.continuous {
			return nil
		}
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopping", "reason", context.Cause(ctx))
			return nil
		}

		s.logger.Debug("waiting for next cycle", "interval", s.interval.String())
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopping", "reason", context.Cause(ctx))
			return nil
		case <-timer.C:
		}
	}
}
