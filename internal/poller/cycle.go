package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jpalmerr/labwatch/internal/probe"
	"github.com/jpalmerr/labwatch/internal/store"
)

// ErrMissingVersion is the fault raised when a metadata payload decodes but
// has no "version" key. An empty version is recorded as is.
var ErrMissingVersion = errors.New("metadata response has no version")

// Prober is the set of probes a cycle runs. [*probe.Client] implements it.
type Prober interface {
	BaseURL() string
	Domain() string
	Health(ctx context.Context) (string, error)
	Readiness(ctx context.Context) (probe.Readiness, error)
	Metadata(ctx context.Context) (probe.Metadata, error)
}

// Stage identifies one probe within a cycle.
type Stage string

const (
	StageHealth    Stage = "health"
	StageReadiness Stage = "readiness"
	StageMetadata  Stage = "metadata"
)

// Stages lists the stages in the order a cycle runs them.
var Stages = []Stage{StageHealth, StageReadiness, StageMetadata}

// StageResult is the tagged outcome of a single stage.
type StageResult struct {
	Stage  Stage
	Passed bool

	// Body is the response text retained for the record: the raw health body,
	// or the compacted readiness or metadata JSON.
	Body string

	// Version is set by a passing metadata stage.
	Version string

	// Failure is set when the instance answered but the answer failed the
	// probe.
	Failure *probe.ResponseError

	Latency time.Duration
}

// Outcome collects the stage results of one cycle.
//
// Stages holds a result for every stage that completed, passed or failed. A
// stage that faulted, and every stage after it, is absent.
type Outcome struct {
	Stages []StageResult
	Fault  error
}

// Stage returns the result recorded for s, if any.
func (o Outcome) Stage(s Stage) (StageResult, bool) {
	for _, r := range o.Stages {
		if r.Stage == s {
			return r, true
		}
	}
	return StageResult{}, false
}

// Passed reports whether every stage ran and passed.
func (o Outcome) Passed() bool {
	if o.Fault != nil || len(o.Stages) != len(Stages) {
		return false
	}
	for _, r := range o.Stages {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Label summarises the outcome as "ok", "partial" or "fault".
func (o Outcome) Label() string {
	switch {
	case o.Fault != nil:
		return "fault"
	case o.Passed():
		return "ok"
	default:
		return "partial"
	}
}

// BuildRecord aggregates an outcome into the record to commit.
//
// Response bodies are copied only when saveResponses is set. The record's ID
// and CreatedAt are left for the store to assign.
func BuildRecord(baseURL string, o Outcome, saveResponses bool) store.Record {
	rec := store.Record{BaseURL: baseURL}

	for _, r := range o.Stages {
		if !r.Passed {
			continue
		}
		switch r.Stage {
		case StageHealth:
			rec.HealthCheckPassed = true
			if saveResponses {
				rec.HealthCheckResponse = r.Body
			}
		case StageReadiness:
			rec.ReadinessCheckPassed = true
			if saveResponses {
				rec.ReadinessCheckResponse = r.Body
			}
		case StageMetadata:
			rec.InstanceVersion = r.Version
			if saveResponses {
				rec.MetadataResponse = r.Body
			}
		}
	}

	rec.ErrorMessage = FormatFault(o.Fault)
	return rec
}

// Result is what a committed (or attempted) cycle produced.
type Result struct {
	ID       string
	Record   store.Record
	Outcome  Outcome
	Started  time.Time
	Duration time.Duration
}

// CycleOptions configures a [Cycle].
type CycleOptions struct {
	// SaveResponses stores the response bodies on the record.
	SaveResponses bool

	// Reporter receives progress lines. Defaults to [NopReporter].
	Reporter Reporter

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Cycle runs the three probes against one instance and commits one record.
type Cycle struct {
	prober   Prober
	recorder store.Recorder
	opts     CycleOptions
	logger   *slog.Logger
	reporter Reporter
}

// NewCycle creates a [Cycle].
func NewCycle(prober Prober, recorder store.Recorder, opts CycleOptions) *Cycle {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Cycle{
		prober:   prober,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
		reporter: reporter,
	}
}

// Run probes health, readiness and metadata in that order, then commits the
// resulting record.
//
// A probe that receives an unacceptable response fails its stage and the
// cycle moves on. Any other error ends the cycle early as a fault. Either
// way the record is committed, and the commit ignores cancellation of ctx.
// The returned error is non-nil only when the commit fails.
func (c *Cycle) Run(ctx context.Context) (Result, error) {
	res := Result{
		ID:      uuid.NewString(),
		Started: time.Now(),
	}
	logger := c.logger.With("cycle_id", res.ID, "base_url", c.prober.BaseURL())

	c.reporter.CycleStarted(res.Started, c.prober.Domain())
	res.Outcome = c.probe(ctx, logger)
	res.Record = BuildRecord(c.prober.BaseURL(), res.Outcome, c.opts.SaveResponses)

	if err := c.recorder.Insert(context.WithoutCancel(ctx), &res.Record); err != nil {
		res.Duration = time.Since(res.Started)
		logger.Error("failed to commit poll record", "error", err)
		return res, fmt.Errorf("failed to commit poll record: %w", err)
	}
	res.Duration = time.Since(res.Started)

	logger.Info("poll cycle committed",
		"record_id", res.Record.ID,
		"outcome", res.Outcome.Label(),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// probe runs the stages in order, stopping at the first fault.
func (c *Cycle) probe(ctx context.Context, logger *slog.Logger) Outcome {
	var o Outcome

	for _, stage := range Stages {
		c.reporter.StageStarted(stage)

		r, err := c.runStage(ctx, stage, logger)
		if err == nil {
			o.Stages = append(o.Stages, r)
			c.reporter.StagePassed(stage, passedDetail(r))
			continue
		}

		if re, ok := probe.AsResponseError(err); ok {
			r.Failure = re
			o.Stages = append(o.Stages, r)
			c.reporter.StageFailed(stage, failedDetail(re))
			logger.Warn("probe failed", "stage", stage, "kind", re.Kind.String(), "status", re.Response.StatusCode)
			continue
		}

		o.Fault = err
		c.reporter.Fault(err)
		logger.Error("poll cycle aborted", "stage", stage, "error", err)
		break
	}

	return o
}

// runStage runs one probe, converting a panic into a fault.
func (c *Cycle) runStage(ctx context.Context, stage Stage, logger *slog.Logger) (r StageResult, err error) {
	r.Stage = stage
	start := time.Now()

	defer func() {
		r.Latency = time.Since(start)
		if p := recover(); p != nil {
			correlationID := uuid.NewString()
			logger.Error("probe panic",
				"stage", stage,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", p),
				"stack", string(debug.Stack()),
			)
			r.Passed = false
			err = &PanicError{Stage: stage, Value: p, CorrelationID: correlationID}
		}
	}()

	switch stage {
	case StageHealth:
		body, err := c.prober.Health(ctx)
		if err != nil {
			return r, err
		}
		r.Passed, r.Body = true, body

	case StageReadiness:
		readiness, err := c.prober.Readiness(ctx)
		if err != nil {
			return r, err
		}
		r.Passed, r.Body = true, readiness.Raw

	case StageMetadata:
		meta, err := c.prober.Metadata(ctx)
		if err != nil {
			return r, err
		}
		if !meta.HasVersion {
			return r, ErrMissingVersion
		}
		r.Passed, r.Body, r.Version = true, meta.Raw, meta.Version

	default:
		return r, fmt.Errorf("unknown stage %q", stage)
	}

	return r, nil
}

// PanicError is the fault recorded when a probe panics.
type PanicError struct {
	Stage         Stage
	Value         any
	CorrelationID string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s probe panicked: %v (correlation_id: %s)", e.Stage, e.Value, e.CorrelationID)
}

func passedDetail(r StageResult) string {
	if r.Stage == StageHealth {
		return strconv.Quote(r.Body)
	}
	return r.Body
}

// failedDetail prefers the body the instance sent, as that usually explains
// the failure better than the status line.
func failedDetail(re *probe.ResponseError) string {
	if body := re.Response.Text(); body != "" {
		return body
	}
	return re.Error()
}
