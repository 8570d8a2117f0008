package labwatch

import "time"

// Stage names one probe of a poll cycle.
type Stage string

const (
	StageHealth    Stage = "health"
	StageReadiness Stage = "readiness"
	StageMetadata  Stage = "metadata"
)

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// StageResult is the outcome of a single probe.
type StageResult struct {
	Stage  Stage
	Passed bool

	// StatusCode is set when the probe failed on a response the instance
	// sent. Zero if the probe passed.
	StatusCode int

	// Err describes why the probe failed. nil if it passed.
	Err error

	Latency time.Duration
}

// CycleResult is the outcome of one poll cycle, delivered to callbacks
// registered with [WithCycleCallback].
//
// CycleResult is a snapshot; modifying it does not affect the stored record.
type CycleResult struct {
	// RecordID is the ID of the committed record. Zero if the commit failed.
	RecordID int64

	// BaseURL is the polled instance.
	BaseURL string

	// Started is when the cycle began.
	Started time.Time

	// Duration covers the probes and the commit.
	Duration time.Duration

	HealthCheckPassed    bool
	ReadinessCheckPassed bool

	// InstanceVersion is the version reported by the metadata probe.
	InstanceVersion string

	// Stages holds one entry per probe that completed, in order. Probes
	// skipped after a fault are absent.
	Stages []StageResult

	// Fault is the error that ended the cycle early, if any.
	Fault error

	// CommitErr is non-nil if the record could not be stored.
	CommitErr error
}

// OK reports whether every probe passed and the record was stored.
func (r CycleResult) OK() bool {
	return r.Fault == nil && r.CommitErr == nil && len(r.Stages) == 3 &&
		r.HealthCheckPassed && r.ReadinessCheckPassed && r.InstanceVersion != ""
}
