// Package poller runs poll cycles against a GitLab instance.
//
// This package is internal to labwatch. A cycle probes health, readiness and
// metadata in that fixed order and always commits exactly one record,
// whatever the probes returned.
//
// The main components are:
//
//   - [Cycle]: runs the probes of one cycle and commits the record
//   - [BuildRecord]: pure aggregation of an [Outcome] into a record
//   - [FormatFault]: renders a fault and its causal chain
//   - [Scheduler]: single-shot or continuous repetition of cycles
//   - [TextReporter]: human-readable progress lines
//
// Probe failures (the instance answered, but not acceptably) fail a stage
// and the cycle continues. Any other error is a fault: the remaining stages
// are skipped and the fault trace is stored on the record.
package poller
