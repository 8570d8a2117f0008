package poller

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Reporter receives human-readable progress for a cycle.
type Reporter interface {
	CycleStarted(at time.Time, domain string)
	StageStarted(stage Stage)
	StagePassed(stage Stage, detail string)
	StageFailed(stage Stage, cause string)
	Fault(err error)
}

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) CycleStarted(time.Time, string) {}
func (NopReporter) StageStarted(Stage)             {}
func (NopReporter) StagePassed(Stage, string)      {}
func (NopReporter) StageFailed(Stage, string)      {}
func (NopReporter) Fault(error)                    {}

// stageTitles are the progress lines printed when a stage starts.
var stageTitles = map[Stage]string{
	StageHealth:    "Performing health check...",
	StageReadiness: "Performing readiness check...",
	StageMetadata:  "Fetching metadata...",
}

// TextReporter writes progress as indented text lines.
//
// Output looks like:
//
//	[ 2024-01-15T10:00:00Z ] Polling GitLab instance at gitlab.example.com...
//	  Performing health check...
//	    Passed: "GitLab OK"
//	  Performing readiness check...
//	    Failed: {"status":"failed"}
//	  Fetching metadata...
//	    Passed: {"version":"16.6.1-ee"}
type TextReporter struct {
	mu     sync.Mutex
	w      io.Writer
	pass   *color.Color
	fail   *color.Color
	fault  *color.Color
	header *color.Color
}

// NewTextReporter creates a [TextReporter] writing to w. Colour codes are
// emitted only when colorize is true.
func NewTextReporter(w io.Writer, colorize bool) *TextReporter {
	r := &TextReporter{
		w:      w,
		pass:   color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
		fault:  color.New(color.FgHiRed, color.Bold),
		header: color.New(color.Bold),
	}
	for _, c := range []*color.Color{r.pass, r.fail, r.fault, r.header} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *TextReporter) CycleStarted(at time.Time, domain string) {
	r.printf(r.header, "[ %s ] Polling GitLab instance at %s...\n", at.Format(time.RFC3339), domain)
}

func (r *TextReporter) StageStarted(stage Stage) {
	title, ok := stageTitles[stage]
	if !ok {
		title = fmt.Sprintf("Performing %s check...", stage)
	}
	r.printf(nil, "  %s\n", title)
}

func (r *TextReporter) StagePassed(_ Stage, detail string) {
	r.printf(r.pass, "    Passed: %s\n", detail)
}

func (r *TextReporter) StageFailed(_ Stage, cause string) {
	r.printf(r.fail, "    Failed: %s\n", cause)
}

func (r *TextReporter) Fault(err error) {
	r.printf(r.fault, "  Critical failure: %v\n", err)
}

func (r *TextReporter) printf(c *color.Color, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c == nil {
		fmt.Fprintf(r.w, format, args...)
		return
	}
	c.Fprintf(r.w, format, args...)
}
