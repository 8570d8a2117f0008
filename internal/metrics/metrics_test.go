package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/labwatch/internal/poller"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func result(outcome poller.Outcome) poller.Result {
	return poller.Result{
		Outcome:  outcome,
		Started:  time.Unix(1705312800, 0),
		Duration: 250 * time.Millisecond,
	}
}

func TestCollector_Observe(t *testing.T) {
	c := New()

	c.Observe(result(poller.Outcome{Stages: []poller.StageResult{
		{Stage: poller.StageHealth, Passed: true, Latency: 10 * time.Millisecond},
		{Stage: poller.StageReadiness, Passed: false, Latency: 20 * time.Millisecond},
		{Stage: poller.StageMetadata, Passed: true, Latency: 30 * time.Millisecond},
	}}), nil)

	c.Observe(result(poller.Outcome{
		Stages: []poller.StageResult{{Stage: poller.StageHealth, Passed: true}},
		Fault:  errors.New("connection reset"),
	}), nil)

	tests := []struct {
		name   string
		labels []string
		want   float64
	}{
		{name: "health passed", labels: []string{"health", "passed"}, want: 2},
		{name: "readiness failed", labels: []string{"readiness", "failed"}, want: 1},
		{name: "readiness passed", labels: []string{"readiness", "passed"}, want: 0},
		{name: "metadata passed", labels: []string{"metadata", "passed"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testutil.ToFloat64(c.checksTotal.WithLabelValues(tt.labels...))
			if got != tt.want {
				t.Errorf("probe_checks_total%v = %v, want %v", tt.labels, got, tt.want)
			}
		})
	}

	if got := testutil.ToFloat64(c.cyclesTotal.WithLabelValues("partial")); got != 1 {
		t.Errorf("cycles_total{partial} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.cyclesTotal.WithLabelValues("fault")); got != 1 {
		t.Errorf("cycles_total{fault} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.lastCycle); got != 1705312800 {
		t.Errorf("last_cycle_timestamp_seconds = %v, want 1705312800", got)
	}
}

func TestCollector_CommitFailure(t *testing.T) {
	c := New()

	c.Observe(result(poller.Outcome{}), errors.New("database is locked"))

	if got := testutil.ToFloat64(c.commitFailures); got != 1 {
		t.Errorf("commit_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.lastCycle); got != 0 {
		t.Errorf("last_cycle_timestamp_seconds = %v, want 0 after failed commit", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.Observe(result(poller.Outcome{Stages: []poller.StageResult{
		{Stage: poller.StageHealth, Passed: true},
		{Stage: poller.StageReadiness, Passed: true},
		{Stage: poller.StageMetadata, Passed: true},
	}}), nil)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`labwatch_cycles_total{outcome="ok"} 1`,
		`labwatch_probe_checks_total{probe="metadata",result="passed"} 1`,
		"labwatch_cycle_duration_seconds_count 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
