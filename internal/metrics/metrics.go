// Package metrics exposes poll cycle outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/jpalmerr/labwatch/internal/poller"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "labwatch"

// Collector records cycle results on its own registry.
type Collector struct {
	registry *prometheus.Registry

	cyclesTotal    *prometheus.CounterVec
	checksTotal    *prometheus.CounterVec
	probeLatency   *prometheus.HistogramVec
	cycleDuration  prometheus.Histogram
	lastCycle      prometheus.Gauge
	commitFailures prometheus.Counter
}

// New creates a Collector with Go runtime and process collectors registered
// alongside the poll metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		cyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total poll cycles by outcome",
			},
			[]string{"outcome"}, // "ok", "partial", "fault"
		),

		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_checks_total",
				Help:      "Total probe results by stage and result",
			},
			[]string{"probe", "result"}, // result: "passed", "failed"
		),

		probeLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Duration of individual probes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"probe"},
		),

		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of poll cycles including the commit, in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		lastCycle: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_cycle_timestamp_seconds",
				Help:      "Unix time at which the last committed cycle started",
			},
		),

		commitFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commit_failures_total",
				Help:      "Total poll records that failed to commit",
			},
		),
	}
}

// Observe records one cycle. commitErr is the error returned by the cycle.
func (c *Collector) Observe(res poller.Result, commitErr error) {
	for _, stage := range res.Outcome.Stages {
		result := "failed"
		if stage.Passed {
			result = "passed"
		}
		c.checksTotal.WithLabelValues(string(stage.Stage), result).Inc()
		c.probeLatency.WithLabelValues(string(stage.Stage)).Observe(stage.Latency.Seconds())
	}

	c.cyclesTotal.WithLabelValues(res.Outcome.Label()).Inc()
	c.cycleDuration.Observe(res.Duration.Seconds())

	if commitErr != nil {
		c.commitFailures.Inc()
		return
	}
	c.lastCycle.Set(float64(res.Started.Unix()))
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
