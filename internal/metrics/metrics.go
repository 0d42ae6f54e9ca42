// Package metrics exposes prometheus metrics for tool calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "corrode"

// OutcomeOK labels a successful call; failures are labelled with their error code.
const OutcomeOK = "ok"

// Metrics holds the collectors of one server. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// calls counts finished tool calls.
	// Labels: tool, outcome (ok or the error code)
	calls *prometheus.CounterVec

	// duration measures tool call latency.
	// Labels: tool
	duration *prometheus.HistogramVec

	inFlight prometheus.Gauge
}

// New creates the collectors on a private registry, so several servers (or
// tests) never collide on registration.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Tool call latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"tool"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "calls_in_flight",
			Help:      "Tool calls currently executing",
		}),
	}
}

// TrackCall marks the start of a call and returns the function that records
// its end.
func (m *Metrics) TrackCall(tool string) func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func(outcome string) {
		m.inFlight.Dec()
		m.calls.WithLabelValues(tool, outcome).Inc()
		m.duration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
