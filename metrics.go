package framegraph

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Graph updates while executing.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	setups   *prometheus.CounterVec
	executes *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	frames   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is useful for tests that read the
// collectors directly.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		setups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framegraph_node_setup_total",
				Help: "Number of completed node setups.",
			},
			[]string{"node"},
		),
		executes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framegraph_node_execute_total",
				Help: "Number of completed node executions.",
			},
			[]string{"node"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framegraph_node_failures_total",
				Help: "Number of node failures by lifecycle phase.",
			},
			[]string{"node", "phase"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "framegraph_node_execute_seconds",
				Help:    "Time spent recording a node's commands.",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
			[]string{"node"},
		),
		frames: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "framegraph_frames_total",
				Help: "Number of fully executed frames.",
			},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.setups, m.executes, m.failures, m.duration, m.frames} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("framegraph: register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) setupDone(node string) {
	if m == nil {
		return
	}
	m.setups.WithLabelValues(node).Inc()
}

func (m *Metrics) executeDone(node string, d time.Duration) {
	if m == nil {
		return
	}
	m.executes.WithLabelValues(node).Inc()
	m.duration.WithLabelValues(node).Observe(d.Seconds())
}

func (m *Metrics) failed(node string, phase Phase) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(node, string(phase)).Inc()
}

func (m *Metrics) frameDone() {
	if m == nil {
		return
	}
	m.frames.Inc()
}
