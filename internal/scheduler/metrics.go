package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the scheduler's state to Prometheus, namespaced
// "verifier_". inFlight tracks live concurrency against MaxInProgress;
// the outcome counters and build-stage histogram are the two things an
// operator watches to tell a quiet queue from a stuck one.
type Metrics struct {
	inFlight     prometheus.Gauge
	outcomes     *prometheus.CounterVec
	buildLatency prometheus.Histogram
}

// NewMetrics registers the scheduler's metrics with registry (use
// prometheus.DefaultRegisterer for the global registry).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "verifier",
			Name:      "jobs_in_flight",
			Help:      "Number of verification jobs currently InProgress",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verifier",
			Name:      "jobs_total",
			Help:      "Cumulative verification jobs by terminal outcome",
		}, []string{"outcome"}), // outcome: verified, failed, demoted
		buildLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "verifier",
			Name:      "build_stage_duration_seconds",
			Help:      "Wall time spent in the container build stage per job",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}
}

func (m *Metrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

func (m *Metrics) ObserveBuildDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.buildLatency.Observe(d.Seconds())
}

func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}
