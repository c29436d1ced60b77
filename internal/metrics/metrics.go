// Package metrics exposes detector and hunt counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rbright/shinyhunt/internal/detector"
)

const namespace = "shinyhunt"

// Metrics holds every shinyhunt collector on its own registry.
// It satisfies detector.Observer; observation methods never block.
type Metrics struct {
	registry *prometheus.Registry

	chunks         *prometheus.CounterVec
	detections     *prometheus.CounterVec
	peak           *prometheus.GaugeVec
	callbackErrors prometheus.Counter
	encounters     prometheus.Counter
	waits          *prometheus.HistogramVec
}

// New registers the shinyhunt collectors plus Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_total",
				Help:      "Audio blocks scored per cue",
			},
			[]string{"cue"},
		),
		detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detections_total",
				Help:      "Blocks whose correlation peak exceeded the cue threshold",
			},
			[]string{"cue"},
		),
		peak: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "peak_score",
				Help:      "Most recent correlation peak per cue",
			},
			[]string{"cue"},
		),
		callbackErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_errors_total",
			Help:      "Audio blocks skipped because the callback failed",
		}),
		encounters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encounters_total",
			Help:      "Encounters observed by the hunt loop",
		}),
		waits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "wait_seconds",
				Help:      "Time spent blocked waiting for a cue",
				Buckets:   []float64{.1, .25, .5, 1, 2, 5, 8, 10, 15, 30},
			},
			[]string{"cue", "outcome"}, // outcome: hit, timeout
		),
	}

	m.registry.MustRegister(
		m.chunks,
		m.detections,
		m.peak,
		m.callbackErrors,
		m.encounters,
		m.waits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveChunk(cue detector.Cue, peak float64, detected bool) {
	m.chunks.WithLabelValues(string(cue)).Inc()
	m.peak.WithLabelValues(string(cue)).Set(peak)
	if detected {
		m.detections.WithLabelValues(string(cue)).Inc()
	}
}

func (m *Metrics) ObserveCallbackError() {
	m.callbackErrors.Inc()
}

// ObserveEncounter counts one encounter.
func (m *Metrics) ObserveEncounter() {
	m.encounters.Inc()
}

// ObserveWait records how long a cue wait blocked and whether it hit.
func (m *Metrics) ObserveWait(cue detector.Cue, hit bool, elapsed time.Duration) {
	outcome := "timeout"
	if hit {
		outcome = "hit"
	}
	m.waits.WithLabelValues(string(cue), outcome).Observe(elapsed.Seconds())
}
