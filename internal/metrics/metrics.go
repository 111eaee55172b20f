package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "enginectl"

// Recorder holds the collectors. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	actions  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	alive    prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg creates
// working but unregistered collectors. Panics if registration fails, e.g.
// when two Recorders share one registry.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		actions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_actions_total",
				Help:      "Storage engine start/stop actions by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lifecycle_action_duration_seconds",
				Help:      "Wall time of storage engine start/stop actions.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"action"},
		),
		alive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "storage_alive",
				Help:      "1 if the storage engine is believed to be running, 0 otherwise.",
			},
		),
	}
}

// ObserveAction counts one finished action.
func (r *Recorder) ObserveAction(action, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.actions.WithLabelValues(action, outcome).Inc()
	r.duration.WithLabelValues(action).Observe(took.Seconds())
}

// SetAlive mirrors the liveness flag.
func (r *Recorder) SetAlive(alive bool) {
	if r == nil {
		return
	}
	if alive {
		r.alive.Set(1)
		return
	}
	r.alive.Set(0)
}
