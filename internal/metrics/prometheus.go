package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	intentsTotal *prometheus.CounterVec
}

// NewPrometheusRecorder registers the intake metrics on reg. Pass
// prometheus.DefaultRegisterer to expose them on the default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "precare_intake_turns_total",
				Help: "Total number of intake messages processed by step and outcome",
			},
			[]string{"step", "outcome"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "precare_intake_turn_duration_seconds",
				Help:    "Time to process one intake message, including the session lock wait",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		intentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "precare_intake_intents_total",
				Help: "Total number of special intents detected",
			},
			[]string{"intent"},
		),
	}
}

// ObserveTurn records one processed message.
func (p *PrometheusRecorder) ObserveTurn(step, outcome string, duration time.Duration) {
	p.turnsTotal.WithLabelValues(step, outcome).Inc()
	p.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncIntent counts a detected special intent.
func (p *PrometheusRecorder) IncIntent(intent string) {
	p.intentsTotal.WithLabelValues(intent).Inc()
}
