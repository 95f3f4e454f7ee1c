package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Metrics records store activity in Prometheus. It implements libreflux.Recorder.
type Metrics struct {
	actionsDispatched *prometheus.CounterVec
	actionsProcessed  *prometheus.CounterVec
	actionDuration    *prometheus.HistogramVec
	queueDepth        prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the collectors under namespace on a fresh registry
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		actionsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_dispatched_total",
				Help:      "Total number of actions dispatched",
			},
			[]string{"type"},
		),
		actionsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_processed_total",
				Help:      "Total number of actions processed",
			},
			[]string{"type", "status"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Time spent in reducers and effects per action",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Number of actions waiting to be processed",
			},
		),
	}

	m.registry.MustRegister(
		m.actionsDispatched,
		m.actionsProcessed,
		m.actionDuration,
		m.queueDepth,
	)

	return m
}

// ActionDispatched counts a queued action
func (m *Metrics) ActionDispatched(actionType string) {
	m.actionsDispatched.WithLabelValues(actionType).Inc()
}

// ActionProcessed counts a processed action and observes its duration
func (m *Metrics) ActionProcessed(actionType string, duration time.Duration, err error) {
	status := statusOK
	if err != nil {
		status = statusError
	}
	m.actionsProcessed.WithLabelValues(actionType, status).Inc()
	m.actionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

// QueueDepth sets the current queue length
func (m *Metrics) QueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// Registry returns the Prometheus registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
