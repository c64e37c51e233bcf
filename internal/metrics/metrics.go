// Package metrics exposes the Prometheus collectors of the parking lifecycle core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parking"

// Result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
	ResultDropped  = "dropped"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	SweepRuns     prometheus.Counter
	SweepOutcomes *prometheus.CounterVec
	SweepDuration prometheus.Histogram
	Notifications *prometheus.CounterVec
	Spaces        *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New builds the collectors and registers them with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Space lifecycle transitions by kind and result",
			},
			[]string{"kind", "result"},
		),
		SweepRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "runs_total",
				Help:      "Completed reservation expiry sweeps",
			},
		),
		SweepOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "reservations_total",
				Help:      "Reservations handled by the expiry sweep by outcome (expired, skipped, failed)",
			},
			[]string{"outcome"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "duration_seconds",
				Help:      "Duration of one expiry sweep",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications handed to the sink by result",
			},
			[]string{"result"},
		),
		Spaces: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "spaces",
				Help:      "Spaces per status at the last refresh",
			},
			[]string{"status"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.Transitions, m.SweepRuns, m.SweepOutcomes, m.SweepDuration, m.Notifications, m.Spaces)
	return m
}

func (m *Metrics) ObserveTransition(kind, result string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveSweep(expired, skipped, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.SweepRuns.Inc()
	m.SweepOutcomes.WithLabelValues("expired").Add(float64(expired))
	m.SweepOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	m.SweepOutcomes.WithLabelValues("failed").Add(float64(failed))
	m.SweepDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
}

// SetSpaces replaces the per-status gauge values.
func (m *Metrics) SetSpaces(byStatus map[string]int) {
	if m == nil {
		return
	}
	m.Spaces.Reset()
	for status, n := range byStatus {
		m.Spaces.WithLabelValues(status).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
