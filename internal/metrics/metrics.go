package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/segyhp/loan-servicing/internal/domain"
)

// Metrics exposes Prometheus collectors for reminder cycles and notification sends.
type Metrics struct {
	registry      *prometheus.Registry
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	notifications *prometheus.CounterVec
	schedulerUp   prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loan_reminder_cycles_total",
		Help: "Reminder scheduler cycles partitioned by outcome.",
	}, []string{"status"})
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "loan_reminder_cycle_duration_seconds",
		Help:    "Duration in seconds of reminder scheduler cycles.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loan_reminder_notifications_total",
		Help: "Reminder send attempts partitioned by channel and status.",
	}, []string{"channel", "status"})
	schedulerUp := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loan_reminder_scheduler_running",
		Help: "1 while the reminder scheduler has an active trigger.",
	})
	registry.MustRegister(cycles, cycleDuration, notifications, schedulerUp)
	return &Metrics{
		registry:      registry,
		cycles:        cycles,
		cycleDuration: cycleDuration,
		notifications: notifications,
		schedulerUp:   schedulerUp,
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCycle records the outcome of one scheduler cycle.
func (m *Metrics) ObserveCycle(summary *domain.CycleSummary) {
	if m == nil || summary == nil {
		return
	}
	status := "success"
	if summary.Error != "" {
		status = "failure"
	}
	m.cycles.WithLabelValues(status).Inc()
	m.cycleDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
}

// ObserveNotification records one channel send attempt.
func (m *Metrics) ObserveNotification(channel domain.Channel, success bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !success {
		status = "failed"
	}
	m.notifications.WithLabelValues(string(channel), status).Inc()
}

// SetSchedulerRunning flips the scheduler gauge.
func (m *Metrics) SetSchedulerRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.schedulerUp.Set(1)
	} else {
		m.schedulerUp.Set(0)
	}
}
