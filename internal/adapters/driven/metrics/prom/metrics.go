// Package prom exports feed scheduling and backpressure events as
// Prometheus metrics.
package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
)

const namespace = "serchafeed"

// Ensure Metrics implements the interface.
var _ driven.FeedMetrics = (*Metrics)(nil)

// Metrics holds all feed Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Work queue metrics
	WorkSubmittedTotal   *prometheus.CounterVec
	WorkFinishedTotal    *prometheus.CounterVec
	WorkDuration         *prometheus.HistogramVec
	WorkInterruptedTotal *prometheus.CounterVec
	WorkersBusyGauge     prometheus.Gauge

	// Backpressure metrics
	BackoffSleepsTotal  *prometheus.CounterVec
	BackoffSleepSeconds *prometheus.CounterVec
	DocumentsFedTotal   *prometheus.CounterVec

	// Scheduler metrics
	TicksSkippedTotal *prometheus.CounterVec
}

// New registers the feed metrics on a fresh registry, alongside the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the feed metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		WorkSubmittedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_submitted_total",
			Help:      "Traversal work items queued",
		}, []string{"connector"}),
		WorkFinishedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_finished_total",
			Help:      "Traversal work items by terminal state and error kind",
		}, []string{"connector", "state", "kind"}),
		WorkDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "work_duration_seconds",
			Help:      "Running time of traversal work items",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 600},
		}, []string{"connector"}),
		WorkInterruptedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_interrupted_total",
			Help:      "Watchdog interrupts of overrunning work items",
		}, []string{"connector"}),
		WorkersBusyGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Work items currently running",
		}),
		BackoffSleepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backoff_sleeps_total",
			Help:      "Backpressure sleeps by sink status",
		}, []string{"connector", "status"}),
		BackoffSleepSeconds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backoff_sleep_seconds_total",
			Help:      "Time spent sleeping on backpressure",
		}, []string{"connector", "status"}),
		DocumentsFedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_fed_total",
			Help:      "Documents handed to the feed sink",
		}, []string{"connector"}),
		TicksSkippedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Connectors skipped on a scheduling tick by reason",
		}, []string{"connector", "reason"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Forget drops every series labelled with a removed connector.
func (m *Metrics) Forget(connectorName string) {
	labels := prometheus.Labels{"connector": connectorName}
	m.WorkSubmittedTotal.DeletePartialMatch(labels)
	m.WorkFinishedTotal.DeletePartialMatch(labels)
	m.WorkDuration.DeletePartialMatch(labels)
	m.WorkInterruptedTotal.DeletePartialMatch(labels)
	m.BackoffSleepsTotal.DeletePartialMatch(labels)
	m.BackoffSleepSeconds.DeletePartialMatch(labels)
	m.DocumentsFedTotal.DeletePartialMatch(labels)
	m.TicksSkippedTotal.DeletePartialMatch(labels)
}

// WorkSubmitted implements driven.FeedMetrics.
func (m *Metrics) WorkSubmitted(connectorName string) {
	m.WorkSubmittedTotal.WithLabelValues(connectorName).Inc()
}

// WorkFinished implements driven.FeedMetrics.
func (m *Metrics) WorkFinished(connectorName string, state domain.WorkItemState, kind domain.ErrorKind, elapsed time.Duration) {
	m.WorkFinishedTotal.WithLabelValues(connectorName, state.String(), kind.String()).Inc()
	m.WorkDuration.WithLabelValues(connectorName).Observe(elapsed.Seconds())
}

// WorkInterrupted implements driven.FeedMetrics.
func (m *Metrics) WorkInterrupted(connectorName string) {
	m.WorkInterruptedTotal.WithLabelValues(connectorName).Inc()
}

// WorkersBusy implements driven.FeedMetrics.
func (m *Metrics) WorkersBusy(n int) {
	m.WorkersBusyGauge.Set(float64(n))
}

// BackoffSlept implements driven.FeedMetrics.
func (m *Metrics) BackoffSlept(connectorName string, status domain.PusherStatus, d time.Duration) {
	m.BackoffSleepsTotal.WithLabelValues(connectorName, status.String()).Inc()
	m.BackoffSleepSeconds.WithLabelValues(connectorName, status.String()).Add(d.Seconds())
}

// DocumentsFed implements driven.FeedMetrics.
func (m *Metrics) DocumentsFed(connectorName string, n int) {
	m.DocumentsFedTotal.WithLabelValues(connectorName).Add(float64(n))
}

// TickSkipped implements driven.FeedMetrics.
func (m *Metrics) TickSkipped(connectorName string, reason domain.SkipReason) {
	m.TicksSkippedTotal.WithLabelValues(connectorName, string(reason)).Inc()
}
