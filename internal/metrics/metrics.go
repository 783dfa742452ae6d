// Package metrics exposes reconciliation pass and upload counters on a
// private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conciliacion-service/internal/core/conciliacion"
)

// Metric names.
const (
	MetricPassesTotal         = "conciliacion_passes_total"
	MetricPassDurationSeconds = "conciliacion_pass_duration_seconds"
	MetricUploadsTotal        = "conciliacion_uploads_total"
	MetricInstallments        = "conciliacion_installments"
	MetricVerifiedPayments    = "conciliacion_verified_payments"
)

// Upload outcomes.
const (
	UploadAccepted = "accepted"
	UploadRejected = "rejected"
	UploadFailed   = "failed"
)

var _ conciliacion.Recorder = (*Metrics)(nil)

// Metrics holds the service collectors. Safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	passesTotal      *prometheus.CounterVec
	passDuration     prometheus.Histogram
	uploadsTotal     *prometheus.CounterVec
	installments     prometheus.Gauge
	verifiedPayments prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		passesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPassesTotal,
			Help: "Reconciliation passes by outcome (computed, cached, stale).",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPassDurationSeconds,
			Help:    "Duration of computed reconciliation passes.",
			Buckets: prometheus.DefBuckets,
		}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricUploadsTotal,
			Help: "Spreadsheet uploads by source kind and outcome.",
		}, []string{"kind", "result"}),
		installments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricInstallments,
			Help: "Scheduled installments in the current result.",
		}),
		verifiedPayments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricVerifiedPayments,
			Help: "Payment records verified against the bank statement in the current result.",
		}),
	}
	registry.MustRegister(
		m.passesTotal,
		m.passDuration,
		m.uploadsTotal,
		m.installments,
		m.verifiedPayments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePass counts a pass and, for computed passes, records its duration.
func (m *Metrics) ObservePass(result string, d time.Duration) {
	m.passesTotal.WithLabelValues(result).Inc()
	if result == conciliacion.PassComputed {
		m.passDuration.Observe(d.Seconds())
	}
}

// ObserveResult sets the gauges from the latest computed result.
func (m *Metrics) ObserveResult(installments, verifiedPayments int) {
	m.installments.Set(float64(installments))
	m.verifiedPayments.Set(float64(verifiedPayments))
}

// ObserveUpload counts an upload of kind with the given outcome.
func (m *Metrics) ObserveUpload(kind, result string) {
	m.uploadsTotal.WithLabelValues(kind, result).Inc()
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
