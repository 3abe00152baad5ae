package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gamevault"

// Metrics groups the collectors for catalog traffic, resolution outcomes,
// webhook intake and reconcile passes.
type Metrics struct {
	registry *prometheus.Registry

	catalogRequests  *prometheus.CounterVec
	catalogLatency   *prometheus.HistogramVec
	batchPages       *prometheus.CounterVec
	resolveOutcomes  *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	reconcileChanges *prometheus.CounterVec
	reconcilePasses  *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.catalogRequests = counterVec(m.registry, "catalog", "requests_total",
		"Catalog HTTP requests by endpoint and outcome.", "endpoint", "outcome")
	m.catalogLatency = histogramVec(m.registry, "catalog", "request_duration_seconds",
		"Catalog HTTP request latency.", prometheus.DefBuckets, "endpoint")
	m.batchPages = counterVec(m.registry, "catalog", "batch_pages_total",
		"Batch client pages by final outcome.", "outcome")
	m.resolveOutcomes = counterVec(m.registry, "resolver", "outcomes_total",
		"Resolution attempts by resulting state.", "state", "source")
	m.webhookEvents = counterVec(m.registry, "webhooks", "events_total",
		"Webhook events by terminal stage and reason.", "stage", "reason")
	m.reconcileChanges = counterVec(m.registry, "reconcile", "transitions_total",
		"Reconcile transitions by kind.", "transition")
	m.reconcilePasses = counterVec(m.registry, "reconcile", "passes_total",
		"Reconcile passes by result.", "result")

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func counterVec(reg *prometheus.Registry, subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	reg.MustRegister(c)
	return c
}

func histogramVec(reg *prometheus.Registry, subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	reg.MustRegister(h)
	return h
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CatalogRequest records one outbound catalog call.
func (m *Metrics) CatalogRequest(endpoint, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.catalogRequests.WithLabelValues(endpoint, outcome).Inc()
	m.catalogLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// BatchPage records the final outcome of one batch page after retries.
func (m *Metrics) BatchPage(outcome string) {
	if m == nil {
		return
	}
	m.batchPages.WithLabelValues(outcome).Inc()
}

// ResolveOutcome records the state a resolution attempt produced.
func (m *Metrics) ResolveOutcome(state, source string) {
	if m == nil {
		return
	}
	m.resolveOutcomes.WithLabelValues(state, source).Inc()
}

// WebhookEvent records where a webhook event stopped in the pipeline.
func (m *Metrics) WebhookEvent(stage, reason string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(stage, reason).Inc()
}

// ReconcileTransition adds n transitions of the given kind.
func (m *Metrics) ReconcileTransition(transition string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconcileChanges.WithLabelValues(transition).Add(float64(n))
}

// ReconcilePass records one completed or aborted pass.
func (m *Metrics) ReconcilePass(result string) {
	if m == nil {
		return
	}
	m.reconcilePasses.WithLabelValues(result).Inc()
}
