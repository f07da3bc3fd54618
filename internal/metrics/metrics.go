// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors with their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	cacheLookups *prometheus.CounterVec
	derivatives  *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	mutations    *prometheus.CounterVec
	requests     *prometheus.CounterVec
	durations    *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oprema",
			Subsystem: "image_cache",
			Name:      "lookups_total",
			Help:      "Image cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		derivatives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oprema",
			Subsystem: "image_cache",
			Name:      "derivatives_total",
			Help:      "Derivative images generated, by size and result.",
		}, []string{"size", "result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oprema",
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Image fetches by result.",
		}, []string{"result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oprema",
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "Item mutations by operation and result.",
		}, []string{"op", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oprema",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oprema",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cacheLookups,
		m.derivatives,
		m.fetches,
		m.mutations,
		m.requests,
		m.durations,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// CacheLookup records an image cache lookup.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Derivative records one derivative generation attempt.
func (m *Metrics) Derivative(size, result string) {
	if m == nil {
		return
	}
	m.derivatives.WithLabelValues(size, result).Inc()
}

// Fetch records an image fetch.
func (m *Metrics) Fetch(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}

// Mutation records a store mutation.
func (m *Metrics) Mutation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.mutations.WithLabelValues(op, result).Inc()
}

// Request records a served HTTP request.
func (m *Metrics) Request(method, code string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, code).Inc()
	m.durations.WithLabelValues(method).Observe(seconds)
}
