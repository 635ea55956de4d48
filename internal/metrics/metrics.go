// Package metrics holds the Prometheus collectors shared by the API and the
// workers.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homeledger"

// Operation outcomes used as label values.
const (
	OutcomeOK       = "ok"
	OutcomeDeclined = "declined"
	OutcomeError    = "error"
)

// Metrics groups every collector of one process. Each instance owns its own
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	RateLimited        prometheus.Counter
	LedgerOperations   *prometheus.CounterVec
	BillsMarkedOverdue prometheus.Counter
	EventsPublished    *prometheus.CounterVec
	RowsExported       *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		LedgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		BillsMarkedOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_marked_overdue_total",
			Help:      "Bills moved from pending to overdue by the sweep.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_published_total",
			Help:      "Ledger events handed to the broker.",
		}, []string{"kind", "outcome"}),
		RowsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rows_exported_total",
			Help:      "Ledger rows exported to the spreadsheet.",
		}, []string{"outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by namespace and result.",
		}, []string{"cache", "result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.RateLimited,
		m.LedgerOperations,
		m.BillsMarkedOverdue,
		m.EventsPublished,
		m.RowsExported,
		m.CacheLookups,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP records one finished request. A nil receiver is a no-op so
// callers can run without metrics.
func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// ObserveLedgerOp counts a ledger operation. declined marks business
// rejections (overshoot, already paid) as opposed to failures.
func (m *Metrics) ObserveLedgerOp(op string, err error, declined bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err != nil && declined:
		outcome = OutcomeDeclined
	case err != nil:
		outcome = OutcomeError
	}
	m.LedgerOperations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveOverdue(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BillsMarkedOverdue.Add(float64(n))
}

func (m *Metrics) ObservePublish(kind string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.EventsPublished.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveExport(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.RowsExported.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCache(cacheName string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cacheName, result).Inc()
}
