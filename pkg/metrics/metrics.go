// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service collectors around one registry.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests          *prometheus.CounterVec
	HTTPDuration          *prometheus.HistogramVec
	ContributionsVerified prometheus.Counter
	AmountVerified        prometheus.Counter
	ContributionsRejected prometheus.Counter
	LedgerRepairs         prometheus.Counter
	OutboxPublished       prometheus.Counter
	OutboxFailed          prometheus.Counter
	MessagesSent          prometheus.Counter
	AIFallbacks           *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundlink",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fundlink",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		ContributionsVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundlink",
			Name:      "contributions_verified_total",
			Help:      "Contributions moved to verified and applied to the ledger.",
		}),
		AmountVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundlink",
			Name:      "contribution_amount_verified_total",
			Help:      "Sum of verified contribution amounts.",
		}),
		ContributionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundlink",
			Name:      "contributions_rejected_total",
			Help:      "Contributions moved to rejected.",
		}),
		LedgerRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundlink",
			Name:      "ledger_repairs_total",
			Help:      "Campaigns whose counters were repaired by reconciliation.",
		}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundlink",
			Name:      "outbox_published_total",
			Help:      "Outbox events published to the broker.",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundlink",
			Name:      "outbox_failed_total",
			Help:      "Outbox publish attempts that failed and were rescheduled.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundlink",
			Name:      "messages_sent_total",
			Help:      "Messages stored by the relay.",
		}),
		AIFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundlink",
			Name:      "assistant_fallbacks_total",
			Help:      "Assistant responses served from the built-in fallback payload.",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.ContributionsVerified,
		m.AmountVerified,
		m.ContributionsRejected,
		m.LedgerRepairs,
		m.OutboxPublished,
		m.OutboxFailed,
		m.MessagesSent,
		m.AIFallbacks,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Middleware records request counts and latencies by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
