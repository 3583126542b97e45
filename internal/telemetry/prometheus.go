// Package telemetry provides the metric recorders and the alerter used by the
// billing webhook service.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"petcare/internal/types"
)

// PrometheusRecorder keeps counters on a private registry and exposes them
// for scraping at /metrics.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	linkage      *prometheus.CounterVec
	writeFails   *prometheus.CounterVec
	secondary    *prometheus.CounterVec
	verification *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// NewPrometheusRecorder registers all collectors under namespace. Go runtime
// and process collectors are included.
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	r := &PrometheusRecorder{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook events handled, by type and outcome.",
		}, []string{"event_type", "outcome"}),
		linkage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_missing_linkage_total",
			Help:      "Events skipped because user, package or subscription linkage was missing.",
		}, []string{"event_type", "reason"}),
		writeFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_write_failures_total",
			Help:      "Primary writes that exhausted every fallback.",
		}, []string{"entity"}),
		secondary: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secondary_effect_failures_total",
			Help:      "Best-effort side effects that failed.",
		}, []string{"effect"}),
		verification: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_changes_total",
			Help:      "Specialist verification status writes.",
		}, []string{"status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint", "status"}),
	}
	reg.MustRegister(
		r.events, r.linkage, r.writeFails, r.secondary, r.verification, r.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *PrometheusRecorder) Registry() *prometheus.Registry { return r.registry }

func (r *PrometheusRecorder) RecordWebhookEvent(_ context.Context, eventType, outcome string) {
	r.events.WithLabelValues(eventType, outcome).Inc()
}

func (r *PrometheusRecorder) RecordMissingLinkage(_ context.Context, eventType, reason string) {
	r.linkage.WithLabelValues(eventType, reason).Inc()
}

func (r *PrometheusRecorder) RecordWriteFailure(_ context.Context, entity string) {
	r.writeFails.WithLabelValues(entity).Inc()
}

func (r *PrometheusRecorder) RecordSecondaryFailure(_ context.Context, effect string) {
	r.secondary.WithLabelValues(effect).Inc()
}

func (r *PrometheusRecorder) RecordVerificationChanged(_ context.Context, status types.VerificationStatus) {
	r.verification.WithLabelValues(string(status)).Inc()
}

// RecordRequest observes one HTTP request.
func (r *PrometheusRecorder) RecordRequest(method, endpoint, status string, duration time.Duration) {
	r.latency.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}
