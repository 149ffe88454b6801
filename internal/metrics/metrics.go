// Package metrics holds the Prometheus collectors shared by the API, the compute client and the notifiers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "droprealms"

// Recorder owns a dedicated registry. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	controlPlaneCalls   *prometheus.CounterVec
	controlPlaneLatency *prometheus.HistogramVec
	tokenFetches        *prometheus.CounterVec
	notifications       *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"route"},
		),
		controlPlaneCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "controlplane",
				Name:      "calls_total",
				Help:      "Total number of compute control plane calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		controlPlaneLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "controlplane",
				Name:      "call_duration_seconds",
				Help:      "Duration of compute control plane calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"operation"},
		),
		tokenFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "metadata",
				Name:      "token_fetches_total",
				Help:      "Total number of metadata token fetches by result",
			},
			[]string{"result"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "deliveries_total",
				Help:      "Total number of notification deliveries by sink and result",
			},
			[]string{"sink", "result"},
		),
	}

	r.registry.MustRegister(
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.controlPlaneCalls,
		r.controlPlaneLatency,
		r.tokenFetches,
		r.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Registry exposes the underlying registry, mainly for tests
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveHTTPRequest records one served request
func (r *Recorder) ObserveHTTPRequest(route, code string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequestsTotal.WithLabelValues(route, code).Inc()
	r.httpRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveControlPlaneCall records one compute API call
func (r *Recorder) ObserveControlPlaneCall(operation, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.controlPlaneCalls.WithLabelValues(operation, result).Inc()
	r.controlPlaneLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveTokenFetch records one metadata token fetch
func (r *Recorder) ObserveTokenFetch(result string) {
	if r == nil {
		return
	}
	r.tokenFetches.WithLabelValues(result).Inc()
}

// ObserveNotification records one delivery attempt to a sink
func (r *Recorder) ObserveNotification(sink, result string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(sink, result).Inc()
}
