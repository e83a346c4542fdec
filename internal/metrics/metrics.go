// Package metrics exposes the Prometheus collectors for the trust ledger:
// one package-level Registry, vectors keyed by a small closed label set,
// an HTTP InstrumentHandler middleware, and core.ObservationHooks
// factories for wiring per-component instrumentation without a hard
// dependency from the pipeline/dispatcher packages back onto Prometheus
// types.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garl-network/trust-ledger/internal/core"
)

var (
	// Registry holds every trust-ledger-specific collector.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trust_ledger",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trust_ledger",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trust_ledger",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	tracesSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trust_ledger",
		Subsystem: "pipeline",
		Name:      "traces_submitted_total",
		Help:      "Total number of traces accepted by the submission pipeline.",
	}, []string{"category", "status"})

	anomaliesDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trust_ledger",
		Subsystem: "reputation",
		Name:      "anomalies_detected_total",
		Help:      "Total number of anomaly flags raised by the reputation engine.",
	}, []string{"type", "severity"})

	webhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trust_ledger",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Total number of webhook delivery attempts, by final outcome.",
	}, []string{"outcome"})

	webhookQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trust_ledger",
		Subsystem: "webhook",
		Name:      "queue_depth",
		Help:      "Current number of deliveries waiting in the dispatcher queue.",
	})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		tracesSubmitted,
		anomaliesDetected,
		webhookDeliveries,
		webhookQueueDepth,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler serves the registered collectors for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with request-count and latency collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordTraceSubmission records one accepted trace.
func RecordTraceSubmission(category, status string) {
	tracesSubmitted.WithLabelValues(category, status).Inc()
}

// RecordAnomaly records one anomaly flag raised by the reputation engine.
func RecordAnomaly(anomalyType, severity string) {
	anomaliesDetected.WithLabelValues(anomalyType, severity).Inc()
}

// RecordWebhookDelivery records the final outcome of one delivery attempt
// chain: "delivered" or "dropped".
func RecordWebhookDelivery(outcome string) {
	webhookDeliveries.WithLabelValues(outcome).Inc()
}

// SetWebhookQueueDepth reports the dispatcher's current queue occupancy.
func SetWebhookQueueDepth(depth int) {
	webhookQueueDepth.Set(float64(depth))
}

// PipelineHooks builds observation hooks for the trace submission pipeline.
func PipelineHooks() core.ObservationHooks {
	return observationHooks("trust_ledger", "pipeline", "submit")
}

// WebhookDispatchHooks builds observation hooks for delivery attempts.
func WebhookDispatchHooks() core.ObservationHooks {
	return observationHooks("trust_ledger", "webhook", "deliver")
}

func observationHooks(namespace, subsystem, name string) core.ObservationHooks {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name + "_in_flight",
		Help:      "Current operations in flight for " + subsystem,
	}, []string{"resource"})
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name + "_duration_seconds",
		Help:      "Duration of operations for " + subsystem,
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"resource", "status"})
	Registry.MustRegister(gauge, hist)

	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			gauge.WithLabelValues(metaLabel(meta)).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if op, ok := meta["operation"]; ok && op != "" {
		return op
	}
	if id, ok := meta["webhook_id"]; ok && id != "" {
		return id
	}
	return "unknown"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters so /agents/<uuid> and
// /agents/<uuid>/history don't each become their own label cardinality.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	switch parts[0] {
	case "agents", "endorsements", "webhooks", "badge":
		if len(parts) == 2 {
			return "/" + parts[0] + "/:id"
		}
		return "/" + parts[0] + "/:id/" + strings.Join(parts[2:], "/")
	default:
		return "/" + parts[0]
	}
}
