// Package metrics wires Prometheus counters, histograms, and gauges for the
// extraction pipeline, plus liveness/readiness probes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates every instrument the pipeline emits. A nil *Metrics is
// safe to call; all methods no-op.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	WebhookDelivered prometheus.Counter
	WebhookFailed    prometheus.Counter
	JobsCompleted    prometheus.Counter
	JobsFailed       prometheus.Counter
	QueueOverflow    prometheus.Counter

	FetchDuration prometheus.Histogram
	ToolDuration  *prometheus.HistogramVec

	InflightFetches prometheus.Gauge
	QueueDepth      *prometheus.GaugeVec
	OpenBreakers    prometheus.Gauge
}

// New creates and registers all instruments on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venator_requests_total",
			Help: "Tool invocations by tool name",
		}, []string{"tool"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venator_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "venator_cache_hits_total",
			Help: "Cache lookups served from either tier",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "venator_cache_misses_total",
			Help: "Cache lookups that fell through to a fetch",
		}),
		WebhookDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "venator_webhook_delivered_total",
			Help: "Webhook events delivered with a 2xx",
		}),
		WebhookFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "venator_webhook_failed_total",
			Help: "Webhook events dead-lettered after retry exhaustion",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "venator_jobs_completed_total",
			Help: "Async jobs that reached completed",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "venator_jobs_failed_total",
			Help: "Async jobs that reached failed",
		}),
		QueueOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "venator_queue_overflow_total",
			Help: "Events dropped from the bounded webhook queue",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "venator_fetch_duration_seconds",
			Help:    "Wall time of completed fetches",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "venator_tool_duration_seconds",
			Help:    "Wall time of tool invocations",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"tool"}),
		InflightFetches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "venator_inflight_fetches",
			Help: "Fetches currently holding a global slot",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "venator_queue_depth",
			Help: "Depth of bounded queues",
		}, []string{"queue"}),
		OpenBreakers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "venator_open_breakers",
			Help: "Hosts with an open circuit breaker",
		}),
	}

	registry.MustRegister(
		m.RequestsTotal, m.ErrorsTotal,
		m.CacheHits, m.CacheMisses,
		m.WebhookDelivered, m.WebhookFailed,
		m.JobsCompleted, m.JobsFailed, m.QueueOverflow,
		m.FetchDuration, m.ToolDuration,
		m.InflightFetches, m.QueueDepth, m.OpenBreakers,
	)
	return m
}

// Registry exposes the private registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordError bumps errors_total for the kind, nil-safe.
func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordFetch observes one completed fetch, nil-safe.
func (m *Metrics) RecordFetch(seconds float64) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(seconds)
}

// RecordCache bumps the hit or miss counter, nil-safe.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// SetInflight adjusts the in-flight fetch gauge by delta, nil-safe.
func (m *Metrics) SetInflight(delta float64) {
	if m == nil {
		return
	}
	m.InflightFetches.Add(delta)
}

// SetOpenBreakers sets the open-breaker gauge, nil-safe.
func (m *Metrics) SetOpenBreakers(n float64) {
	if m == nil {
		return
	}
	m.OpenBreakers.Set(n)
}

// RecordJob bumps the completed or failed job counter, nil-safe.
func (m *Metrics) RecordJob(completed bool) {
	if m == nil {
		return
	}
	if completed {
		m.JobsCompleted.Inc()
	} else {
		m.JobsFailed.Inc()
	}
}

// RecordWebhook bumps the delivered or dead-lettered counter, nil-safe.
func (m *Metrics) RecordWebhook(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.WebhookDelivered.Inc()
	} else {
		m.WebhookFailed.Inc()
	}
}

// RecordOverflow bumps the queue-overflow counter, nil-safe.
func (m *Metrics) RecordOverflow() {
	if m == nil {
		return
	}
	m.QueueOverflow.Inc()
}

// RecordTool observes one tool invocation, nil-safe.
func (m *Metrics) RecordTool(tool string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(tool).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(seconds)
}

// SetQueueDepth sets the named queue depth gauge, nil-safe.
func (m *Metrics) SetQueueDepth(queue string, depth float64) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(depth)
}
