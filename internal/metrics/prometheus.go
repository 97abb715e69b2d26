package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ratelimiter"

type PrometheusCollector struct {
	rateLimitDecisions *prometheus.CounterVec
	rateLimitDuration  *prometheus.HistogramVec
	failOpen           *prometheus.CounterVec
	storageOperations  *prometheus.CounterVec
	storageDuration    *prometheus.HistogramVec
	storageFallback    *prometheus.GaugeVec
	ddosBlocks         *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewPrometheusCollector registers the collector's vectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler, or a fresh registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		rateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_requests_total",
				Help:      "Total number of rate limit decisions by strategy and outcome",
			},
			[]string{"strategy", "decision"},
		),
		rateLimitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_limit_duration_seconds",
				Help:      "Time taken to process rate limit checks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		failOpen: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_fail_open_total",
				Help:      "Rate limit checks that failed and allowed the request through",
			},
			[]string{"category"},
		),
		storageOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of storage operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		storageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_operations_duration_seconds",
				Help:      "Time spent on storage operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
		storageFallback: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rate_limit_storage_fallback",
				Help:      "1 when the active storage backend differs from the requested one",
			},
			[]string{"requested", "active"},
		),
		ddosBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ddos_blocks_total",
				Help:      "IPs blocked by the DDoS protection by reason",
			},
			[]string{"reason"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Time spent processing HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
	}
}

func (p *PrometheusCollector) RecordRateLimitDecision(strategy string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	p.rateLimitDecisions.WithLabelValues(strategy, decision).Inc()
}

func (p *PrometheusCollector) RecordRateLimitDuration(strategy string, duration time.Duration) {
	p.rateLimitDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordFailOpen(category string) {
	p.failOpen.WithLabelValues(category).Inc()
}

func (p *PrometheusCollector) RecordStorageOperation(backend, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.storageOperations.WithLabelValues(backend, operation, status).Inc()
	p.storageDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

func (p *PrometheusCollector) SetStorageFallback(requested, active string, degraded bool) {
	value := 0.0
	if degraded {
		value = 1
	}
	p.storageFallback.WithLabelValues(requested, active).Set(value)
}

func (p *PrometheusCollector) RecordDDoSBlock(reason string) {
	p.ddosBlocks.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordHTTPRequest(route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	p.httpDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(duration.Seconds())
}
