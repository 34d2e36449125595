package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the archive mirror.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	CacheResultsTotal    *prometheus.CounterVec
	PolicyViolationTotal *prometheus.CounterVec
	GeoActionsTotal      *prometheus.CounterVec
	FetchDuration        prometheus.Histogram
	VerificationTotal    *prometheus.CounterVec
	RateLimitKeys        prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aptgate",
				Name:      "requests_total",
				Help:      "Total number of archive requests processed",
			},
			[]string{"method", "status"}, // method=GET/HEAD, status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aptgate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		CacheResultsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aptgate",
				Name:      "cache_results_total",
				Help:      "Total cache probes by result",
			},
			[]string{"result"}, // result=hit/miss
		),
		PolicyViolationTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aptgate",
				Name:      "policy_violations_total",
				Help:      "Total archive policy violations by reason",
			},
			[]string{"reason"},
		),
		GeoActionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aptgate",
				Name:      "geo_actions_total",
				Help:      "Total geo policy decisions by action",
			},
			[]string{"action"}, // action=allow/deny/log_only/rate_limit/redirect
		),
		FetchDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "aptgate",
				Name:      "upstream_fetch_duration_seconds",
				Help:      "Upstream mirror fetch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		VerificationTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aptgate",
				Name:      "verification_total",
				Help:      "Total signature/hash verification outcomes",
			},
			[]string{"kind", "result"}, // kind=signature/hash, result=success/failure
		),
		RateLimitKeys: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "aptgate",
				Name:      "rate_limit_keys",
				Help:      "Number of active rate limit keys",
			},
		),
	}
}
