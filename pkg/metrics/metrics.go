// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "analog_forecast"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 检索指标
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "k-NN search duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"horizon", "index_type"},
	)

	SearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "total",
			Help:      "Total number of k-NN searches",
		},
		[]string{"horizon", "index_type", "status"},
	)

	// 质量校验指标
	ValidationVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "verdicts_total",
			Help:      "Quality verdicts by class and reason",
		},
		[]string{"horizon", "verdict", "reason"},
	)

	DroppedIdentifiers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "dropped_identifiers_total",
			Help:      "Neighbor identifiers dropped because no outcome row resolved",
		},
		[]string{"horizon"},
	)

	// 资源管控指标
	BudgetUsageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "budget_usage_bytes",
			Help:      "Bytes currently registered against the memory budget",
		},
	)

	BudgetRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "budget_rejections_total",
			Help:      "Budget acquisitions rejected fail-fast",
		},
	)

	ResidentMemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "resident_memory_bytes",
			Help:      "Process resident memory sampled by the background profiler",
		},
	)

	MemoryAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "memory_alerts_total",
			Help:      "Sustained critical-memory alerts raised by the profiler",
		},
	)

	IndexCacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index_cache",
			Name:      "events_total",
			Help:      "Lazy index cache events",
		},
		[]string{"event"}, // hit / miss / load / evict
	)

	// 连接池指标
	PoolWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for a search handle",
			Buckets:   []float64{.0001, .001, .01, .05, .1, .5, 1, 5},
		},
		[]string{"horizon"},
	)

	PoolExhaustions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "exhaustions_total",
			Help:      "Handle acquisitions that timed out",
		},
		[]string{"horizon"},
	)

	// 预报指标
	ForecastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "total",
			Help:      "Total number of forecast requests",
		},
		[]string{"horizon", "status"},
	)

	ForecastFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "fallbacks_total",
			Help:      "Forecasts answered with a labeled fallback result",
		},
		[]string{"horizon", "reason"},
	)

	UnavailableVariables = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "unavailable_variables_total",
			Help:      "Variables marked unavailable for insufficient analogs",
		},
		[]string{"horizon", "variable"},
	)
)
