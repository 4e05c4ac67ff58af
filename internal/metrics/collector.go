// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 后端调用指标
	backendCallsTotal   *prometheus.CounterVec
	backendCallDuration *prometheus.HistogramVec
	tokensTotal         *prometheus.CounterVec

	// 流水线指标
	pipelineRunsTotal *prometheus.CounterVec
	pipelineDuration  *prometheus.HistogramVec
	chunksPerRun      prometheus.Histogram
	groupsTotal       *prometheus.CounterVec
	groupSize         prometheus.Histogram

	// 任务指标
	taskTransitions *prometheus.CounterVec
	tasksInFlight   prometheus.Gauge

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 后端调用指标
	c.backendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Total number of per-chunk backend calls",
		},
		[]string{"status"},
	)

	c.backendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Per-chunk backend call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	c.tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total number of tokens of successfully translated chunks",
		},
		[]string{"type"}, // type: input, output
	)

	// 流水线指标
	c.pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of translation pipeline runs",
		},
		[]string{"status"}, // status: success, partial, failed
	)

	c.pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Translation pipeline duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)

	c.chunksPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_chunks",
			Help:      "Number of chunks per pipeline run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	c.groupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_total",
			Help:      "Total number of processed chunk groups",
		},
		[]string{"status"},
	)

	c.groupSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "group_size_chunks",
			Help:      "Number of chunks per group",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		},
	)

	// 任务指标
	c.taskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_state_transitions_total",
			Help:      "Total number of task state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	c.tasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Number of tasks whose pipeline is currently running",
		},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 后端调用指标记录
// =============================================================================

// RecordBackendCall 记录一次分块翻译调用
func (c *Collector) RecordBackendCall(succeeded bool, duration time.Duration, inputTokens, outputTokens int) {
	status := outcome(succeeded)
	c.backendCallsTotal.WithLabelValues(status).Inc()
	c.backendCallDuration.WithLabelValues(status).Observe(duration.Seconds())
	if succeeded {
		c.tokensTotal.WithLabelValues("input").Add(float64(inputTokens))
		c.tokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	}
}

// =============================================================================
// 🔀 流水线指标记录
// =============================================================================

// RecordGroup 记录一个分组的完成
func (c *Collector) RecordGroup(succeeded bool, size int) {
	c.groupsTotal.WithLabelValues(outcome(succeeded)).Inc()
	c.groupSize.Observe(float64(size))
}

// RecordPipeline 记录一次完整的流水线运行
func (c *Collector) RecordPipeline(status string, duration time.Duration, chunks int) {
	c.pipelineRunsTotal.WithLabelValues(status).Inc()
	c.pipelineDuration.WithLabelValues(status).Observe(duration.Seconds())
	c.chunksPerRun.Observe(float64(chunks))
}

// =============================================================================
// 📋 任务指标记录
// =============================================================================

// RecordTaskTransition 记录任务状态转换
func (c *Collector) RecordTaskTransition(from, to string) {
	c.taskTransitions.WithLabelValues(from, to).Inc()
}

// TaskStarted 运行中任务数 +1
func (c *Collector) TaskStarted() { c.tasksInFlight.Inc() }

// TaskFinished 运行中任务数 -1
func (c *Collector) TaskFinished() { c.tasksInFlight.Dec() }

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func outcome(succeeded bool) string {
	if succeeded {
		return "success"
	}
	return "failure"
}
