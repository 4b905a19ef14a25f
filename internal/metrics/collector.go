// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/paneltalk/types"
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

	// 讨论会话指标
	sessionsActive    prometheus.Gauge
	sessionsEnded     *prometheus.CounterVec
	sessionFinalTurns prometheus.Histogram

	// 轮次指标
	turnsTotal         *prometheus.CounterVec
	turnDuration       *prometheus.HistogramVec
	generationFailures *prometheus.CounterVec

	// 档案存储指标
	storeConnectionsOpen *prometheus.GaugeVec
	storeConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
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

	// 讨论会话指标
	c.sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of discussion sessions currently running",
		},
	)

	c.sessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of ended discussion sessions",
		},
		[]string{"reason"},
	)

	c.sessionFinalTurns = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_final_turns",
			Help:      "Number of completed turns per ended session",
			Buckets:   []float64{1, 2, 4, 8, 12, 16, 24, 32, 48, 64},
		},
	)

	// 轮次指标
	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of completed dialogue turns",
		},
		[]string{"speaker"},
	)

	c.turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Turn generation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"speaker"},
	)

	c.generationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Total number of failed turn generations",
		},
		[]string{"speaker"},
	)

	// 档案存储指标
	c.storeConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_connections_open",
			Help:      "Number of open persona store connections",
		},
		[]string{"backend"},
	)

	c.storeConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_connections_idle",
			Help:      "Number of idle persona store connections",
		},
		[]string{"backend"},
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
// 🎙️ 讨论指标记录（dialogue.Observer 实现）
// =============================================================================

// TurnCompleted 记录一次完成的发言轮次
func (c *Collector) TurnCompleted(sessionID, speaker string, elapsed time.Duration) {
	c.turnsTotal.WithLabelValues(speaker).Inc()
	c.turnDuration.WithLabelValues(speaker).Observe(elapsed.Seconds())
}

// GenerationFailed 记录一次发言生成失败
func (c *Collector) GenerationFailed(sessionID, speaker string) {
	c.generationFailures.WithLabelValues(speaker).Inc()
}

// SessionEnded 记录会话终止
func (c *Collector) SessionEnded(sessionID string, reason types.TerminationReason, turns int) {
	c.sessionsEnded.WithLabelValues(string(reason)).Inc()
	c.sessionFinalTurns.Observe(float64(turns))
}

// SetActiveSessions 更新当前活跃会话数
func (c *Collector) SetActiveSessions(n int) {
	c.sessionsActive.Set(float64(n))
}

// =============================================================================
// 🗄️ 档案存储指标记录
// =============================================================================

// RecordStoreConnections 记录档案存储连接数
func (c *Collector) RecordStoreConnections(backend string, open, idle int) {
	c.storeConnectionsOpen.WithLabelValues(backend).Set(float64(open))
	c.storeConnectionsIdle.WithLabelValues(backend).Set(float64(idle))
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
