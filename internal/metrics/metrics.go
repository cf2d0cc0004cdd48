// Package metrics provides metrics collection and reporting for the analysis pipeline.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Prometheus metric labels
const (
	labelTool     = "tool"
	labelStatus   = "status"
	labelSeverity = "severity"
	labelSource   = "source"
	labelVerdict  = "verdict"
)

// Metrics tracks operational metrics with both internal counters and Prometheus metrics
type Metrics struct {
	// Outbound request metrics (internal atomic counters for fast access)
	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64
	retriedRequests    atomic.Uint64

	// Latency tracking
	totalLatency atomic.Int64 // microseconds
	latencyCount atomic.Uint64
	maxLatency   atomic.Int64
	minLatency   atomic.Int64

	// Rate limiting metrics
	rateLimitHits atomic.Uint64

	// Pipeline counters
	eventsParsed     atomic.Uint64
	malformedRecords atomic.Uint64
	analysisRuns     atomic.Uint64
	monitorCycles    atomic.Uint64
	alertsFired      atomic.Uint64
	alertsSuppressed atomic.Uint64

	// Error tracking by status code
	errorsMu       sync.RWMutex
	errorsByStatus map[int]uint64

	// Tool usage tracking
	toolsMu     sync.RWMutex
	toolUsage   map[string]uint64
	toolErrors  map[string]uint64
	toolLatency map[string]int64 // microseconds

	logger *zap.Logger

	// Prometheus metrics
	promRequestsTotal      prometheus.Counter
	promRequestsSuccessful prometheus.Counter
	promRequestsFailed     prometheus.Counter
	promRequestsRetried    prometheus.Counter
	promRateLimitHits      prometheus.Counter
	promRequestLatency     prometheus.Histogram
	promErrorsByStatus     *prometheus.CounterVec
	promEventsParsed       *prometheus.CounterVec
	promMalformedRecords   *prometheus.CounterVec
	promAnalysisRuns       *prometheus.CounterVec
	promMonitorCycles      prometheus.Counter
	promAlertsFired        *prometheus.CounterVec
	promAlertsSuppressed   prometheus.Counter
	promErrorRatio         prometheus.Gauge
	promToolCalls          *prometheus.CounterVec
	promToolErrors         *prometheus.CounterVec
	promToolLatency        *prometheus.HistogramVec
}

// New creates a new metrics tracker with Prometheus integration
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		errorsByStatus: make(map[int]uint64),
		toolUsage:      make(map[string]uint64),
		toolErrors:     make(map[string]uint64),
		toolLatency:    make(map[string]int64),
		logger:         logger,

		// Initialize Prometheus metrics using promauto (auto-registers with default registry)
		promRequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests (oracle and tool server)",
		}),
		promRequestsSuccessful: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "requests_successful_total",
			Help:      "Total number of successful outbound requests",
		}),
		promRequestsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "requests_failed_total",
			Help:      "Total number of failed outbound requests",
		}),
		promRequestsRetried: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "requests_retried_total",
			Help:      "Total number of retried outbound requests",
		}),
		promRateLimitHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "rate_limit_hits_total",
			Help:      "Total number of client-side rate limit waits",
		}),
		promRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clarity",
			Name:      "request_latency_seconds",
			Help:      "Outbound request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
		promErrorsByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "errors_by_status_total",
			Help:      "Outbound request errors by HTTP status code",
		}, []string{labelStatus}),

		promEventsParsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "events_parsed_total",
			Help:      "Total number of log events parsed, labeled by source",
		}, []string{labelSource}),
		promMalformedRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "malformed_records_total",
			Help:      "Total number of malformed records dropped during parsing, labeled by source",
		}, []string{labelSource}),
		promAnalysisRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "analysis_runs_total",
			Help:      "Total number of analysis runs, labeled by verdict origin (oracle or fallback)",
		}, []string{labelVerdict}),
		promMonitorCycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "monitor_cycles_total",
			Help:      "Total number of completed monitor polling cycles",
		}),
		promAlertsFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "alerts_fired_total",
			Help:      "Total number of trend alerts fired, labeled by severity",
		}, []string{labelSeverity}),
		promAlertsSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "alerts_suppressed_total",
			Help:      "Total number of trend alerts suppressed by debounce",
		}),
		promErrorRatio: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "clarity",
			Name:      "window_error_ratio",
			Help:      "Error ratio of the most recent monitor window",
		}),

		// Tool-specific metrics - tracks every remediation tool call with labels for tool name
		promToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "tool_calls_total",
			Help:      "Total number of remediation tool calls, labeled by tool name (e.g., suggest_rollback, restart_service)",
		}, []string{labelTool}),
		promToolErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clarity",
			Name:      "tool_errors_total",
			Help:      "Total number of remediation tool errors, labeled by tool name",
		}, []string{labelTool}),
		promToolLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clarity",
			Name:      "tool_latency_seconds",
			Help:      "Remediation tool execution latency in seconds, labeled by tool name",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{labelTool}),
	}

	// Initialize min latency to max value
	m.minLatency.Store(int64(time.Hour))

	return m
}

// RecordRequest records an outbound request (both internal counters and Prometheus)
func (m *Metrics) RecordRequest(success bool, latency time.Duration, statusCode int) {
	// Update internal counters
	m.totalRequests.Add(1)

	// Update Prometheus counters
	m.promRequestsTotal.Inc()
	m.promRequestLatency.Observe(latency.Seconds())

	if success {
		m.successfulRequests.Add(1)
		m.promRequestsSuccessful.Inc()
	} else {
		m.failedRequests.Add(1)
		m.promRequestsFailed.Inc()
		m.recordErrorStatus(statusCode)
	}

	m.recordLatency(latency)
}

// RecordRetry records a retry attempt
func (m *Metrics) RecordRetry() {
	m.retriedRequests.Add(1)
	m.promRequestsRetried.Inc()
}

// RecordRateLimitHit records a rate limit wait
func (m *Metrics) RecordRateLimitHit() {
	m.rateLimitHits.Add(1)
	m.promRateLimitHits.Inc()
}

// RecordEventsParsed records events successfully parsed from a source
func (m *Metrics) RecordEventsParsed(source string, count int) {
	if count <= 0 {
		return
	}
	m.eventsParsed.Add(uint64(count))
	m.promEventsParsed.WithLabelValues(source).Add(float64(count))
}

// RecordMalformedRecord records a record dropped during parsing
func (m *Metrics) RecordMalformedRecord(source string) {
	m.malformedRecords.Add(1)
	m.promMalformedRecords.WithLabelValues(source).Inc()
}

// RecordAnalysisRun records a completed analysis run. Origin is "oracle"
// when the verdict came from the oracle and "fallback" when it was
// produced locally.
func (m *Metrics) RecordAnalysisRun(origin string) {
	m.analysisRuns.Add(1)
	m.promAnalysisRuns.WithLabelValues(origin).Inc()
}

// RecordMonitorCycle records a completed polling cycle and the error ratio
// it observed.
func (m *Metrics) RecordMonitorCycle(errorRatio float64) {
	m.monitorCycles.Add(1)
	m.promMonitorCycles.Inc()
	m.promErrorRatio.Set(errorRatio)
}

// RecordAlert records a trend alert decision. Fired alerts are labeled by
// severity; suppressed alerts only bump the suppression counter.
func (m *Metrics) RecordAlert(severity string, fired bool) {
	if fired {
		m.alertsFired.Add(1)
		m.promAlertsFired.WithLabelValues(severity).Inc()
		return
	}
	m.alertsSuppressed.Add(1)
	m.promAlertsSuppressed.Inc()
}

// RecordToolExecution records remediation tool usage (both internal counters and Prometheus)
// This is called for every tool invocation, tracking:
// - Total calls per tool
// - Errors per tool
// - Latency distribution per tool
func (m *Metrics) RecordToolExecution(toolName string, success bool, latency time.Duration) {
	// Update internal counters
	m.toolsMu.Lock()
	m.toolUsage[toolName]++
	if !success {
		m.toolErrors[toolName]++
	}

	// Update average latency using rolling average to avoid integer overflow
	if latency > 0 && m.toolUsage[toolName] > 0 {
		currentLatency := m.toolLatency[toolName]
		// Use float64 for calculation to avoid integer overflow issues
		count := float64(m.toolUsage[toolName])
		avgLatency := (float64(currentLatency)*(count-1) + float64(latency.Microseconds())) / count
		m.toolLatency[toolName] = int64(avgLatency)
	}
	m.toolsMu.Unlock()

	// Update Prometheus metrics (labeled by tool name)
	m.promToolCalls.WithLabelValues(toolName).Inc()
	m.promToolLatency.WithLabelValues(toolName).Observe(latency.Seconds())
	if !success {
		m.promToolErrors.WithLabelValues(toolName).Inc()
	}
}

func (m *Metrics) recordLatency(latency time.Duration) {
	latencyUs := latency.Microseconds()

	m.totalLatency.Add(latencyUs)
	m.latencyCount.Add(1)

	// Update max latency
	for {
		currentMax := m.maxLatency.Load()
		if latencyUs <= currentMax {
			break
		}
		if m.maxLatency.CompareAndSwap(currentMax, latencyUs) {
			break
		}
	}

	// Update min latency
	for {
		currentMin := m.minLatency.Load()
		if latencyUs >= currentMin {
			break
		}
		if m.minLatency.CompareAndSwap(currentMin, latencyUs) {
			break
		}
	}
}

func (m *Metrics) recordErrorStatus(statusCode int) {
	if statusCode == 0 {
		return
	}

	m.errorsMu.Lock()
	m.errorsByStatus[statusCode]++
	m.errorsMu.Unlock()

	// Update Prometheus counter with status code label
	m.promErrorsByStatus.WithLabelValues(fmt.Sprintf("%d", statusCode)).Inc()
}

// GetStats returns current statistics
func (m *Metrics) GetStats() Stats {
	m.errorsMu.RLock()
	errorsByStatus := make(map[int]uint64, len(m.errorsByStatus))
	for k, v := range m.errorsByStatus {
		errorsByStatus[k] = v
	}
	m.errorsMu.RUnlock()

	m.toolsMu.RLock()
	toolUsage := make(map[string]uint64, len(m.toolUsage))
	toolErrors := make(map[string]uint64, len(m.toolErrors))
	toolLatency := make(map[string]time.Duration, len(m.toolLatency))
	for k, v := range m.toolUsage {
		toolUsage[k] = v
	}
	for k, v := range m.toolErrors {
		toolErrors[k] = v
	}
	for k, v := range m.toolLatency {
		toolLatency[k] = time.Duration(v) * time.Microsecond
	}
	m.toolsMu.RUnlock()

	totalReq := m.totalRequests.Load()
	latencyCount := m.latencyCount.Load()

	var avgLatency time.Duration
	if latencyCount > 0 {
		// Use float64 division to avoid integer overflow issues
		avgLatencyMicros := float64(m.totalLatency.Load()) / float64(latencyCount)
		avgLatency = time.Duration(avgLatencyMicros) * time.Microsecond
	}

	return Stats{
		TotalRequests:      totalReq,
		SuccessfulRequests: m.successfulRequests.Load(),
		FailedRequests:     m.failedRequests.Load(),
		RetriedRequests:    m.retriedRequests.Load(),
		RateLimitHits:      m.rateLimitHits.Load(),
		EventsParsed:       m.eventsParsed.Load(),
		MalformedRecords:   m.malformedRecords.Load(),
		AnalysisRuns:       m.analysisRuns.Load(),
		MonitorCycles:      m.monitorCycles.Load(),
		AlertsFired:        m.alertsFired.Load(),
		AlertsSuppressed:   m.alertsSuppressed.Load(),
		AverageLatency:     avgLatency,
		MaxLatency:         time.Duration(m.maxLatency.Load()) * time.Microsecond,
		MinLatency:         time.Duration(m.minLatency.Load()) * time.Microsecond,
		ErrorsByStatus:     errorsByStatus,
		ToolUsage:          toolUsage,
		ToolErrors:         toolErrors,
		ToolLatency:        toolLatency,
	}
}

// LogStats logs current statistics
func (m *Metrics) LogStats() {
	stats := m.GetStats()

	var errorRate float64
	if stats.TotalRequests > 0 {
		errorRate = float64(stats.FailedRequests) / float64(stats.TotalRequests) * 100
	}

	m.logger.Info("Operational metrics",
		zap.Uint64("total_requests", stats.TotalRequests),
		zap.Uint64("successful_requests", stats.SuccessfulRequests),
		zap.Uint64("failed_requests", stats.FailedRequests),
		zap.Float64("error_rate_pct", errorRate),
		zap.Uint64("retried_requests", stats.RetriedRequests),
		zap.Uint64("rate_limit_hits", stats.RateLimitHits),
		zap.Uint64("events_parsed", stats.EventsParsed),
		zap.Uint64("malformed_records", stats.MalformedRecords),
		zap.Uint64("analysis_runs", stats.AnalysisRuns),
		zap.Uint64("monitor_cycles", stats.MonitorCycles),
		zap.Uint64("alerts_fired", stats.AlertsFired),
		zap.Uint64("alerts_suppressed", stats.AlertsSuppressed),
		zap.Duration("avg_latency", stats.AverageLatency),
		zap.Duration("max_latency", stats.MaxLatency),
		zap.Duration("min_latency", stats.MinLatency),
		zap.Any("errors_by_status", stats.ErrorsByStatus),
		zap.Any("tool_usage", stats.ToolUsage),
	)
}

// Stats represents current metrics
type Stats struct {
	TotalRequests      uint64
	SuccessfulRequests uint64
	FailedRequests     uint64
	RetriedRequests    uint64
	RateLimitHits      uint64
	EventsParsed       uint64
	MalformedRecords   uint64
	AnalysisRuns       uint64
	MonitorCycles      uint64
	AlertsFired        uint64
	AlertsSuppressed   uint64
	AverageLatency     time.Duration
	MaxLatency         time.Duration
	MinLatency         time.Duration
	ErrorsByStatus     map[int]uint64
	ToolUsage          map[string]uint64
	ToolErrors         map[string]uint64
	ToolLatency        map[string]time.Duration
}

// GetPrometheusRegistry returns the default Prometheus registry
// This can be used with promhttp.HandlerFor() to serve metrics
func GetPrometheusRegistry() *prometheus.Registry {
	// Return the default registry which promauto uses
	return prometheus.DefaultRegisterer.(*prometheus.Registry)
}
