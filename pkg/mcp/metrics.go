package mcp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts dispatched JSON-RPC requests.
	// Labels: method
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcpd",
			Subsystem: "protocol",
			Name:      "requests_total",
			Help:      "Total number of JSON-RPC requests dispatched",
		},
		[]string{"method"},
	)

	// RequestErrorsTotal counts JSON-RPC error responses.
	// Labels: code
	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcpd",
			Subsystem: "protocol",
			Name:      "request_errors_total",
			Help:      "Total number of JSON-RPC error responses",
		},
		[]string{"code"},
	)

	// ToolCallsTotal counts tool invocations.
	// Labels: tool, result (success, error)
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcpd",
			Subsystem: "protocol",
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"tool", "result"},
	)

	// ToolCallDuration tracks tool execution latency.
	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mcpd",
			Subsystem: "protocol",
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of tool invocations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mcpd",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Current number of live sessions",
		},
	)

	// SSEStreamsActive tracks open SSE streams.
	SSEStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mcpd",
			Subsystem: "http",
			Name:      "sse_streams_active",
			Help:      "Current number of open SSE streams",
		},
	)
)

func recordRequest(method string) {
	RequestsTotal.WithLabelValues(method).Inc()
}

func recordErrorCode(code string) {
	RequestErrorsTotal.WithLabelValues(code).Inc()
}

func recordToolCall(tool string, start time.Time, failed bool) {
	result := "success"
	if failed {
		result = "error"
	}
	ToolCallsTotal.WithLabelValues(tool, result).Inc()
	ToolCallDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}
