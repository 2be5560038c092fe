// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the runtime. Metrics register once per process via
// promauto; tracing is a no-op unless an OTLP endpoint is configured.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the runtime emits.
type Metrics struct {
	// ProviderRequests counts completions by provider, model, and
	// status (success|error).
	ProviderRequests *prometheus.CounterVec

	// ProviderRequestDuration measures completion latency in seconds.
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderTokens counts tokens by provider, model, and type
	// (input|output).
	ProviderTokens *prometheus.CounterVec

	// ToolExecutions counts tool runs by tool name and status
	// (success|error).
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool latency in seconds.
	ToolExecutionDuration *prometheus.HistogramVec

	// CacheHits counts tool result cache hits by tool name.
	CacheHits *prometheus.CounterVec

	// PrunedMessages counts messages dropped by context pruning.
	PrunedMessages prometheus.Counter

	// StreamDrops counts events dropped on terminal streams.
	StreamDrops prometheus.Counter
}

// NewMetrics registers all collectors with the default registry. Call
// once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		ProviderRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_provider_requests_total",
				Help: "Total provider completions by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quarry_provider_request_duration_seconds",
				Help:    "Provider completion latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ProviderTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_provider_tokens_total",
				Help: "Total tokens consumed by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),
		ToolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_tool_executions_total",
				Help: "Total tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quarry_tool_execution_duration_seconds",
				Help:    "Tool execution latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_tool_cache_hits_total",
				Help: "Tool result cache hits by tool name",
			},
			[]string{"tool_name"},
		),
		PrunedMessages: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_context_pruned_messages_total",
				Help: "Messages removed from history by context pruning",
			},
		),
		StreamDrops: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_event_stream_drops_total",
				Help: "Events dropped because the stream was already terminal",
			},
		),
	}
}
