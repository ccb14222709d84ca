package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	toolCallsTotal    *prometheus.CounterVec
	toolCallDuration  *prometheus.HistogramVec
	toolCallsDropped  *prometheus.CounterVec
	forcedToolsTotal  *prometheus.CounterVec
	dispatchDuration  prometheus.Histogram
	dispatchBatchSize prometheus.Histogram

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentTurnsTotal  *prometheus.CounterVec

	backendRequestTotal    *prometheus.CounterVec
	backendRequestDuration *prometheus.HistogramVec

	mcpRequestTotal    *prometheus.CounterVec
	mcpRequestDuration *prometheus.HistogramVec
	mcpToolsDiscovered *prometheus.GaugeVec

	gatewayClients prometheus.Gauge
	gatewayEvents  *prometheus.CounterVec

	historyWriteTotal   *prometheus.CounterVec
	historyWriteLatency prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quiver_tool_calls_total",
					Help: "Total tool calls dispatched by tool and outcome.",
				},
				[]string{"tool", "outcome"},
			),
			toolCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "quiver_tool_call_duration_seconds",
					Help:    "Tool call duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolCallsDropped: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quiver_tool_calls_dropped_total",
					Help: "Tool calls dropped before dispatch by reason.",
				},
				[]string{"reason"},
			),
			forcedToolsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quiver_forced_tools_total",
					Help: "Forced tool selections by API mode.",
				},
				[]string{"mode"},
			),
			dispatchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "quiver_dispatch_duration_seconds",
					Help:    "Duration of one full dispatch round in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			dispatchBatchSize: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "quiver_dispatch_batch_size",
					Help:    "Number of tool calls executed per dispatch round.",
					Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
				},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quiver_agent_run_total",
					Help: "Total agent runs by provider and status.",
				},
				[]string{"provider", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "quiver_agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			agentTurnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quiver_agent_turns_total",
					Help: "Model turns taken by provider.",
				},
				[]string{"provider"},
			),
			backendRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quiver_backend_request_total",
					Help: "Backend API requests by endpoint and status.",
				},
				[]string{"endpoint", "status"},
			),
			backendRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "quiver_backend_request_duration_seconds",
					Help:    "Backend API request duration in seconds by endpoint.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"endpoint"},
			),
			mcpRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quiver_mcp_request_total",
					Help: "MCP requests by server, method, and status.",
				},
				[]string{"server", "method", "status"},
			),
			mcpRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "quiver_mcp_request_duration_seconds",
					Help:    "MCP request duration in seconds by server and method.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"server", "method"},
			),
			mcpToolsDiscovered: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "quiver_mcp_tools_discovered",
					Help: "Tools currently discovered per MCP server.",
				},
				[]string{"server"},
			),
			gatewayClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "quiver_gateway_clients",
					Help: "Connected progress gateway clients.",
				},
			),
			gatewayEvents: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quiver_gateway_events_total",
					Help: "Progress events broadcast by event type.",
				},
				[]string{"event"},
			),
			historyWriteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quiver_history_write_total",
					Help: "Call history writes by status.",
				},
				[]string{"status"},
			),
			historyWriteLatency: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "quiver_history_write_duration_seconds",
					Help:    "Call history write duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.toolCallsTotal,
			m.toolCallDuration,
			m.toolCallsDropped,
			m.forcedToolsTotal,
			m.dispatchDuration,
			m.dispatchBatchSize,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentTurnsTotal,
			m.backendRequestTotal,
			m.backendRequestDuration,
			m.mcpRequestTotal,
			m.mcpRequestDuration,
			m.mcpToolsDiscovered,
			m.gatewayClients,
			m.gatewayEvents,
			m.historyWriteTotal,
			m.historyWriteLatency,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordToolCall(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	outcome := "error"
	if success {
		outcome = "success"
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordToolCallsDropped(reason string, count int) {
	m := getMetrics()
	m.toolCallsDropped.WithLabelValues(reason).Add(float64(count))
}

func RecordForcedTool(mode string) {
	m := getMetrics()
	m.forcedToolsTotal.WithLabelValues(mode).Inc()
}

func RecordDispatch(batchSize int, duration time.Duration) {
	m := getMetrics()
	m.dispatchBatchSize.Observe(float64(batchSize))
	m.dispatchDuration.Observe(duration.Seconds())
}

func RecordAgentRun(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentRunTotal.WithLabelValues(provider, status).Inc()
	m.agentRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordAgentTurn(provider string) {
	m := getMetrics()
	m.agentTurnsTotal.WithLabelValues(provider).Inc()
}

func RecordBackendRequest(endpoint, status string, duration time.Duration) {
	m := getMetrics()
	m.backendRequestTotal.WithLabelValues(endpoint, status).Inc()
	m.backendRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func RecordMCPRequest(server, method, status string, duration time.Duration) {
	m := getMetrics()
	m.mcpRequestTotal.WithLabelValues(server, method, status).Inc()
	m.mcpRequestDuration.WithLabelValues(server, method).Observe(duration.Seconds())
}

func SetMCPToolsDiscovered(server string, count int) {
	m := getMetrics()
	m.mcpToolsDiscovered.WithLabelValues(server).Set(float64(count))
}

func SetGatewayClients(count int) {
	m := getMetrics()
	m.gatewayClients.Set(float64(count))
}

func RecordGatewayEvent(event string) {
	m := getMetrics()
	m.gatewayEvents.WithLabelValues(event).Inc()
}

func RecordHistoryWrite(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.historyWriteTotal.WithLabelValues(status).Inc()
	m.historyWriteLatency.Observe(duration.Seconds())
}
