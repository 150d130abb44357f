package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the server's Prometheus series.
//
// Series:
//   - completion attempts per tier and outcome, with latency
//   - reasoning loop terminations and iteration counts
//   - agent tool invocations
//   - session evictions by reason
//   - router classifications by intent and rule
//   - MCP tool call outcomes and latency
//   - rate limit rejections by tier
type Metrics struct {
	reg prometheus.Gatherer

	// Labels: tier, outcome (ok|refused|error)
	CompletionCounter *prometheus.CounterVec
	// Labels: tier
	CompletionDuration *prometheus.HistogramVec

	// Labels: termination
	AgentRuns *prometheus.CounterVec
	// Buckets follow the default iteration budget.
	AgentIterations prometheus.Histogram
	// Labels: tool
	AgentToolCalls *prometheus.CounterVec

	// Labels: reason (idle|lru)
	SessionEvictions *prometheus.CounterVec
	// Labels: intent, rule
	RouterDecisions *prometheus.CounterVec

	// Labels: tool, outcome (ok|error|busy|timeout)
	ToolCalls *prometheus.CounterVec
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// Labels: tier
	RateLimited *prometheus.CounterVec
}

// NewMetrics registers all series with reg. Pass prometheus.NewRegistry()
// in tests to keep them isolated from the default registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		CompletionCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmind_completion_attempts_total",
				Help: "Completion attempts by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		CompletionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sheetmind_completion_duration_seconds",
				Help:    "Completion attempt latency by tier",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"tier"},
		),
		AgentRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmind_agent_runs_total",
				Help: "Reasoning loop runs by termination",
			},
			[]string{"termination"},
		),
		AgentIterations: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sheetmind_agent_iterations",
				Help:    "Iterations used per reasoning loop run",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
			},
		),
		AgentToolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmind_agent_tool_calls_total",
				Help: "Agent tool invocations by tool",
			},
			[]string{"tool"},
		),
		SessionEvictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmind_session_evictions_total",
				Help: "Conversation sessions dropped by reason",
			},
			[]string{"reason"},
		),
		RouterDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmind_router_decisions_total",
				Help: "Intent classifications by intent and matching rule",
			},
			[]string{"intent", "rule"},
		),
		ToolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmind_tool_calls_total",
				Help: "MCP tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sheetmind_tool_duration_seconds",
				Help:    "MCP tool call latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		RateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmind_rate_limited_total",
				Help: "Requests rejected by the per-user rate limit",
			},
			[]string{"tier"},
		),
	}
}

// ObserveCompletion matches the completion service's observer signature.
func (m *Metrics) ObserveCompletion(tier, outcome string, elapsed time.Duration) {
	m.CompletionCounter.WithLabelValues(tier, outcome).Inc()
	m.CompletionDuration.WithLabelValues(tier).Observe(elapsed.Seconds())
}

// ObserveTool matches the runtime middleware's observer signature.
func (m *Metrics) ObserveTool(tool, outcome string, elapsed time.Duration) {
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// AgentToolCalled counts one agent tool invocation.
func (m *Metrics) AgentToolCalled(tool string) {
	m.AgentToolCalls.WithLabelValues(tool).Inc()
}

// AgentFinished records how a reasoning loop run ended.
func (m *Metrics) AgentFinished(termination string, iterations int) {
	m.AgentRuns.WithLabelValues(termination).Inc()
	m.AgentIterations.Observe(float64(iterations))
}

// SessionEvicted counts a dropped session.
func (m *Metrics) SessionEvicted(reason string) {
	m.SessionEvictions.WithLabelValues(reason).Inc()
}

// Routed counts one intent classification.
func (m *Metrics) Routed(intent, rule string) {
	m.RouterDecisions.WithLabelValues(intent, rule).Inc()
}

// Limited counts a rate limit rejection.
func (m *Metrics) Limited(tier string) {
	m.RateLimited.WithLabelValues(tier).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
