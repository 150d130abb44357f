package telemetry

import (
	"time"

	"github.com/rs/zerolog"
)

// Hooks implements mcp-go server lifecycle callbacks for logging and, when
// metrics are attached, Prometheus counters.
type Hooks struct {
	logger  zerolog.Logger
	metrics *Metrics
}

// NewHooks constructs a Hooks instance with the provided logger.
func NewHooks(logger zerolog.Logger) *Hooks {
	return &Hooks{logger: logger}
}

// WithMetrics attaches a metrics sink to the tool call hook.
func (h *Hooks) WithMetrics(m *Metrics) *Hooks {
	h.metrics = m
	return h
}

// OnServerStart is called when the server begins accepting connections.
func (h *Hooks) OnServerStart() {
	h.logger.Info().Msg("sheetmind server starting")
}

// OnServerStop is called during server shutdown.
func (h *Hooks) OnServerStop() {
	h.logger.Info().Msg("sheetmind server stopping")
}

// OnSessionStart records the start of a client session.
func (h *Hooks) OnSessionStart(sessionID string) {
	h.logger.Info().Str("client_session", sessionID).Msg("client session started")
}

// OnSessionEnd records the end of a client session.
func (h *Hooks) OnSessionEnd(sessionID string) {
	h.logger.Info().Str("client_session", sessionID).Msg("client session ended")
}

// OnToolCall logs tool invocations and their outcomes.
func (h *Hooks) OnToolCall(sessionID, toolName string, duration time.Duration, err error) {
	if err != nil {
		h.logger.Error().Str("client_session", sessionID).Str("tool", toolName).Dur("duration", duration).Err(err).Msg("tool call error")
		return
	}
	h.logger.Info().Str("client_session", sessionID).Str("tool", toolName).Dur("duration", duration).Msg("tool call completed")
}

// OnSessionEvicted logs a conversation dropped from memory and counts it.
func (h *Hooks) OnSessionEvicted(reason string) {
	h.logger.Debug().Str("reason", reason).Msg("conversation session evicted")
	if h.metrics != nil {
		h.metrics.SessionEvicted(reason)
	}
}

// OnRateLimited logs a rejected request and counts it.
func (h *Hooks) OnRateLimited(userID, tier string, retryAfter time.Duration) {
	h.logger.Warn().Str("user_id", userID).Str("tier", tier).Dur("retry_after", retryAfter).Msg("rate limit reached")
	if h.metrics != nil {
		h.metrics.Limited(tier)
	}
}
