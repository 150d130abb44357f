package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/sheetmind/pkg/mcperr"
)

// Tool call outcomes passed to the observer.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeBusy    = "busy"
	OutcomeTimeout = "timeout"
)

// Middleware enforces runtime limits for tool calls using the Controller.
// It bounds global concurrency and applies an operation timeout to each call.
type Middleware struct {
	ctrl    *Controller
	observe func(tool, outcome string, elapsed time.Duration)
}

// NewMiddleware constructs a Middleware bound to the provided Controller.
func NewMiddleware(ctrl *Controller) *Middleware {
	return &Middleware{ctrl: ctrl}
}

// WithObserver reports every call's outcome, for metrics.
func (m *Middleware) WithObserver(fn func(tool, outcome string, elapsed time.Duration)) *Middleware {
	m.observe = fn
	return m
}

// ToolMiddleware implements mcp-go's tool handler middleware interface.
// It tags the call with a request id, acquires a request slot, applies a
// timeout, and guarantees release.
func (m *Middleware) ToolMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		tool := req.Params.Name
		log := zerolog.Ctx(ctx).With().Str("tool", tool).Str("request_id", uuid.NewString()).Logger()
		ctx = log.WithContext(ctx)

		acquireCtx := ctx
		if m.ctrl.limits.AcquireRequestTimeout > 0 {
			var cancel context.CancelFunc
			acquireCtx, cancel = context.WithTimeout(ctx, m.ctrl.limits.AcquireRequestTimeout)
			defer cancel()
		}

		if err := m.ctrl.AcquireRequest(acquireCtx); err != nil {
			log.Warn().Int("max", m.ctrl.limits.MaxConcurrentRequests).Msg("request rejected, server busy")
			m.report(tool, OutcomeBusy, start)
			// Return a tool-level error so the client can self-correct/retry.
			return mcperr.New(mcperr.BusyResource, fmt.Sprintf("concurrent request limit reached (max=%d)", m.ctrl.limits.MaxConcurrentRequests)), nil
		}
		defer m.ctrl.ReleaseRequest()

		callCtx := ctx
		cancel := func() {}
		if m.ctrl.limits.OperationTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, m.ctrl.limits.OperationTimeout)
		}
		defer cancel()

		res, err := next(callCtx, req)

		// A surfaced deadline becomes a tool-level timeout.
		if errors.Is(err, context.DeadlineExceeded) || (callCtx.Err() == context.DeadlineExceeded && err == nil && res == nil) {
			log.Warn().Dur("elapsed", time.Since(start)).Msg("tool call timed out")
			m.report(tool, OutcomeTimeout, start)
			return mcperr.New(mcperr.Timeout, ""), nil
		}

		outcome := OutcomeOK
		if err != nil || (res != nil && res.IsError) {
			outcome = OutcomeError
		}
		m.report(tool, outcome, start)
		log.Debug().Str("outcome", outcome).Dur("elapsed", time.Since(start)).Msg("tool call finished")
		return res, err
	}
}

func (m *Middleware) report(tool, outcome string, start time.Time) {
	if m.observe != nil {
		m.observe(tool, outcome, time.Since(start))
	}
}
