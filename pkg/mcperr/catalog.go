package mcperr

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code defines a canonical MCP error code used across tools.
type Code string

const (
	// Validation & Input
	Validation     Code = "VALIDATION"
	CursorInvalid  Code = "CURSOR_INVALID"
	FormulaInvalid Code = "FORMULA_INVALID"

	// Resource & Limits
	BusyResource Code = "BUSY_RESOURCE"
	Timeout      Code = "TIMEOUT"
	RateLimited  Code = "RATE_LIMITED"

	// Upstream
	ServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	AgentFailed        Code = "AGENT_FAILED"

	// Lookups
	SessionNotFound Code = "SESSION_NOT_FOUND"
	PatternNotFound Code = "PATTERN_NOT_FOUND"

	// IO & Formats
	SnapshotFailed    Code = "SNAPSHOT_FAILED"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

// catalog maps canonical codes to guidance. Messages can be overridden per error.
var catalog = map[Code]Entry{
	Validation:     {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry", "See examples in tool description"}},
	CursorInvalid:  {Code: CursorInvalid, Message: "cursor is invalid for current listing", Retryable: true, NextSteps: []string{"Restart pagination from the first page"}},
	FormulaInvalid: {Code: FormulaInvalid, Message: "formula could not be validated", Retryable: true, NextSteps: []string{"Start the formula with =", "Call repair_formula for automatic fixes"}},

	BusyResource: {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
	Timeout:      {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Ask a simpler question or send a smaller range"}},
	RateLimited:  {Code: RateLimited, Message: "request limit for this plan reached", Retryable: true, NextSteps: []string{"Wait for the retry hint before sending again", "Upgrade the plan tier for a higher limit"}},

	ServiceUnavailable: {Code: ServiceUnavailable, Message: "AI service unavailable. Please try again later.", Retryable: true, NextSteps: []string{"Retry in a few seconds"}},
	AgentFailed:        {Code: AgentFailed, Message: "the reasoning loop did not produce a plan", Retryable: true, NextSteps: []string{"Break the request into smaller steps"}},

	SessionNotFound: {Code: SessionNotFound, Message: "session not found or expired", Retryable: false, NextSteps: []string{"Call list_sessions to see active sessions", "Start a new conversation"}},
	PatternNotFound: {Code: PatternNotFound, Message: "no formula pattern matched", Retryable: true, NextSteps: []string{"Describe the goal with keywords like lookup, sum by, count, unique"}},

	SnapshotFailed:    {Code: SnapshotFailed, Message: "failed to read sheet snapshot", Retryable: true, NextSteps: []string{"Send cells as an A1 map", "Verify the workbook path and sheet name"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported workbook format", Retryable: false, NextSteps: []string{"Convert to .xlsx and retry"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "insufficient permissions to access path", Retryable: false, NextSteps: []string{"Choose a file inside SHEETMIND_ALLOWED_DIRS"}},
}

// Lookup returns the catalog entry for code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// normalize builds a standard error string including next steps for MCP clients that
// surface only a message string. Format: "CODE: message" followed by a guidance tail.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := catalog[code]
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// FromText parses a "CODE: message" string, enriches it with catalog guidance,
// and returns an MCP tool error result.
func FromText(text string) *mcp.CallToolResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return mcp.NewToolResultError(normalize(Validation, ""))
	}
	code, msg, _ := strings.Cut(t, ":")
	return mcp.NewToolResultError(normalize(Code(strings.TrimSpace(code)), strings.TrimSpace(msg)))
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, message))
}

// Wrapf formats details and returns an MCP error result for the code.
func Wrapf(code Code, format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, fmt.Sprintf(format, args...)))
}

// Text renders the normalized message without wrapping it in a result, for
// CLI output and logs.
func Text(code Code, message string) string { return normalize(code, message) }
