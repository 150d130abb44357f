package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/sheetmind/internal/assistant"
	"github.com/vinodismyname/sheetmind/internal/llm"
	"github.com/vinodismyname/sheetmind/internal/memory"
	"github.com/vinodismyname/sheetmind/internal/ratelimit"
	"github.com/vinodismyname/sheetmind/internal/security"
	"github.com/vinodismyname/sheetmind/internal/sheet"
	"github.com/vinodismyname/sheetmind/pkg/pagination"
)

type toolResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Structured json.RawMessage `json:"structuredContent"`
}

func (r toolResult) text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

func call(t *testing.T, srv *server.MCPServer, name string, args map[string]any) toolResult {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	out := srv.HandleMessage(context.Background(), msg)
	raw, err := json.Marshal(out)
	require.NoError(t, err)

	var envelope struct {
		Result *toolResult `json:"result"`
		Error  any         `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope), string(raw))
	require.Nil(t, envelope.Error, string(raw))
	require.NotNil(t, envelope.Result, string(raw))
	return *envelope.Result
}

func answering(text string) llm.Provider {
	return llm.ProviderFunc{ID: "stub", Fn: func(context.Context, llm.Request) (string, error) {
		return text, nil
	}}
}

func failing() llm.Provider {
	return llm.ProviderFunc{ID: "down", Fn: func(context.Context, llm.Request) (string, error) {
		return "", errors.New("connection refused")
	}}
}

type fixture struct {
	srv *server.MCPServer
	reg *Registry
	mem *memory.Manager
	dir string
}

func newFixture(t *testing.T, provider llm.Provider, admin bool, limiter *ratelimit.Limiter) fixture {
	t.Helper()
	dir := t.TempDir()
	sec, err := security.NewManager([]string{dir}, nil)
	require.NoError(t, err)

	svc := llm.NewService([]llm.Provider{provider}, llm.Options{})
	mem := memory.NewManager(memory.Options{})
	asst := assistant.New(svc, nil, assistant.Options{Memory: mem, Limiter: limiter, Logger: zerolog.Nop()})

	srv := server.NewMCPServer("sheetmind-test", "test", server.WithToolCapabilities(true))
	reg := New()
	RegisterTools(srv, reg, Deps{
		Assistant: asst,
		LLM:       svc,
		Memory:    mem,
		Loader:    sheet.NewLoader(sec, 1000),
		Filter:    NewAdminToolFilter(admin),
	})
	return fixture{srv: srv, reg: reg, mem: mem, dir: dir}
}

func TestRegistry_ToolsSorted(t *testing.T) {
	f := newFixture(t, answering("ok"), true, nil)
	tools, err := f.reg.Tools(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(tools))
	for _, tl := range tools {
		names = append(names, tl.Name)
	}
	require.Equal(t, []string{
		"analyze_sheet", "ask", "clear_session", "explain_formula", "find_formula_pattern",
		"fix_formula", "list_sessions", "repair_formula", "validate_formula",
	}, names)

	_, ok := f.reg.Get("ask")
	require.True(t, ok)
	_, ok = f.reg.Get("open_workbook")
	require.False(t, ok)

	groups := f.reg.Groups()
	require.Equal(t, []string{"clear_session", "list_sessions"}, groups[GroupAdmin])
	require.Equal(t, []string{"analyze_sheet", "ask"}, groups[GroupAssistant])
	require.Len(t, groups[GroupFormula], 5)
}

func TestAdminToolFilter(t *testing.T) {
	tools := []mcp.Tool{{Name: "ask"}, {Name: "list_sessions"}, {Name: "clear_session"}}

	hidden := NewAdminToolFilter(false).FilterTools(context.Background(), tools)
	require.Len(t, hidden, 1)
	require.Equal(t, "ask", hidden[0].Name)

	require.Len(t, NewAdminToolFilter(true).FilterTools(context.Background(), tools), 3)
	require.True(t, NewAdminToolFilter(false).Allows("validate_formula"))
	require.False(t, NewAdminToolFilter(false).Allows("clear_session"))
}

func TestValidateFormulaTool(t *testing.T) {
	f := newFixture(t, answering("ok"), false, nil)

	res := call(t, f.srv, "validate_formula", map[string]any{"formula": "=SUM(A1:A10"})
	require.False(t, res.IsError)
	var out ValidateFormulaOutput
	require.NoError(t, json.Unmarshal(res.Structured, &out))
	require.False(t, out.Valid)
	require.NotEmpty(t, out.Errors)
	require.True(t, strings.HasPrefix(res.text(), "invalid: "))

	res = call(t, f.srv, "validate_formula", map[string]any{"formula": "=SUM(A2:A10)"})
	require.NoError(t, json.Unmarshal(res.Structured, &out))
	require.True(t, out.Valid)
	require.Equal(t, "valid", res.text())
}

func TestRepairFormulaTool(t *testing.T) {
	f := newFixture(t, answering("ok"), false, nil)

	res := call(t, f.srv, "repair_formula", map[string]any{"formula": "=SUM(A:A)", "last_row": 50})
	require.False(t, res.IsError, res.text())
	var out RepairFormulaOutput
	require.NoError(t, json.Unmarshal(res.Structured, &out))
	require.Equal(t, "=SUM(A:A)", out.Original)
	require.Equal(t, "=SUM(A2:A50)", out.Formula)
	require.True(t, out.Changed)
	require.True(t, out.Valid)
	require.NotEmpty(t, out.Diff)
	require.Contains(t, res.text(), "diff: ")

	res = call(t, f.srv, "repair_formula", map[string]any{"formula": ""})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "VALIDATION:"))
}

func TestFindFormulaPatternTool_Paging(t *testing.T) {
	f := newFixture(t, answering("ok"), false, nil)

	res := call(t, f.srv, "find_formula_pattern", map[string]any{"query": "sum sales by region", "sheet": "Sales", "last_row": 120, "page_size": 1})
	require.False(t, res.IsError, res.text())
	var first FindPatternOutput
	require.NoError(t, json.Unmarshal(res.Structured, &first))
	require.Len(t, first.Matches, 1)
	require.NotNil(t, first.Recommendation)
	require.True(t, first.Recommendation.Found)
	require.Equal(t, first.Matches[0].Name, first.Recommendation.FormulaName)
	require.Greater(t, first.Meta.Total, 1)
	require.True(t, first.Meta.Truncated)
	require.NotEmpty(t, first.Meta.NextCursor)

	res = call(t, f.srv, "find_formula_pattern", map[string]any{"query": "sum sales by region", "cursor": first.Meta.NextCursor})
	require.False(t, res.IsError, res.text())
	var second FindPatternOutput
	require.NoError(t, json.Unmarshal(res.Structured, &second))
	require.Len(t, second.Matches, 1)
	require.Nil(t, second.Recommendation)
	require.NotEqual(t, first.Matches[0].ID, second.Matches[0].ID)

	// A cursor only resumes the query it was issued for.
	res = call(t, f.srv, "find_formula_pattern", map[string]any{"query": "count unique customers", "cursor": first.Meta.NextCursor})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "CURSOR_INVALID:"))
}

func TestFindFormulaPatternTool_NoMatch(t *testing.T) {
	f := newFixture(t, answering("ok"), false, nil)
	res := call(t, f.srv, "find_formula_pattern", map[string]any{"query": "zzqx"})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "PATTERN_NOT_FOUND:"))
}

func TestFindFormulaPatternTool_WrongUnitCursor(t *testing.T) {
	f := newFixture(t, answering("ok"), false, nil)
	cur, err := pagination.EncodeCursor(pagination.Cursor{U: pagination.UnitSessions, Off: 1, Ps: 1})
	require.NoError(t, err)
	res := call(t, f.srv, "find_formula_pattern", map[string]any{"query": "lookup", "cursor": cur})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "CURSOR_INVALID:"))
}

func TestExplainFormulaTool(t *testing.T) {
	f := newFixture(t, answering("Adds the values in A2 to A10."), false, nil)
	res := call(t, f.srv, "explain_formula", map[string]any{"formula": "=SUM(A2:A10)"})
	require.False(t, res.IsError)
	var out ExplainFormulaOutput
	require.NoError(t, json.Unmarshal(res.Structured, &out))
	require.Equal(t, "Adds the values in A2 to A10.", out.Explanation)
	require.Nil(t, out.Detailed)

	detailed := `{"summary":"Totals a column","steps":[{"step":1,"function":"SUM","description":"adds"}],"simpler_alternative":null,"full_explanation":"SUM adds."}`
	f = newFixture(t, answering(detailed), false, nil)
	res = call(t, f.srv, "explain_formula", map[string]any{"formula": "=SUM(A2:A10)", "detailed": true})
	require.False(t, res.IsError)
	require.NoError(t, json.Unmarshal(res.Structured, &out))
	require.NotNil(t, out.Detailed)
	require.Equal(t, "Totals a column", out.Detailed.Summary)
	require.Len(t, out.Detailed.Steps, 1)
}

func TestExplainFormulaTool_Unavailable(t *testing.T) {
	f := newFixture(t, failing(), false, nil)
	res := call(t, f.srv, "explain_formula", map[string]any{"formula": "=SUM(A2:A10)"})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "SERVICE_UNAVAILABLE:"))
}

func TestFixFormulaTool(t *testing.T) {
	answer := `{"fixed_formula":"=VLOOKUP(A2,B2:C50,2,FALSE)","what_was_wrong":"missing range lock","explanation":"exact match"}`
	f := newFixture(t, answering(answer), false, nil)
	res := call(t, f.srv, "fix_formula", map[string]any{"formula": "=VLOOKUP(A2,B:C,2)", "error": "#N/A"})
	require.False(t, res.IsError, res.text())
	var out FixFormulaOutput
	require.NoError(t, json.Unmarshal(res.Structured, &out))
	require.Equal(t, "=VLOOKUP(A2,B2:C50,2,FALSE)", out.FixedFormula)
	require.True(t, out.Valid)
	require.Equal(t, "missing range lock -> =VLOOKUP(A2,B2:C50,2,FALSE)", res.text())
}

func TestAnalyzeSheetTool(t *testing.T) {
	f := newFixture(t, answering("ok"), false, nil)
	cells := map[string]any{
		"A1": "Region", "B1": "Sales",
		"A2": "East", "B2": 10,
		"A3": "West", "B3": 20,
		"A4": "East", "B4": 5,
	}
	res := call(t, f.srv, "analyze_sheet", map[string]any{"cells": cells, "sheet_name": "Data"})
	require.False(t, res.IsError, res.text())
	var out AnalyzeSheetOutput
	require.NoError(t, json.Unmarshal(res.Structured, &out))
	require.Equal(t, "Data", out.Metadata.SheetName)
	require.Equal(t, 4, out.Metadata.LastRow)
	require.Equal(t, 2, out.Metadata.TotalColumns)
	require.NotEmpty(t, out.Description)
	require.NotEmpty(t, out.QuickActions)

	res = call(t, f.srv, "analyze_sheet", map[string]any{})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "VALIDATION:"))
}

func TestAnalyzeSheetTool_Path(t *testing.T) {
	f := newFixture(t, answering("ok"), false, nil)
	path := filepath.Join(f.dir, "snap.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sheetName":"Saved","cells":{"A1":"Qty","A2":1,"A3":2}}`), 0o600))

	res := call(t, f.srv, "analyze_sheet", map[string]any{"path": path})
	require.False(t, res.IsError, res.text())
	var out AnalyzeSheetOutput
	require.NoError(t, json.Unmarshal(res.Structured, &out))
	require.Equal(t, "Saved", out.Metadata.SheetName)

	outside := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(outside, []byte(`{"cells":{"A1":"x"}}`), 0o600))
	res = call(t, f.srv, "analyze_sheet", map[string]any{"path": outside})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "PERMISSION_DENIED:"))

	csv := filepath.Join(f.dir, "data.csv")
	require.NoError(t, os.WriteFile(csv, []byte("a,b\n"), 0o600))
	res = call(t, f.srv, "analyze_sheet", map[string]any{"path": csv})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "UNSUPPORTED_FORMAT:"))
}

func TestAskTool(t *testing.T) {
	f := newFixture(t, answering("Use =SUM(B2:B4) to total sales."), true, nil)
	res := call(t, f.srv, "ask", map[string]any{
		"message": "how do I total sales?",
		"user_id": "u1",
		"cells":   map[string]any{"A1": "Region", "B1": "Sales", "A2": "East", "B2": 10},
	})
	require.False(t, res.IsError, res.text())
	require.Equal(t, "Use =SUM(B2:B4) to total sales.", res.text())

	var out assistant.Response
	require.NoError(t, json.Unmarshal(res.Structured, &out))
	require.NotEmpty(t, out.ConversationID)
	require.Equal(t, 1, f.mem.Count())

	// The conversation shows up in the admin listing.
	res = call(t, f.srv, "list_sessions", map[string]any{})
	require.False(t, res.IsError, res.text())
	var list ListSessionsOutput
	require.NoError(t, json.Unmarshal(res.Structured, &list))
	require.Len(t, list.Sessions, 1)
	require.Equal(t, out.ConversationID, list.Sessions[0].ID)
	require.Equal(t, 1, list.Sessions[0].Exchanges)
}

func TestAskTool_Errors(t *testing.T) {
	f := newFixture(t, failing(), false, nil)
	res := call(t, f.srv, "ask", map[string]any{"message": "hello there, what is in column B?"})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "SERVICE_UNAVAILABLE:"), res.text())

	res = call(t, f.srv, "ask", map[string]any{"message": ""})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "VALIDATION:"), res.text())

	res = call(t, f.srv, "ask", map[string]any{"message": "hi", "tier": "platinum"})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "VALIDATION:"), res.text())
}

func TestAskTool_RateLimited(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Options{PerMinute: map[string]int{"free": 1}})
	f := newFixture(t, answering("ok"), false, limiter)

	res := call(t, f.srv, "ask", map[string]any{"message": "what is XLOOKUP?", "user_id": "u1", "tier": "free"})
	require.False(t, res.IsError, res.text())

	res = call(t, f.srv, "ask", map[string]any{"message": "and INDEX MATCH?", "user_id": "u1", "tier": "free"})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "RATE_LIMITED:"), res.text())
}

func TestSessionTools(t *testing.T) {
	f := newFixture(t, answering("ok"), true, nil)
	for _, id := range []string{"a", "b", "c"} {
		f.mem.Get(id).Add("q", "a")
	}

	res := call(t, f.srv, "list_sessions", map[string]any{"page_size": 2})
	require.False(t, res.IsError)
	var page ListSessionsOutput
	require.NoError(t, json.Unmarshal(res.Structured, &page))
	require.Len(t, page.Sessions, 2)
	require.Equal(t, 3, page.Meta.Total)
	require.Equal(t, "c", page.Sessions[0].ID)
	require.NotEmpty(t, page.Meta.NextCursor)

	res = call(t, f.srv, "list_sessions", map[string]any{"cursor": page.Meta.NextCursor})
	require.NoError(t, json.Unmarshal(res.Structured, &page))
	require.Len(t, page.Sessions, 1)
	require.Equal(t, "a", page.Sessions[0].ID)
	require.False(t, page.Meta.Truncated)

	res = call(t, f.srv, "clear_session", map[string]any{"session_id": "b"})
	require.False(t, res.IsError, res.text())
	var cleared ClearSessionOutput
	require.NoError(t, json.Unmarshal(res.Structured, &cleared))
	require.NotNil(t, cleared.Summary)
	require.Zero(t, cleared.Summary.MessageCount)

	res = call(t, f.srv, "clear_session", map[string]any{"session_id": "b", "remove": true})
	require.False(t, res.IsError)
	require.Equal(t, 2, f.mem.Count())

	res = call(t, f.srv, "clear_session", map[string]any{"session_id": "b"})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "SESSION_NOT_FOUND:"))
}

func TestSessionTools_Disabled(t *testing.T) {
	f := newFixture(t, answering("ok"), false, nil)
	res := call(t, f.srv, "list_sessions", map[string]any{})
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(res.text(), "PERMISSION_DENIED:"))
}
