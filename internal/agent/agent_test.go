package agent

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/sheetmind/internal/actions"
	"github.com/vinodismyname/sheetmind/internal/sheet"
)

func dataSnapshot() *sheet.Snapshot {
	cells := map[string]any{"A1": "Region", "B1": "Sales"}
	regions := []string{"East", "West", "East", "North", "West", "East", "North", "East"}
	for i, r := range regions {
		row := strconv.Itoa(i + 2)
		cells["A"+row] = r
		cells["B"+row] = float64((i + 1) * 10)
	}
	return sheet.NewSnapshot(sheet.Input{SheetName: "Data", Cells: cells})
}

// scripted replays raw model turns in order and records every prompt.
type scripted struct {
	mu      sync.Mutex
	turns   []string
	prompts []string
}

func (s *scripted) Decide(_ context.Context, prompt string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.turns) == 0 {
		return Decision{}, errors.New("script exhausted")
	}
	next := s.turns[0]
	s.turns = s.turns[1:]
	return ParseReAct(next)
}

func act(tool, input string) string {
	return "Thought: next step\nAction: " + tool + "\nAction Input: " + input
}

func final(answer string) string {
	return "Thought: I now know the final answer\nFinal Answer: " + answer
}

func newTestAgent(t *testing.T, d Decider, opts Options) *Agent {
	t.Helper()
	reg, err := NewDefaultRegistry()
	require.NoError(t, err)
	return New(d, reg, opts)
}

func TestParseReAct(t *testing.T) {
	d, err := ParseReAct("Thought: look at headers\nAction: get_headers\nAction Input: {}\nObservation: made up")
	require.NoError(t, err)
	require.Equal(t, "look at headers", d.Thought)
	require.Equal(t, "get_headers", d.Tool)
	require.Equal(t, "{}", d.Input)

	d, err = ParseReAct("Thought: done\nFinal Answer: Created the summary.")
	require.NoError(t, err)
	require.True(t, d.IsFinal)
	require.Equal(t, "Created the summary.", d.Final)

	d, err = ParseReAct("Action: `create_sheet`\nAction Input: ```\nSummary\n```")
	require.NoError(t, err)
	require.Equal(t, "create_sheet", d.Tool)
	require.Equal(t, "Summary", d.Input)

	_, err = ParseReAct("I think the answer is 42")
	require.ErrorIs(t, err, ErrMissingAction)

	d, err = ParseReAct("Thought: make it\nAction: create_sheet\nAction Input: Summary\nThought: done\nFinal Answer: Created the summary.")
	require.ErrorIs(t, err, ErrActionAndFinal)
	require.True(t, IsFormatError(err))
	require.Empty(t, d.Tool)
	require.False(t, d.IsFinal)
	require.Equal(t, "make it", d.Thought)

	d, err = ParseReAct("Thought: done\nFinal Answer: all set\nAction: create_sheet\nAction Input: Summary")
	require.ErrorIs(t, err, ErrActionAndFinal)
	require.False(t, d.IsFinal)

	d, err = ParseReAct("Thought: look\nAction: get_row\nAction Input: 3\nThought: then the headers")
	require.NoError(t, err)
	require.Equal(t, "get_row", d.Tool)
	require.Equal(t, "3", d.Input)
}

func TestSanitizeJSON(t *testing.T) {
	require.Equal(t, `{"a": true, "b": false, "c": null, "d": "Trueish"}`,
		SanitizeJSON(`{"a": True, "b": False, "c": None, "d": "Trueish"}`))

	obj, ok := ParseObject(`input_json={"fillDown": True}`)
	require.True(t, ok)
	require.Equal(t, true, obj["fillDown"])

	_, ok = ParseObject("Summary")
	require.False(t, ok)
}

func TestRegistry_RecoversMalformedInput(t *testing.T) {
	reg, err := NewDefaultRegistry()
	require.NoError(t, err)
	inv := NewInvocation(dataSnapshot(), nil)
	ctx := context.Background()

	obs, err := reg.Call(ctx, inv, "set_formula", "not json at all")
	require.NoError(t, err)
	require.JSONEq(t, `{"error":"Invalid JSON input. Expected {\"sheet\": \"...\", \"cell\": \"...\", \"formula\": \"...\"}"}`, obs)
	require.Zero(t, inv.Queue.Len())

	obs, err = reg.Call(ctx, inv, "create_sheet", `name="Summary"`)
	require.NoError(t, err)
	require.Equal(t, "Created sheet 'Summary'", obs)

	obs, err = reg.Call(ctx, inv, "create_sheet", `{"name": "Summary"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"already_queued","name":"Summary"}`, obs)

	obs, err = reg.Call(ctx, inv, "get_row", "3")
	require.NoError(t, err)
	require.Contains(t, obs, `"A": "West"`)

	obs, err = reg.Call(ctx, inv, "get_row", "99")
	require.NoError(t, err)
	require.JSONEq(t, `{"error":"Row 99 not found"}`, obs)

	obs, err = reg.Call(ctx, inv, "count_rows", "please")
	require.NoError(t, err)
	require.Equal(t, "8", obs)

	_, err = reg.Call(ctx, inv, "explode", "{}")
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistry_ReadsWithoutSnapshot(t *testing.T) {
	reg, err := NewDefaultRegistry()
	require.NoError(t, err)
	obs, err := reg.Call(context.Background(), NewInvocation(nil, nil), "get_headers", "")
	require.NoError(t, err)
	require.JSONEq(t, `{"error":"No sheet data available"}`, obs)
}

func TestSetFormula_BlocksFillDownOnSpillFormulas(t *testing.T) {
	reg, err := NewDefaultRegistry()
	require.NoError(t, err)

	for _, fn := range []string{"UNIQUE", "FILTER", "SORT", "SEQUENCE"} {
		inv := NewInvocation(dataSnapshot(), nil)
		input := `{"sheet": "Summary", "cell": "A2", "formula": "=` + fn + `('Data'!A2:A9)", "fillDown": True}`
		obs, err := reg.Call(context.Background(), inv, "set_formula", input)
		require.NoError(t, err)
		require.Contains(t, obs, "FORMULA VALIDATION NOTES:", fn)
		require.Contains(t, obs, "BLOCKED fillDown=true", fn)

		out := inv.Queue.Drain()
		require.Len(t, out, 1)
		require.False(t, out[0].(actions.SetFormula).FillDown, fn)
	}
}

func TestSetFormula_RepairsAgainstLastRow(t *testing.T) {
	reg, err := NewDefaultRegistry()
	require.NoError(t, err)
	inv := NewInvocation(dataSnapshot(), nil)
	obs, err := reg.Call(context.Background(), inv, "set_formula",
		`{"sheet": "Summary", "cell": "B2", "formula": "=SUMIF('Data'!A:A, A2, 'Data'!B:B)"}`)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(obs, "Set Summary!B2 = =SUMIF('Data'!A2:A9, A2, 'Data'!B2:B9)"), obs)
}

func TestRun_GroupedSummaryCreatesSheetFirst(t *testing.T) {
	d := &scripted{turns: []string{
		act("get_chart_range", "A"),
		act("lookup_formula", "sum by category"),
		act("create_sheet", "Region Totals"),
		act("set_values", `{"sheet": "Region Totals", "range": "A1:B1", "values": [["Region", "Total"]]}`),
		act("set_formula", `{"sheet": "Region Totals", "cell": "A2", "formula": "=UNIQUE('Data'!A2:A9)", "fillDown": true}`),
		act("set_formula", `{"sheet": "Region Totals", "cell": "B2", "formula": "=SUMIF('Data'!A2:A9, A2, 'Data'!B2:B9)"}`),
		act("auto_fill_down", `{"sheet": "Region Totals", "sourceCell": "B2", "lastRow": 4}`),
		act("create_sheet", "Region Totals"),
		final("Created a Region Totals sheet."),
	}}
	res := newTestAgent(t, d, Options{}).Run(context.Background(), Request{
		Message:  "sum sales by region",
		Snapshot: dataSnapshot(),
	})

	require.NoError(t, res.Err)
	require.Equal(t, TerminationFinal, res.Termination)
	require.Equal(t, "Created a Region Totals sheet.", res.Answer)
	require.Len(t, res.Trace, 8)
	require.Equal(t, 9, res.Iterations)

	require.Len(t, res.Actions, 5, "duplicate createSheet is dropped")
	require.Equal(t, actions.CreateSheet{Name: "Region Totals"}, res.Actions[0])
	unique := res.Actions[2].(actions.SetFormula)
	require.False(t, unique.FillDown)
	require.Equal(t, actions.VerdictPassed, res.Verification.Verdict)

	first := d.prompts[0]
	require.Contains(t, first, "Source sheet name: Data")
	require.Contains(t, first, "Last data row: 9")
	require.Contains(t, first, "Group-by columns: A (Region)")
	require.Contains(t, first, "Question: sum sales by region")
	require.Contains(t, d.prompts[1], "Observation: {")
}

func TestRun_IterationBudget(t *testing.T) {
	d := DeciderFunc(func(context.Context, string) (Decision, error) {
		return Decision{Thought: "again", Tool: "create_sheet", Input: "Loop"}, nil
	})
	res := newTestAgent(t, d, Options{Limits: Limits{MaxIterations: 3, MaxDuration: time.Minute}}).
		Run(context.Background(), Request{Message: "sum by region", Snapshot: dataSnapshot()})

	require.Equal(t, TerminationMaxIterations, res.Termination)
	require.Equal(t, MsgTooComplex, res.Answer)
	require.Empty(t, res.Actions)
	require.NotNil(t, res.Actions)
	require.Len(t, res.Trace, 3)
	require.Nil(t, res.Verification)
}

func TestRun_TimeBudget(t *testing.T) {
	d := DeciderFunc(func(ctx context.Context, _ string) (Decision, error) {
		<-ctx.Done()
		return Decision{}, ctx.Err()
	})
	res := newTestAgent(t, d, Options{Limits: Limits{MaxIterations: 5, MaxDuration: 20 * time.Millisecond}}).
		Run(context.Background(), Request{Message: "x", Snapshot: dataSnapshot()})

	require.Equal(t, TerminationTimeout, res.Termination)
	require.Equal(t, MsgTimeout, res.Answer)
	require.Empty(t, res.Actions)
	require.Empty(t, res.Trace)
}

func TestRun_DeciderFailureIsReported(t *testing.T) {
	d := &scripted{turns: []string{act("count_rows", "")}}
	res := newTestAgent(t, d, Options{}).Run(context.Background(), Request{Message: "x", Snapshot: dataSnapshot()})

	require.Equal(t, TerminationError, res.Termination)
	require.Equal(t, MsgUnexpectedErr, res.Answer)
	require.Error(t, res.Err)
	require.Len(t, res.Trace, 1)
	require.Equal(t, "8", res.Trace[0].Result)
}

func TestRun_RecoversFromBadTurns(t *testing.T) {
	d := &scripted{turns: []string{
		"I am not sure what to do",
		act("explode", "{}"),
		act("set_formula", "oops"),
		final("Nothing to change."),
	}}
	res := newTestAgent(t, d, Options{}).Run(context.Background(), Request{Message: "x", Snapshot: dataSnapshot()})

	require.Equal(t, TerminationFinal, res.Termination)
	require.Equal(t, 4, res.Iterations)
	require.Len(t, res.Trace, 2, "format errors are not trace steps")
	require.True(t, strings.HasPrefix(res.Trace[0].Result, "explode is not a valid tool, try one of [get_headers,"))
	require.Contains(t, res.Trace[1].Result, "Invalid JSON input")
	require.Contains(t, d.prompts[1], "Invalid Format: Missing 'Action:' after 'Thought:'")
	require.Empty(t, res.Actions)
}

func TestRun_ActionWithFinalAnswerQueuesNothing(t *testing.T) {
	d := &scripted{turns: []string{
		"Thought: make it\nAction: create_sheet\nAction Input: Summary\nThought: done\nFinal Answer: Created the summary.",
		act("create_sheet", "Summary"),
		final("Created the summary."),
	}}
	res := newTestAgent(t, d, Options{}).Run(context.Background(), Request{Message: "x", Snapshot: dataSnapshot()})

	require.Equal(t, TerminationFinal, res.Termination)
	require.Equal(t, 3, res.Iterations)
	require.Contains(t, d.prompts[1], "both a final answer and a parse-able action")
	require.Equal(t, actions.List{actions.CreateSheet{Name: "Summary"}}, res.Actions)
}

func TestInvocation_BindResetsQueue(t *testing.T) {
	inv := NewInvocation(dataSnapshot(), nil)
	_, added := inv.Queue.Append(actions.CreateSheet{Name: "Summary"})
	require.True(t, added)
	require.Equal(t, "Data", inv.SheetName())

	next := sheet.NewSnapshot(sheet.Input{SheetName: "Orders", Cells: map[string]any{"A1": "Id", "A2": 1.0}})
	inv.Bind(next)
	require.Same(t, next, inv.Snapshot)
	require.Equal(t, "Orders", inv.SheetName())
	require.Zero(t, inv.Queue.Len())

	// The earlier createSheet no longer counts as queued.
	_, added = inv.Queue.Append(actions.CreateSheet{Name: "Summary"})
	require.True(t, added)
}

func TestRun_TraceCaps(t *testing.T) {
	long := `{"sheet": "S", "range": "A1", "values": [["` + strings.Repeat("x", 600) + `"]]}`
	d := &scripted{turns: []string{act("set_values", long), act("get_column_values", `{"column": "A", "limit": 50}`), final("ok")}}
	res := newTestAgent(t, d, Options{}).Run(context.Background(), Request{Message: "x", Snapshot: dataSnapshot()})
	require.Len(t, res.Trace, 2)
	require.Len(t, res.Trace[0].ToolInput, 200)
	require.LessOrEqual(t, len([]rune(res.Trace[1].Result)), 500)
}

func TestRun_StrictPolicyRequestsOneCorrection(t *testing.T) {
	d := &scripted{turns: []string{
		act("set_formula", `{"sheet": "Data", "cell": "D2", "formula": "=VLOKUP(A2,'Data'!A2:B9,2,FALSE)"}`),
		final("done"),
		act("set_formula", `{"sheet": "Data", "cell": "D2", "formula": "=SUM('Data'!B2:B9)"}`),
		final("fixed"),
	}}
	res := newTestAgent(t, d, Options{Policy: actions.PolicyStrict}).
		Run(context.Background(), Request{Message: "x", Snapshot: dataSnapshot()})

	require.Equal(t, TerminationFinal, res.Termination)
	require.Equal(t, "fixed", res.Answer)
	require.Equal(t, actions.List{actions.SetFormula{Sheet: "Data", Cell: "D2", Formula: "=SUM('Data'!B2:B9)"}}, res.Actions)
	require.False(t, res.Verification.Blocking)
	require.Contains(t, d.prompts[2], "Verification rejected the plan")
	require.Contains(t, d.prompts[2], "Unknown function: VLOKUP")
}

func TestRun_AdvisoryPolicyDeliversFlaggedPlan(t *testing.T) {
	d := &scripted{turns: []string{
		act("set_formula", `{"sheet": "Data", "cell": "D2", "formula": "=VLOKUP(A2,'Data'!A2:B9,2,FALSE)"}`),
		final("done"),
	}}
	res := newTestAgent(t, d, Options{}).Run(context.Background(), Request{Message: "x", Snapshot: dataSnapshot()})
	require.Len(t, res.Actions, 1)
	require.Equal(t, actions.VerdictNeedsReview, res.Verification.Verdict)
	require.Contains(t, res.Verification.Issues, "Action 1: Unknown function: VLOKUP")
}
