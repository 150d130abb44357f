package agent

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/vinodismyname/sheetmind/internal/patterns"
	"github.com/vinodismyname/sheetmind/internal/sheet"
)

// PromptData is everything the reasoning prompt renders.
type PromptData struct {
	Tools          string
	ToolNames      string
	Metadata       string
	SheetName      string
	LastRow        int
	UniqueFillRow  string
	GroupColumns   string
	NumericColumns string
	Context        string
	History        string
	CheatSheet     string
	Patterns       string
	CategoryDocs   string
	Question       string
	Scratchpad     string
}

var reactTemplate = template.Must(template.New("react").Parse(`You are a Google Sheets expert assistant. YOUR PRIMARY JOB IS TO CREATE SHEETS AND FORMULAS.

AVAILABLE TOOLS:
{{.Tools}}

PRE-ANALYZED SHEET METADATA:
{{.Metadata}}

CRITICAL VALUES (use these exactly, do not recompute them):
- Source sheet name: {{.SheetName}}
- Last data row: {{.LastRow}}
- Group-by columns: {{.GroupColumns}}
- Numeric columns: {{.NumericColumns}}

CURRENT SPREADSHEET CONTEXT:
{{.Context}}
{{if .History}}
CONVERSATION HISTORY:
{{.History}}
{{end}}
INSTRUCTIONS:
1. Call lookup_formula BEFORE writing any aggregation formula and follow the pattern it returns.
2. NEVER set fillDown=true on UNIQUE, FILTER, SORT or SEQUENCE formulas. They expand on their own.
3. For per-group formulas use auto_fill_down with lastRow = 1 + the unique count from get_chart_range ({{.UniqueFillRow}}).
4. SUMIF cannot multiply inside its sum range. Use SUMPRODUCT for weighted totals.
5. Never use full-column ranges like A:A. Always bound ranges to row {{.LastRow}}, e.g. '{{.SheetName}}'!A2:A{{.LastRow}}.
6. Quote sheet names in references: '{{.SheetName}}'!C2:C{{.LastRow}}.
7. Create a new sheet with create_sheet BEFORE writing formulas into it.

FORMULA CHEAT SHEET:
{{.CheatSheet}}

KNOWN FORMULA PATTERNS:
{{.Patterns}}
{{if .CategoryDocs}}
{{.CategoryDocs}}
{{end}}
RESPONSE FORMAT:
Question: the input question you must answer
Thought: what to do next
Action: the tool to use, one of [{{.ToolNames}}]
Action Input: the tool input, a JSON object or a single plain value
Observation: the tool result
... (Thought/Action/Action Input/Observation can repeat)
Thought: I now know the final answer
Final Answer: a short summary of what was done for the user

ACTION INPUT EXAMPLES:
Action: create_sheet
Action Input: Summary
Action: set_formula
Action Input: {"sheet": "Summary", "cell": "A2", "formula": "=UNIQUE('{{.SheetName}}'!A2:A{{.LastRow}})", "fillDown": false}
Action: auto_fill_down
Action Input: {"sheet": "Summary", "sourceCell": "B2", "lastRow": 5}

GROUPED SUMMARY WITH CHART WORKFLOW:
1. get_chart_range on the group column to learn the unique count and fillDownLastRow.
2. lookup_formula for the aggregation.
3. create_sheet for the summary.
4. set_values for the header row, then format_headers.
5. set_formula with UNIQUE in A2 (fillDown false).
6. set_formula with the per-group aggregation in B2.
7. auto_fill_down from B2 to fillDownLastRow.
8. create_chart (bar, line, pie, doughnut or scatter) on the summary sheet with startRow 2 and endRow = fillDownLastRow.

Question: {{.Question}}
{{.Scratchpad}}`))

// BuildPrompt renders the reasoning prompt for one loop step.
func BuildPrompt(reg *Registry, inv *Invocation, question, history, scratchpad string) (string, error) {
	meta := metadataOf(inv.Snapshot)
	catalog := inv.Catalog
	if catalog == nil {
		catalog = patterns.Default()
	}
	data := PromptData{
		Tools:          reg.Catalog(),
		ToolNames:      strings.Join(reg.Names(), ", "),
		Metadata:       meta.Describe(),
		SheetName:      inv.SheetName(),
		LastRow:        inv.LastRow(),
		UniqueFillRow:  fillRowHint(meta),
		GroupColumns:   meta.Labeled(meta.SuggestedGroupBy),
		NumericColumns: meta.Labeled(meta.SuggestedAggregate),
		Context:        inv.Snapshot.Brief(),
		History:        strings.TrimSpace(history),
		CheatSheet:     catalog.CheatSheet(),
		Patterns:       catalog.Summary(),
		CategoryDocs:   catalog.CategoryDocs(catalog.Classify(question)),
		Question:       question,
		Scratchpad:     scratchpad,
	}
	var b strings.Builder
	if err := reactTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func metadataOf(s *sheet.Snapshot) sheet.Metadata {
	if s == nil || s.Grid == nil {
		return sheet.Metadata{SheetName: s.SheetName(), LastRow: s.LastRow()}
	}
	return s.Meta
}

func fillRowHint(m sheet.Metadata) string {
	if len(m.SuggestedGroupBy) == 0 {
		return "see get_chart_range"
	}
	c, ok := m.Column(m.SuggestedGroupBy[0])
	if !ok {
		return "see get_chart_range"
	}
	return "for column " + c.Letter + " that is " + strconv.Itoa(1+c.UniqueCount)
}
