package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vinodismyname/sheetmind/internal/actions"
	"github.com/vinodismyname/sheetmind/internal/formula"
	"github.com/vinodismyname/sheetmind/internal/sheet"
)

// Header styling applied by format_headers.
const (
	headerBackground = "#4472C4"
	headerFontColor  = "#FFFFFF"
	defaultHighlight = "#FFFF00"
	defaultFillRows  = 10
)

const (
	noInputSchema = `{"type":"object"}`
	columnSchema  = `{"type":"object","required":["column"],"properties":{"column":{"type":"string","minLength":1}}}`
	intOrString   = `{"type":["integer","string"]}`
	boolOrString  = `{"type":["boolean","string"]}`
)

// DefaultTools returns the spreadsheet tool set in the order the model sees
// it: reads, formula lookup, plan writes, then sheet manipulation.
func DefaultTools() []Tool {
	return []Tool{
		{
			Name:        "get_headers",
			Description: "Get the column headers (row 1) keyed by column letter. Use this FIRST to understand the data.",
			Schema:      noInputSchema,
			Handler:     typed(getHeaders),
		},
		{
			Name:        "get_column_values",
			Description: "Get values from a column below the header, ordered by row. Input: column letter, e.g. \"A\".",
			Schema:      `{"type":"object","required":["column"],"properties":{"column":{"type":"string","minLength":1},"limit":` + intOrString + `}}`,
			Primary:     "column",
			Handler:     typed(getColumnValues),
		},
		{
			Name:        "get_row",
			Description: "Get all values in a row keyed by column letter. Input: row number.",
			Schema:      `{"type":"object","required":["row"],"properties":{"row":` + intOrString + `}}`,
			Primary:     "row",
			Handler:     typed(getRow),
		},
		{
			Name:        "get_cell",
			Description: "Get the value of one cell. Input: cell reference, e.g. \"B5\".",
			Schema:      `{"type":"object","required":["cell"],"properties":{"cell":{"type":"string","minLength":1}}}`,
			Primary:     "cell",
			Handler:     typed(getCell),
		},
		{
			Name:        "get_data_range",
			Description: "Get the sheet name, data range, row and column counts and last row.",
			Schema:      noInputSchema,
			Handler:     typed(getDataRange),
		},
		{
			Name:        "count_rows",
			Description: "Count data rows, excluding the header.",
			Schema:      noInputSchema,
			Handler:     typed(countRows),
		},
		{
			Name:        "get_column_stats",
			Description: "Get header, unique count, sample unique values and inferred type of a column. Input: column letter.",
			Schema:      columnSchema,
			Primary:     "column",
			Handler:     typed(getColumnStats),
		},
		{
			Name:        "get_chart_range",
			Description: "Get startRow, endRow and fillDownLastRow for a summary grouped by a column. ALWAYS call before create_chart. Input: column letter.",
			Schema:      columnSchema,
			Primary:     "column",
			Handler:     typed(getChartRange),
		},
		{
			Name:        "lookup_formula",
			Description: "Find the correct formula pattern for an intent. ALWAYS call before set_formula for aggregations. Input: intent, e.g. \"sum by category\".",
			Schema:      `{"type":"object","required":["intent"],"properties":{"intent":{"type":"string","minLength":1}}}`,
			Primary:     "intent",
			Handler:     typed(lookupFormula),
		},
		{
			Name:         "create_sheet",
			Description:  "Create a new sheet for summaries or output. Input: sheet name.",
			Schema:       `{"type":"object","required":["name"],"properties":{"name":{"type":"string","minLength":1}}}`,
			Primary:      "name",
			InvalidInput: `Invalid input. Expected a sheet name`,
			Handler:      typed(createSheet),
		},
		{
			Name:         "set_formula",
			Description:  `Set a formula in a cell. Input: {"sheet": "...", "cell": "B2", "formula": "=...", "fillDown": false}`,
			Schema:       `{"type":"object","required":["formula"],"properties":{"sheet":{"type":"string"},"cell":{"type":"string"},"formula":{"type":"string","minLength":1},"fillDown":` + boolOrString + `}}`,
			InvalidInput: `Invalid JSON input. Expected {"sheet": "...", "cell": "...", "formula": "..."}`,
			Handler:      typed(setFormula),
		},
		{
			Name:         "set_values",
			Description:  `Write values into a range. Input: {"sheet": "...", "range": "A1:B1", "values": [["Region", "Total"]]}`,
			Schema:       `{"type":"object","required":["values"],"properties":{"sheet":{"type":"string"},"range":{"type":"string"},"values":{"type":"array","items":{"type":"array"}}}}`,
			InvalidInput: `Invalid JSON input. Expected {"sheet": "...", "range": "...", "values": [[...]]}`,
			Handler:      typed(setValues),
		},
		{
			Name:         "format_headers",
			Description:  `Format a range as headers (bold, blue background, white text). Input: {"sheet": "...", "range": "A1:B1"}`,
			Schema:       `{"type":"object","required":["range"],"properties":{"sheet":{"type":"string"},"range":{"type":"string","minLength":1}}}`,
			InvalidInput: `Invalid JSON input. Expected {"sheet": "...", "range": "..."}`,
			Handler:      typed(formatHeaders),
		},
		{
			Name:         "auto_fill_down",
			Description:  `Copy a formula from a source cell down to lastRow. Input: {"sheet": "...", "sourceCell": "B2", "lastRow": 5}`,
			Schema:       `{"type":"object","required":["sourceCell"],"properties":{"sheet":{"type":"string"},"sourceCell":{"type":"string","minLength":1},"lastRow":` + intOrString + `}}`,
			InvalidInput: `Invalid JSON input. Expected {"sheet": "...", "sourceCell": "...", "lastRow": ...}`,
			Handler:      typed(autoFillDown),
		},
		{
			Name:        "create_chart",
			Description: `Create a chart. Input: {"type": "bar", "title": "...", "dataSheet": "...", "labelColumn": "A", "valueColumn": "B", "startRow": 2, "endRow": 5}`,
			Schema: `{"type":"object","properties":{"type":{"type":"string"},"title":{"type":"string"},"dataSheet":{"type":"string"},` +
				`"labelColumn":{"type":"string"},"valueColumn":{"type":"string"},"startRow":` + intOrString + `,"endRow":{"type":["integer","string","null"]}}}`,
			InvalidInput: "Invalid JSON input. Expected chart configuration object.",
			Handler:      typed(createChart),
		},
		{
			Name:        "highlight_range",
			Description: `Highlight cells with a background color (default yellow). Input: range, or {"range": "A2:A10", "color": "#FF0000"}`,
			Schema:      `{"type":"object","required":["range"],"properties":{"range":{"type":"string","minLength":1},"color":{"type":"string"}}}`,
			Primary:     "range",
			Handler:     typed(highlightRange),
		},
		{
			Name:         "filter_data",
			Description:  `Show only rows matching criteria. Input: {"column": "C", "criteria": "=Male"}; criteria like "=Active", "!=Inactive", ">100".`,
			Schema:       `{"type":"object","required":["column","criteria"],"properties":{"column":{"type":"string","minLength":1},"criteria":{"type":"string","minLength":1}}}`,
			InvalidInput: `Invalid JSON input. Expected {"column": "...", "criteria": "..."}`,
			Handler:      typed(filterData),
		},
		{
			Name:        "sort_data",
			Description: `Sort the sheet by a column. Input: column letter, or {"column": "B", "ascending": false}`,
			Schema:      `{"type":"object","required":["column"],"properties":{"column":{"type":"string","minLength":1},"ascending":` + boolOrString + `}}`,
			Primary:     "column",
			Handler:     typed(sortData),
		},
		{
			Name:        "clear_filters",
			Description: "Remove all filters from the sheet.",
			Schema:      noInputSchema,
			Handler:     typed(clearFilters),
		},
	}
}

// NewDefaultRegistry registers DefaultTools.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, t := range DefaultTools() {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt struct {
	N   int
	Set bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		f.N, f.Set = int(n), true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n2, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected a number, got %q", s)
	}
	f.N, f.Set = n2, true
	return nil
}

// flexBool accepts a JSON boolean or "true"/"false" text.
type flexBool struct {
	B   bool
	Set bool
}

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		f.B, f.Set = v, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", s)
	}
	f.B, f.Set = v, true
	return nil
}

func readError(err error) string {
	if errors.Is(err, sheet.ErrNoData) {
		return errorObservation(sheet.ErrNoData.Error())
	}
	var nf *sheet.NotFoundError
	if errors.As(err, &nf) {
		return errorObservation(nf.Error())
	}
	return errorObservation(strings.TrimPrefix(err.Error(), "sheet: "))
}

func pretty(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorObservation(err.Error())
	}
	return string(b)
}

type noArgs struct{}

type columnArgs struct {
	Column string `json:"column"`
}

func getHeaders(_ context.Context, inv *Invocation, _ noArgs) string {
	h, err := inv.Snapshot.Headers()
	if err != nil {
		return readError(err)
	}
	return pretty(h)
}

func getColumnValues(_ context.Context, inv *Invocation, in struct {
	Column string  `json:"column"`
	Limit  flexInt `json:"limit"`
}) string {
	vals, err := inv.Snapshot.ColumnValues(in.Column, in.Limit.N)
	if err != nil {
		return readError(err)
	}
	return pretty(vals)
}

func getRow(_ context.Context, inv *Invocation, in struct {
	Row flexInt `json:"row"`
}) string {
	r, err := inv.Snapshot.Row(in.Row.N)
	if err != nil {
		return readError(err)
	}
	return pretty(r)
}

func getCell(_ context.Context, inv *Invocation, in struct {
	Cell string `json:"cell"`
}) string {
	v, err := inv.Snapshot.Cell(in.Cell)
	if err != nil {
		return readError(err)
	}
	return v
}

func getDataRange(_ context.Context, inv *Invocation, _ noArgs) string {
	info, err := inv.Snapshot.Extent()
	if err != nil {
		return readError(err)
	}
	return pretty(info)
}

func countRows(_ context.Context, inv *Invocation, _ noArgs) string {
	n, err := inv.Snapshot.CountRows()
	if err != nil {
		return readError(err)
	}
	return strconv.Itoa(n)
}

func getColumnStats(_ context.Context, inv *Invocation, in columnArgs) string {
	st, err := inv.Snapshot.ColumnStats(in.Column)
	if err != nil {
		return readError(err)
	}
	return pretty(st)
}

func getChartRange(_ context.Context, inv *Invocation, in columnArgs) string {
	cr, err := inv.Snapshot.ChartRange(in.Column)
	if err != nil {
		return readError(err)
	}
	return pretty(cr)
}

func lookupFormula(_ context.Context, inv *Invocation, in struct {
	Intent string `json:"intent"`
}) string {
	return pretty(inv.Catalog.ForIntent(in.Intent, inv.SheetName(), inv.LastRow()))
}

func createSheet(_ context.Context, inv *Invocation, in struct {
	Name string `json:"name"`
}) string {
	name := unquote(stripParamPrefix(in.Name))
	if name == "" {
		return errorObservation("Invalid input. Expected a sheet name")
	}
	ack, added := inv.Queue.Append(actions.CreateSheet{Name: name})
	if !added {
		return ack
	}
	return fmt.Sprintf("Created sheet '%s'", name)
}

func (inv *Invocation) targetSheet(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return inv.SheetName()
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func setFormula(_ context.Context, inv *Invocation, in struct {
	Sheet    string   `json:"sheet"`
	Cell     string   `json:"cell"`
	Formula  string   `json:"formula"`
	FillDown flexBool `json:"fillDown"`
}) string {
	sheetName := inv.targetSheet(in.Sheet)
	cell := orDefault(in.Cell, "A1")

	res := formula.Repair(in.Formula, inv.LastRow())
	warnings := res.Warnings
	fill, blocked := formula.GuardFillDown(res.Formula, in.FillDown.B)
	if blocked != "" {
		warnings = append(warnings, blocked)
	}
	inv.Queue.Append(actions.SetFormula{Sheet: sheetName, Cell: cell, Formula: res.Formula, FillDown: fill})

	msg := fmt.Sprintf("Set %s!%s = %s", sheetName, cell, res.Formula)
	if fill {
		msg += " (will fill down)"
	}
	if len(warnings) > 0 {
		msg += "\n\nFORMULA VALIDATION NOTES:\n- " + strings.Join(warnings, "\n- ")
	}
	return msg
}

func setValues(_ context.Context, inv *Invocation, in struct {
	Sheet  string  `json:"sheet"`
	Range  string  `json:"range"`
	Values [][]any `json:"values"`
}) string {
	sheetName := inv.targetSheet(in.Sheet)
	rng := orDefault(in.Range, "A1")
	inv.Queue.Append(actions.SetValues{Sheet: sheetName, Range: rng, Values: in.Values})
	return fmt.Sprintf("Set values in %s!%s", sheetName, rng)
}

func formatHeaders(_ context.Context, inv *Invocation, in struct {
	Sheet string `json:"sheet"`
	Range string `json:"range"`
}) string {
	sheetName := inv.targetSheet(in.Sheet)
	inv.Queue.Append(actions.FormatRange{
		Sheet: sheetName, Range: in.Range, Bold: true,
		Background: headerBackground, FontColor: headerFontColor,
	})
	return fmt.Sprintf("Formatted %s!%s as headers", sheetName, in.Range)
}

func autoFillDown(_ context.Context, inv *Invocation, in struct {
	Sheet      string  `json:"sheet"`
	SourceCell string  `json:"sourceCell"`
	LastRow    flexInt `json:"lastRow"`
}) string {
	sheetName := inv.targetSheet(in.Sheet)
	last := defaultFillRows
	if in.LastRow.Set {
		last = in.LastRow.N
	}
	inv.Queue.Append(actions.AutoFillDown{Sheet: sheetName, SourceCell: in.SourceCell, LastRow: last})
	return fmt.Sprintf("Filled formula from %s!%s down to row %d", sheetName, in.SourceCell, last)
}

func createChart(_ context.Context, inv *Invocation, in struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	DataSheet   string  `json:"dataSheet"`
	LabelColumn string  `json:"labelColumn"`
	ValueColumn string  `json:"valueColumn"`
	StartRow    flexInt `json:"startRow"`
	EndRow      flexInt `json:"endRow"`
}) string {
	c := actions.CreateChart{
		ChartType:   orDefault(in.Type, "bar"),
		Title:       orDefault(in.Title, "Chart"),
		DataSheet:   inv.targetSheet(in.DataSheet),
		LabelColumn: orDefault(in.LabelColumn, "A"),
		ValueColumn: orDefault(in.ValueColumn, "B"),
		StartRow:    2,
		EndRow:      in.EndRow.N,
	}
	if in.StartRow.Set {
		c.StartRow = in.StartRow.N
	}
	inv.Queue.Append(c)
	end := "last"
	if c.EndRow > 0 {
		end = strconv.Itoa(c.EndRow)
	}
	return fmt.Sprintf("Chart '%s' (%s) will be created using data from %s!%s%d:%s%s",
		c.Title, c.ChartType, c.DataSheet, c.LabelColumn, c.StartRow, c.ValueColumn, end)
}

func highlightRange(_ context.Context, inv *Invocation, in struct {
	Range string `json:"range"`
	Color string `json:"color"`
}) string {
	color := orDefault(in.Color, defaultHighlight)
	inv.Queue.Append(actions.Highlight{Range: in.Range, Color: color})
	return fmt.Sprintf("Highlighted %s with color %s", in.Range, color)
}

func filterData(_ context.Context, inv *Invocation, in struct {
	Column   string `json:"column"`
	Criteria string `json:"criteria"`
}) string {
	inv.Queue.Append(actions.Filter{Column: in.Column, Criteria: in.Criteria})
	return fmt.Sprintf("Filtered column %s where %s", in.Column, in.Criteria)
}

func sortData(_ context.Context, inv *Invocation, in struct {
	Column    string   `json:"column"`
	Ascending flexBool `json:"ascending"`
}) string {
	asc := !in.Ascending.Set || in.Ascending.B
	inv.Queue.Append(actions.Sort{Column: in.Column, Ascending: asc})
	dir := "ascending"
	if !asc {
		dir = "descending"
	}
	return fmt.Sprintf("Sorted by column %s (%s)", in.Column, dir)
}

func clearFilters(_ context.Context, inv *Invocation, _ noArgs) string {
	inv.Queue.Append(actions.ClearFilters{})
	return "Cleared all filters"
}
