package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vinodismyname/sheetmind/internal/formula"
	"github.com/vinodismyname/sheetmind/internal/llm"
	"github.com/vinodismyname/sheetmind/internal/patterns"
	"github.com/vinodismyname/sheetmind/pkg/mcperr"
	"github.com/vinodismyname/sheetmind/pkg/pagination"
	"github.com/vinodismyname/sheetmind/pkg/validation"
)

const (
	defaultPatternPage = 5
	maxPatternPage     = 20
)

// ValidateFormulaInput defines parameters for validate_formula.
type ValidateFormulaInput struct {
	Formula string `json:"formula" jsonschema:"required" jsonschema_description:"Formula text starting with ="`
}

// ValidateFormulaOutput reports syntax problems and modern alternatives.
type ValidateFormulaOutput struct {
	Formula     string   `json:"formula"`
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// RepairFormulaInput defines parameters for repair_formula.
type RepairFormulaInput struct {
	Formula string `json:"formula" validate:"required" jsonschema:"required" jsonschema_description:"Formula to repair"`
	LastRow int    `json:"last_row,omitempty" validate:"gte=0" jsonschema_description:"Last data row used to bound open ranges (default 100)"`
}

// RepairFormulaOutput is the repair pass result plus the validity of the
// repaired formula.
type RepairFormulaOutput struct {
	formula.Result
	Valid   bool `json:"valid"`
	Changed bool `json:"changed"`
}

// FindPatternInput defines parameters for find_formula_pattern.
type FindPatternInput struct {
	Query    string `json:"query" validate:"required" jsonschema:"required" jsonschema_description:"What you want to calculate, e.g. 'sum sales by region'"`
	Sheet    string `json:"sheet,omitempty" jsonschema_description:"Sheet name substituted into examples"`
	LastRow  int    `json:"last_row,omitempty" validate:"gte=0" jsonschema_description:"Last data row substituted into examples"`
	PageSize int    `json:"page_size,omitempty" validate:"gte=0,lte=20" jsonschema_description:"Matches per page (default 5, max 20)"`
	Cursor   string `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Cursor from a previous page"`
}

// PatternMatch is one ranked catalog entry.
type PatternMatch struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Score       int    `json:"score"`
	Description string `json:"description"`
	Template    string `json:"template"`
	Example     string `json:"example,omitempty"`
}

// PageMeta captures paging metadata.
type PageMeta struct {
	Total      int    `json:"total"`
	Returned   int    `json:"returned"`
	Truncated  bool   `json:"truncated"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// FindPatternOutput lists matches; the first page also carries the filled-in
// recommendation for the best match.
type FindPatternOutput struct {
	Query          string                   `json:"query"`
	Matches        []PatternMatch           `json:"matches"`
	Recommendation *patterns.Recommendation `json:"recommendation,omitempty"`
	Meta           PageMeta                 `json:"meta"`
}

// ExplainFormulaInput defines parameters for explain_formula.
type ExplainFormulaInput struct {
	Formula  string `json:"formula" validate:"required" jsonschema:"required" jsonschema_description:"Formula to explain"`
	Detailed bool   `json:"detailed,omitempty" jsonschema_description:"Return a step by step breakdown"`
}

// ExplainFormulaOutput carries either a plain or a structured explanation.
type ExplainFormulaOutput struct {
	Formula     string           `json:"formula"`
	Explanation string           `json:"explanation,omitempty"`
	Detailed    *llm.Explanation `json:"detailed,omitempty"`
}

// FixFormulaInput defines parameters for fix_formula.
type FixFormulaInput struct {
	Formula      string `json:"formula" validate:"required" jsonschema:"required" jsonschema_description:"Formula that fails"`
	Error        string `json:"error,omitempty" jsonschema_description:"Error shown by the spreadsheet, e.g. #N/A"`
	SheetContext string `json:"sheet_context,omitempty" jsonschema_description:"Headers or sample rows that help the fix"`
}

// FixFormulaOutput is the suggested fix with the local validation verdict.
type FixFormulaOutput struct {
	llm.FixResult
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// RegisterFormulaTools wires validation, repair, pattern lookup and the
// language-backed explain and fix tools.
func RegisterFormulaTools(s *server.MCPServer, reg *Registry, d Deps) {
	catalog := d.Catalog
	if catalog == nil {
		catalog = patterns.Default()
	}

	validateTool := mcp.NewTool(
		"validate_formula",
		mcp.WithDescription("Check a spreadsheet formula for syntax errors: leading =, balanced parentheses and quotes, known function names and argument counts. Also suggests modern alternatives (XLOOKUP, IFS, TEXTJOIN, bounded ranges). Pure and fast; never calls a model."),
		mcp.WithInputSchema[ValidateFormulaInput](),
		mcp.WithOutputSchema[ValidateFormulaOutput](),
	)
	s.AddTool(validateTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in ValidateFormulaInput) (*mcp.CallToolResult, error) {
		return validateFormula(in), nil
	}))
	reg.Register(GroupFormula, validateTool)

	repairTool := mcp.NewTool(
		"repair_formula",
		mcp.WithDescription("Run the repair pass over a formula: converts SUMIF with multiplication to SUMPRODUCT, bounds full-column (A:A) and open-ended (A2:A) ranges at last_row, re-validates, and returns warnings plus an inline diff ([-removed-]{+added+})."),
		mcp.WithInputSchema[RepairFormulaInput](),
		mcp.WithOutputSchema[RepairFormulaOutput](),
	)
	s.AddTool(repairTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in RepairFormulaInput) (*mcp.CallToolResult, error) {
		return repairFormula(in), nil
	}))
	reg.Register(GroupFormula, repairTool)

	findTool := mcp.NewTool(
		"find_formula_pattern",
		mcp.WithDescription("Search the formula pattern catalog for a calculation goal (lookup, sum by group, count, unique, rank, running total ...). Returns ranked matches, paged with an opaque cursor; the first page includes a recommendation with examples filled in for the given sheet and last row. Errors: PATTERN_NOT_FOUND, CURSOR_INVALID."),
		mcp.WithInputSchema[FindPatternInput](),
		mcp.WithOutputSchema[FindPatternOutput](),
	)
	s.AddTool(findTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in FindPatternInput) (*mcp.CallToolResult, error) {
		return findPattern(catalog, in), nil
	}))
	reg.Register(GroupFormula, findTool)

	if d.LLM == nil {
		return
	}

	explainTool := mcp.NewTool(
		"explain_formula",
		mcp.WithDescription("Explain what a formula does in plain language. Set detailed=true for a structured breakdown (summary, steps per function, simpler alternative). Errors: SERVICE_UNAVAILABLE when no completion tier answers."),
		mcp.WithInputSchema[ExplainFormulaInput](),
		mcp.WithOutputSchema[ExplainFormulaOutput](),
	)
	s.AddTool(explainTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in ExplainFormulaInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		out := ExplainFormulaOutput{Formula: in.Formula}
		if in.Detailed {
			exp, err := d.LLM.ExplainEnhanced(ctx, in.Formula)
			if err != nil {
				return completionError(err), nil
			}
			out.Detailed = &exp
			return structured(out, exp.Summary), nil
		}
		text, err := d.LLM.ExplainFormula(ctx, in.Formula)
		if err != nil {
			return completionError(err), nil
		}
		out.Explanation = text
		return structured(out, text), nil
	}))
	reg.Register(GroupFormula, explainTool)

	fixTool := mcp.NewTool(
		"fix_formula",
		mcp.WithDescription("Ask the model to fix a formula that returns an error. Returns fixed_formula, what_was_wrong and explanation; the fixed formula is re-checked locally and its validity reported."),
		mcp.WithInputSchema[FixFormulaInput](),
		mcp.WithOutputSchema[FixFormulaOutput](),
	)
	s.AddTool(fixTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in FixFormulaInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		fix, err := d.LLM.FixFormula(ctx, in.Formula, in.Error, in.SheetContext)
		if err != nil {
			return completionError(err), nil
		}
		out := FixFormulaOutput{FixResult: fix}
		if fix.FixedFormula != "" {
			out.Valid, out.Errors = formula.Validate(fix.FixedFormula)
		}
		summary := fix.WhatWasWrong
		if fix.FixedFormula != "" {
			summary = fmt.Sprintf("%s -> %s", fix.WhatWasWrong, fix.FixedFormula)
		}
		return structured(out, summary), nil
	}))
	reg.Register(GroupFormula, fixTool)
}

func validateFormula(in ValidateFormulaInput) *mcp.CallToolResult {
	ok, errs := formula.Validate(in.Formula)
	out := ValidateFormulaOutput{Formula: in.Formula, Valid: ok, Errors: errs, Suggestions: formula.Suggest(in.Formula)}
	summary := "valid"
	if !ok {
		summary = "invalid: " + strings.Join(errs, "; ")
	}
	return structured(out, summary)
}

func repairFormula(in RepairFormulaInput) *mcp.CallToolResult {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg)
	}
	res := formula.Repair(in.Formula, in.LastRow)
	valid, _ := formula.Validate(res.Formula)
	out := RepairFormulaOutput{Result: res, Valid: valid, Changed: res.Changed()}

	lines := []string{fmt.Sprintf("formula=%s valid=%v changed=%v", res.Formula, valid, res.Changed())}
	if res.Diff != "" {
		lines = append(lines, "diff: "+res.Diff)
	}
	for _, w := range res.Warnings {
		lines = append(lines, "- "+w)
	}
	r := mcp.NewToolResultStructured(out, lines[0])
	r.Content = []mcp.Content{mcp.NewTextContent(strings.Join(lines, "\n"))}
	return r
}

func findPattern(catalog *patterns.Catalog, in FindPatternInput) *mcp.CallToolResult {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg)
	}
	size := in.PageSize
	if size <= 0 {
		size = defaultPatternPage
	}
	size = min(size, maxPatternPage)
	qh := pagination.QueryHash(in.Query)

	off := 0
	if in.Cursor != "" {
		c, err := pagination.DecodeCursor(in.Cursor)
		if err != nil || c.U != pagination.UnitPatterns || c.Qh != qh {
			return mcperr.New(mcperr.CursorInvalid, "")
		}
		off, size = c.Off, c.Ps
	}

	matches := catalog.Search(in.Query)
	if len(matches) == 0 {
		return mcperr.New(mcperr.PatternNotFound, "")
	}
	page, more := pagination.Slice(matches, off, size)

	out := FindPatternOutput{Query: in.Query, Matches: make([]PatternMatch, 0, len(page))}
	for _, m := range page {
		p := m.Pattern
		example := p.Example
		if example != "" {
			example = patterns.Fill(example, in.Sheet, in.LastRow)
		}
		out.Matches = append(out.Matches, PatternMatch{
			ID:          p.ID,
			Name:        p.Name,
			Category:    p.Category,
			Score:       m.Score,
			Description: p.Description,
			Template:    p.Template,
			Example:     example,
		})
	}
	if off == 0 {
		rec := catalog.ForIntent(in.Query, in.Sheet, in.LastRow)
		out.Recommendation = &rec
	}
	out.Meta = PageMeta{Total: len(matches), Returned: len(page), Truncated: more}
	if more {
		next, err := pagination.EncodeCursor(pagination.Cursor{
			U:   pagination.UnitPatterns,
			Off: pagination.NextOffset(off, len(page)),
			Ps:  size,
			Iat: time.Now().Unix(),
			Qh:  qh,
		})
		if err == nil {
			out.Meta.NextCursor = next
		}
	}

	names := make([]string, 0, len(out.Matches))
	for _, m := range out.Matches {
		names = append(names, m.Name)
	}
	summary := fmt.Sprintf("matches=%d returned=%d truncated=%v", len(matches), len(page), more)
	text := summary + "\n" + strings.Join(names, "\n")
	if out.Recommendation != nil && out.Recommendation.Guide != "" {
		text += "\n\n" + out.Recommendation.Guide
	}
	r := mcp.NewToolResultStructured(out, summary)
	r.Content = []mcp.Content{mcp.NewTextContent(text)}
	return r
}

// structured wraps out with a one-line text summary for clients that ignore
// structured content.
func structured(out any, summary string) *mcp.CallToolResult {
	r := mcp.NewToolResultStructured(out, summary)
	r.Content = []mcp.Content{mcp.NewTextContent(summary)}
	return r
}
