package formula

import (
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/vinodismyname/sheetmind/config"
)

// Result is the outcome of a repair pass over one formula.
type Result struct {
	Original string   `json:"original"`
	Formula  string   `json:"formula"`
	Warnings []string `json:"warnings,omitempty"`
	Critical []string `json:"critical,omitempty"`
	Diff     string   `json:"diff,omitempty"`
}

// Changed reports whether any rewrite was applied.
func (r Result) Changed() bool { return r.Original != r.Formula }

// Blocking reports whether a critical syntax error survived the repair.
func (r Result) Blocking() bool { return len(r.Critical) > 0 }

var criticalKeywords = []string{"parenthesis", "unknown function", "empty formula", "must start"}

// IsCritical reports whether a validator error makes the formula unusable.
func IsCritical(validationErr string) bool {
	low := strings.ToLower(validationErr)
	for _, kw := range criticalKeywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}

// Repair rewrites known-bad constructs, bounds open ranges at lastRow and
// re-validates the result. It never fails: problems it cannot fix are
// reported as warnings, with critical syntax errors also listed in Critical.
// A non-positive lastRow falls back to config.DefaultLastRow.
func Repair(formula string, lastRow int) Result {
	if lastRow <= 0 {
		lastRow = config.DefaultLastRow
	}
	res := Result{Original: formula, Formula: formula}

	if fixed, ok := convertSumifProduct(res.Formula); ok {
		res.Formula = fixed
		res.Warnings = append(res.Warnings, "CONVERTED: SUMIF with multiplication is invalid. Changed to SUMPRODUCT: "+fixed)
	}

	var notes []string
	res.Formula, notes = BoundFullColumns(res.Formula, lastRow)
	res.Warnings = append(res.Warnings, notes...)

	res.Formula, notes = CloseOpenRanges(res.Formula, lastRow)
	res.Warnings = append(res.Warnings, notes...)

	if ok, errs := Validate(res.Formula); !ok {
		for _, e := range errs {
			if IsCritical(e) {
				res.Critical = append(res.Critical, e)
				res.Warnings = append(res.Warnings, "CRITICAL SYNTAX ERROR: "+e)
				continue
			}
			res.Warnings = append(res.Warnings, "SYNTAX: "+e)
		}
	}

	for _, s := range Suggest(res.Formula) {
		res.Warnings = append(res.Warnings, "Suggestion: "+s)
	}

	if res.Changed() {
		res.Diff = InlineDiff(res.Original, res.Formula)
	}
	return res
}

// convertSumifProduct rewrites every SUMIF whose sum range multiplies
// columns into the equivalent SUMPRODUCT form. The target spreadsheet rejects
// multiplication inside a SUMIF sum range. Arguments are split at nesting
// depth zero, so parenthesised factors such as (B2:B10)*(C2:C10) qualify.
func convertSumifProduct(formula string) (string, bool) {
	mask := literalMask(formula)
	type span struct {
		from, to    int
		replacement string
	}
	var spans []span
	covered := -1
	for _, c := range functionCalls(formula, mask) {
		if c.name != "SUMIF" || c.pos <= covered {
			continue
		}
		args, closed := callArguments(formula, mask, c.open)
		if !closed {
			continue
		}
		parts := splitTopLevel(args, mask[c.open+1:])
		if len(parts) != 3 || !hasOperator(parts[2], mask[c.open+1+parts[2].at:], '*') {
			continue
		}
		closeAt := c.open + 1 + len(args)
		spans = append(spans, span{
			from: c.pos,
			to:   closeAt + 1,
			replacement: "SUMPRODUCT(" + criterionTest(parts[0].text, parts[1].text) +
				"*(" + strings.TrimSpace(parts[2].text) + "))",
		})
		covered = closeAt
	}
	if len(spans) == 0 {
		return formula, false
	}
	out := formula
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		out = out[:sp.from] + sp.replacement + out[sp.to:]
	}
	return out, true
}

type argument struct {
	text string
	at   int // offset inside the argument list
}

// splitTopLevel splits a call's argument text at commas outside nested
// parentheses, braces and literals. mask is aligned with args.
func splitTopLevel(args string, mask []bool) []argument {
	var out []argument
	depth, start := 0, 0
	for i := 0; i < len(args); i++ {
		if mask[i] {
			continue
		}
		switch args[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, argument{text: args[start:i], at: start})
				start = i + 1
			}
		}
	}
	return append(out, argument{text: args[start:], at: start})
}

// hasOperator reports whether op occurs in expr outside literals.
func hasOperator(expr argument, mask []bool, op byte) bool {
	for i := 0; i < len(expr.text); i++ {
		if !mask[i] && expr.text[i] == op {
			return true
		}
	}
	return false
}

var comparisonOps = []string{">=", "<=", "<>", ">", "<", "="}

// criterionTest turns a SUMIF criterion into a boolean array expression.
// Quoted comparisons such as ">100" become (range>100).
func criterionTest(rng, criterion string) string {
	rng = strings.TrimSpace(rng)
	c := strings.TrimSpace(criterion)
	if len(c) >= 2 && c[0] == '"' && c[len(c)-1] == '"' {
		inner := c[1 : len(c)-1]
		for _, op := range comparisonOps {
			if !strings.HasPrefix(inner, op) {
				continue
			}
			val := strings.TrimSpace(inner[len(op):])
			if _, err := strconv.ParseFloat(val, 64); err != nil {
				val = `"` + val + `"`
			}
			return "(" + rng + op + val + ")"
		}
	}
	return "(" + rng + "=" + c + ")"
}

// InlineDiff renders the character-level difference between two formulas as
// [-removed-]{+added+} markers around unchanged text.
func InlineDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		}
	}
	return b.String()
}
