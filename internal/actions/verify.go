package actions

import (
	"fmt"
	"regexp"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/internal/formula"
)

// Policy decides whether critical formula errors block delivery.
type Policy string

const (
	// PolicyAdvisory reports problems and never blocks.
	PolicyAdvisory Policy = "advisory"
	// PolicyStrict marks the report blocking when a critical syntax error
	// survives so the caller can ask the loop for a correction.
	PolicyStrict Policy = "strict"
)

// Verdict summarizes a verification run.
type Verdict string

const (
	VerdictPassed          Verdict = "PASSED"
	VerdictPassedWithFixes Verdict = "PASSED_WITH_FIXES"
	VerdictNeedsReview     Verdict = "NEEDS_REVIEW"
)

// Report is the advisory metadata returned alongside the action list.
type Report struct {
	Total    int      `json:"total_actions"`
	Found    int      `json:"issues_found"`
	Issues   []string `json:"issues"`
	Fixes    []string `json:"fixes_applied"`
	Verdict  Verdict  `json:"verification"`
	Blocking bool     `json:"blocking,omitempty"`
	// Critical lists the unresolved critical errors, one line per action.
	Critical []string `json:"critical,omitempty"`
	// BlockingActions are queue positions holding formulas with critical
	// errors.
	BlockingActions []int `json:"-"`
}

// VerifyOptions carries the context the checks compare against.
type VerifyOptions struct {
	Policy      Policy
	LastRow     int
	SourceSheet string
}

// chartRowSlack is how far past the last data row a chart may reach before
// its end row is flagged.
const chartRowSlack = config.DefaultVerifyEndRowSlack

var sumifStarRe = regexp.MustCompile(`(?i)SUMIF.*\*`)

// Verify audits the queued actions in place. Open-ended ranges in formulas
// are closed at LastRow; everything else is only reported.
func (q *Queue) Verify(opts VerifyOptions) Report {
	lastRow := opts.LastRow
	if lastRow <= 0 {
		lastRow = config.DefaultLastRow
	}
	rep := Report{Total: len(q.items), Issues: []string{}, Fixes: []string{}}
	created := map[string]bool{}

	for i, a := range q.items {
		n := i + 1
		switch act := a.(type) {
		case CreateSheet:
			created[act.Name] = true

		case SetFormula:
			if formula.HasOpenRange(act.Formula) {
				rep.Issues = append(rep.Issues, fmt.Sprintf("Action %d: Formula has open-ended range", n))
				act.Formula, _ = formula.CloseOpenRanges(act.Formula, lastRow)
				q.items[i] = act
				rep.Fixes = append(rep.Fixes, fmt.Sprintf("Fixed range to use lastRow=%d", lastRow))
			}
			if sumifStarRe.MatchString(act.Formula) {
				rep.Issues = append(rep.Issues, fmt.Sprintf("Action %d: SUMIF with multiplication detected", n))
			}
			if ok, errs := formula.Validate(act.Formula); !ok {
				critical := false
				for _, e := range errs {
					msg := fmt.Sprintf("Action %d: %s", n, e)
					rep.Issues = append(rep.Issues, msg)
					if formula.IsCritical(e) {
						rep.Critical = append(rep.Critical, msg)
						critical = true
					}
				}
				if critical {
					rep.BlockingActions = append(rep.BlockingActions, i)
				}
			}

		case CreateChart:
			if !created[act.DataSheet] && act.DataSheet != opts.SourceSheet {
				rep.Issues = append(rep.Issues, fmt.Sprintf("Action %d: Chart references unknown sheet '%s'", n, act.DataSheet))
			}
			if act.EndRow > 0 && act.EndRow > lastRow+chartRowSlack {
				rep.Issues = append(rep.Issues, fmt.Sprintf("Action %d: Chart endRow=%d seems too large", n, act.EndRow))
			}
		}
	}

	rep.Found = len(rep.Issues)
	switch {
	case rep.Found == 0:
		rep.Verdict = VerdictPassed
	case len(rep.Fixes) > 0:
		rep.Verdict = VerdictPassedWithFixes
	default:
		rep.Verdict = VerdictNeedsReview
	}
	rep.Blocking = opts.Policy == PolicyStrict && len(rep.BlockingActions) > 0
	return rep
}
