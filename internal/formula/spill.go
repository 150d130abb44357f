package formula

import (
	"fmt"
	"regexp"
	"strings"
)

// selfExpanding lists functions whose results spill into neighbouring cells.
var selfExpanding = map[string]struct{}{
	"UNIQUE":       {},
	"FILTER":       {},
	"SORT":         {},
	"SORTN":        {},
	"SEQUENCE":     {},
	"ARRAYFORMULA": {},
}

var outerFunctionRe = regexp.MustCompile(`^=\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\(`)

// OuterFunction returns the upper-cased name of the outermost function call,
// or "" when the formula does not start with one.
func OuterFunction(formula string) string {
	m := outerFunctionRe.FindStringSubmatch(strings.TrimSpace(formula))
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// IsSelfExpanding reports whether the formula's outer function spills.
func IsSelfExpanding(formula string) bool {
	_, ok := selfExpanding[OuterFunction(formula)]
	return ok
}

// GuardFillDown forces fill-down off for self-expanding formulas. It returns
// the flag to emit and, when a request was blocked, the warning to record.
func GuardFillDown(formula string, fillDown bool) (bool, string) {
	if !fillDown || !IsSelfExpanding(formula) {
		return fillDown, ""
	}
	return false, fmt.Sprintf("BLOCKED fillDown=true for auto-spill formula (%s). These formulas auto-expand.", OuterFunction(formula))
}
