package formula

import (
	"regexp"
	"strings"
)

var nestedIfRe = regexp.MustCompile(`IF\s*\(\s*[^,]+,\s*[^,]+,\s*IF\s*\(`)

// Suggest returns advisory notes about legacy constructs that have a preferred
// modern equivalent. The result is empty when nothing applies.
func Suggest(formula string) []string {
	var out []string
	up := strings.ToUpper(formula)

	if strings.Contains(up, "VLOOKUP") {
		out = append(out, "Consider XLOOKUP instead of VLOOKUP: more flexible, can search any column, supports not-found default, and doesn't need column index numbers.")
	}
	if nestedIfRe.MatchString(up) {
		out = append(out, "Nested IF detected. Consider IFS() for cleaner multiple-condition logic: =IFS(cond1, val1, cond2, val2, ..., TRUE, default).")
	}
	if strings.Contains(up, "CONCATENATE") {
		out = append(out, "CONCATENATE is legacy. Consider TEXTJOIN(delimiter, ignore_empty, range) for joining with delimiters, or use & operator for simple concatenation.")
	}
	if strings.Contains(up, "INDEX") && strings.Contains(up, "MATCH") {
		out = append(out, "INDEX+MATCH combo detected. XLOOKUP can often replace this with simpler syntax.")
	}
	if HasFullColumn(formula) {
		out = append(out, "Full column references (e.g., A:A) detected. Use bounded ranges (e.g., A2:A1000) for better performance.")
	}
	return out
}
