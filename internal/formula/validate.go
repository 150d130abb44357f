package formula

import (
	"fmt"
	"strings"
)

// Validate checks a spreadsheet formula for syntax problems: the leading '=',
// balanced parentheses outside string literals and quoted sheet names, even
// double quotes, known function names and per-function argument counts.
// It has no side effects and always returns the errors in the same order.
func Validate(formula string) (bool, []string) {
	if strings.TrimSpace(formula) == "" {
		return false, []string{"Empty formula"}
	}
	if !strings.HasPrefix(formula, "=") {
		return false, []string{"Formula must start with '='"}
	}
	body := formula[1:]
	if strings.TrimSpace(body) == "" {
		return false, []string{"Empty formula after '='"}
	}

	var errs []string
	mask := literalMask(body)

	depth := 0
	for i := 0; i < len(body); i++ {
		if mask[i] {
			continue
		}
		switch body[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				// positions are 1-based and count the leading '='
				errs = append(errs, fmt.Sprintf("Unexpected closing parenthesis at position %d", i+2))
			}
		}
	}
	if depth > 0 {
		errs = append(errs, fmt.Sprintf("Missing %d closing parenthesis(es)", depth))
	} else if depth < 0 {
		errs = append(errs, fmt.Sprintf("%d extra closing parenthesis(es)", -depth))
	}

	if strings.Count(body, `"`)%2 != 0 {
		errs = append(errs, "Unmatched double quote")
	}

	calls := functionCalls(body, mask)
	for _, c := range calls {
		if _, ok := knownFunctions[c.name]; !ok {
			errs = append(errs, "Unknown function: "+c.name)
		}
	}
	for _, c := range calls {
		arity, ok := knownFunctions[c.name]
		if !ok {
			continue
		}
		args, closed := callArguments(body, mask, c.open)
		if !closed {
			continue
		}
		n := countTopLevelArgs(args, mask[c.open+1:c.open+1+len(args)])
		if n < arity.Min {
			errs = append(errs, fmt.Sprintf("%s requires at least %d argument(s), got %d", c.name, arity.Min, n))
		}
		if arity.Max != unbounded && n > arity.Max {
			errs = append(errs, fmt.Sprintf("%s accepts at most %d argument(s), got %d", c.name, arity.Max, n))
		}
	}

	return len(errs) == 0, errs
}

// call is one IDENTIFIER( token found in a formula body.
type call struct {
	name string // upper-cased identifier
	pos  int    // index of the identifier's first byte
	open int    // index of the opening parenthesis
}

// literalMask marks the bytes of body that belong to double-quoted string
// literals or to quoted sheet names of the form 'Sheet Name'!. Unterminated
// strings extend to the end of the body.
func literalMask(body string) []bool {
	mask := make([]bool, len(body))
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '"':
			j := i + 1
			for j < len(body) && body[j] != '"' {
				j++
			}
			end := j
			if end >= len(body) {
				end = len(body) - 1
			}
			for k := i; k <= end; k++ {
				mask[k] = true
			}
			i = end
		case '\'':
			closing := strings.IndexByte(body[i+1:], '\'')
			if closing < 0 {
				continue
			}
			closing += i + 1
			if closing+1 < len(body) && body[closing+1] == '!' {
				for k := i; k <= closing; k++ {
					mask[k] = true
				}
				i = closing
			}
		}
	}
	return mask
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9') || b == '.'
}

// functionCalls lists every identifier immediately followed (ignoring
// whitespace) by '(' outside of literals, in order of appearance.
func functionCalls(body string, mask []bool) []call {
	var calls []call
	for i := 0; i < len(body); i++ {
		if mask[i] || !isIdentStart(body[i]) {
			continue
		}
		if i > 0 && !mask[i-1] && isIdentPart(body[i-1]) {
			continue
		}
		j := i
		for j < len(body) && !mask[j] && isIdentPart(body[j]) {
			j++
		}
		k := j
		for k < len(body) && (body[k] == ' ' || body[k] == '\t') {
			k++
		}
		if k < len(body) && !mask[k] && body[k] == '(' {
			calls = append(calls, call{name: strings.ToUpper(body[i:j]), pos: i, open: k})
		}
		i = j - 1
	}
	return calls
}

// callArguments returns the text between the parenthesis at open and its
// matching close. closed is false when the call is never closed.
func callArguments(body string, mask []bool, open int) (string, bool) {
	depth := 1
	for i := open + 1; i < len(body); i++ {
		if mask[i] {
			continue
		}
		switch body[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return body[open+1 : i], true
			}
		}
	}
	return "", false
}

// countTopLevelArgs counts comma-separated arguments at nesting depth zero.
// Blank argument text counts as zero arguments.
func countTopLevelArgs(args string, mask []bool) int {
	if strings.TrimSpace(args) == "" {
		return 0
	}
	count := 1
	depth := 0
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
				count++
			}
		}
	}
	return count
}
