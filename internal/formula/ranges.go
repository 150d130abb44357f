package formula

import (
	"fmt"
	"strings"
)

// rangeRef is a column-bounded reference that is missing row bounds: either a
// full column span such as B:D or an open-ended span such as A2:A.
type rangeRef struct {
	start, end int // byte span within the formula
	startCol   string
	startRow   string // empty for full column spans
	endCol     string
}

func (r rangeRef) text() string { return r.startCol + r.startRow + ":" + r.endCol }

func (r rangeRef) fullColumn() bool { return r.startRow == "" }

// bounded renders the reference with explicit rows ending at lastRow.
func (r rangeRef) bounded(lastRow int) string {
	row := r.startRow
	if row == "" {
		row = "2"
	}
	return fmt.Sprintf("%s%s:%s%d", r.startCol, row, r.endCol, lastRow)
}

func isLetter(b byte) bool { return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// scanColumn reads an optional '$' and one to three column letters at i.
func scanColumn(s string, i int) (int, bool) {
	j := i
	if j < len(s) && s[j] == '$' {
		j++
	}
	k := j
	for k < len(s) && isLetter(s[k]) && k-j < 4 {
		k++
	}
	if k == j || k-j > 3 {
		return i, false
	}
	return k, true
}

// scanRow reads an optional '$' and row digits at i.
func scanRow(s string, i int) int {
	j := i
	if j < len(s) && s[j] == '$' {
		j++
	}
	k := j
	for k < len(s) && isDigit(s[k]) {
		k++
	}
	if k == j {
		return i
	}
	return k
}

// unboundedRanges finds full column and open-ended references outside string
// literals and quoted sheet names, in order of appearance.
func unboundedRanges(formula string) []rangeRef {
	mask := literalMask(formula)
	var refs []rangeRef
	for i := 0; i < len(formula); i++ {
		if mask[i] || !(isLetter(formula[i]) || formula[i] == '$') {
			continue
		}
		if i > 0 && !mask[i-1] && (isIdentPart(formula[i-1]) || formula[i-1] == '$') {
			continue
		}
		colEnd, ok := scanColumn(formula, i)
		if !ok {
			continue
		}
		rowEnd := scanRow(formula, colEnd)
		if rowEnd >= len(formula) || formula[rowEnd] != ':' {
			i = rowEnd - 1
			continue
		}
		endStart := rowEnd + 1
		endCol, ok := scanColumn(formula, endStart)
		if !ok {
			i = rowEnd
			continue
		}
		if endCol < len(formula) {
			next := formula[endCol]
			if isIdentPart(next) || next == '$' || next == '(' || next == '!' {
				i = endCol - 1
				continue
			}
		}
		refs = append(refs, rangeRef{
			start:    i,
			end:      endCol,
			startCol: formula[i:colEnd],
			startRow: formula[colEnd:rowEnd],
			endCol:   formula[endStart:endCol],
		})
		i = endCol - 1
	}
	return refs
}

// rewriteRanges replaces the references accepted by keep with their bounded
// form and returns the rewritten formula plus the replaced references.
func rewriteRanges(formula string, lastRow int, keep func(rangeRef) bool) (string, []rangeRef) {
	refs := unboundedRanges(formula)
	if len(refs) == 0 {
		return formula, nil
	}
	var b strings.Builder
	var applied []rangeRef
	prev := 0
	for _, r := range refs {
		if !keep(r) {
			continue
		}
		b.WriteString(formula[prev:r.start])
		b.WriteString(r.bounded(lastRow))
		prev = r.end
		applied = append(applied, r)
	}
	if len(applied) == 0 {
		return formula, nil
	}
	b.WriteString(formula[prev:])
	return b.String(), applied
}

// BoundFullColumns rewrites full column references (A:A, B:D) to start at
// row 2 and end at lastRow.
func BoundFullColumns(formula string, lastRow int) (string, []string) {
	fixed, applied := rewriteRanges(formula, lastRow, rangeRef.fullColumn)
	warnings := make([]string, 0, len(applied))
	for _, r := range applied {
		warnings = append(warnings, fmt.Sprintf("Fixed full column %s to %s", r.text(), r.bounded(lastRow)))
	}
	return fixed, warnings
}

// CloseOpenRanges rewrites open-ended references (A2:A) to end at lastRow.
func CloseOpenRanges(formula string, lastRow int) (string, []string) {
	fixed, applied := rewriteRanges(formula, lastRow, func(r rangeRef) bool { return !r.fullColumn() })
	warnings := make([]string, 0, len(applied))
	for _, r := range applied {
		warnings = append(warnings, fmt.Sprintf("Fixed open-ended range %s to %s", r.text(), r.bounded(lastRow)))
	}
	return fixed, warnings
}

// HasOpenRange reports whether formula contains an open-ended reference.
func HasOpenRange(formula string) bool {
	for _, r := range unboundedRanges(formula) {
		if !r.fullColumn() {
			return true
		}
	}
	return false
}

// HasFullColumn reports whether formula contains a full column reference.
func HasFullColumn(formula string) bool {
	for _, r := range unboundedRanges(formula) {
		if r.fullColumn() {
			return true
		}
	}
	return false
}
