package sheet

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const tableValueWidth = 30

// Table renders the grid as a pipe-delimited table with a leading row-number
// column, then a "Column mapping" line naming each header. Values are cut to
// 30 runes. An empty grid renders as "".
func (g *Grid) Table() string {
	if g == nil || g.Len() == 0 {
		return ""
	}
	cols := g.Columns()
	rows := g.Rows()

	var b strings.Builder
	b.WriteString("| Row |")
	for _, c := range cols {
		b.WriteString(" " + c + " |")
	}
	b.WriteString("\n|-----|")
	b.WriteString(strings.Repeat("------|", len(cols)))
	for i, r := range rows {
		label := strconv.Itoa(r)
		if i == 0 {
			label += " (header)"
		}
		b.WriteString("\n| " + label + " |")
		for _, c := range cols {
			v, _ := g.Get(c, r)
			b.WriteString(" " + clip(v, tableValueWidth) + " |")
		}
	}

	var mapping []string
	for _, c := range cols {
		if h, ok := g.Get(c, rows[0]); ok && h != "" {
			mapping = append(mapping, "Column "+c+" = \""+h+"\"")
		}
	}
	if len(mapping) > 0 {
		b.WriteString("\n\nColumn mapping: " + strings.Join(mapping, ", "))
	}
	return b.String()
}

// Context builds the spreadsheet block sent with a chat completion: active
// sheet, declared range, the table and the current selection.
func (s *Snapshot) Context() string {
	if !s.ok() {
		return ""
	}
	var parts []string
	parts = append(parts, "Active sheet: "+s.SheetName())
	if s.DataRange != "" {
		parts = append(parts, "Data range: "+s.DataRange)
	}
	if t := s.Grid.Table(); t != "" {
		parts = append(parts, "Spreadsheet data:\n"+t)
	}
	if s.Selected != "" {
		parts = append(parts, "Currently selected: "+s.Selected)
	}
	return strings.Join(parts, "\n")
}

// Brief is the short overview given to the reasoning loop, which explores the
// data through tools instead of reading the whole table.
func (s *Snapshot) Brief() string {
	if !s.ok() {
		return "No spreadsheet data available."
	}
	parts := []string{"Sheet: " + s.SheetName()}
	if s.DataRange != "" {
		parts = append(parts, "Data range: "+s.DataRange)
	}
	if s.Grid.Len() > 0 {
		parts = append(parts,
			"Rows: "+strconv.Itoa(len(s.Grid.Rows()))+", Columns: "+strconv.Itoa(len(s.Grid.Columns())),
			"Use get_headers and get_column_values tools to explore the data.")
	}
	return strings.Join(parts, "\n")
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
