// Package sheet holds the per-request spreadsheet snapshot: the cell grid,
// derived column and sheet metadata, and the read operations the reasoning
// loop calls against it.
package sheet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Cell is one parsed grid entry.
type Cell struct {
	Ref    string
	Column string
	Row    int
	Value  string
}

// Grid is an immutable cell map keyed by upper-case A1 references. Values are
// kept in their display string form.
type Grid struct {
	cells   map[string]Cell
	columns []string
	rows    []int
	lastRow int
	skipped int
}

// ParseRef splits an A1 reference into its upper-case column letters and
// 1-based row. Absolute markers and sheet prefixes are not accepted.
func ParseRef(ref string) (string, int, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" || strings.ContainsAny(ref, "$!:") {
		return "", 0, fmt.Errorf("sheet: invalid cell reference %q", ref)
	}
	if _, _, err := excelize.CellNameToCoordinates(ref); err != nil {
		return "", 0, fmt.Errorf("sheet: invalid cell reference %q: %w", ref, err)
	}
	col, row, err := excelize.SplitCellName(ref)
	if err != nil {
		return "", 0, fmt.Errorf("sheet: invalid cell reference %q: %w", ref, err)
	}
	return col, row, nil
}

// ColumnLetter normalizes a column argument ("b", " C ") to upper-case
// letters and checks it names a real column.
func ColumnLetter(col string) (string, error) {
	col = strings.ToUpper(strings.TrimSpace(col))
	if _, err := excelize.ColumnNameToNumber(col); err != nil {
		return "", fmt.Errorf("sheet: invalid column %q: %w", col, err)
	}
	return col, nil
}

// ColumnName returns the letters for a 1-based column index.
func ColumnName(n int) string {
	name, err := excelize.ColumnNumberToName(n)
	if err != nil {
		return ""
	}
	return name
}

// FormatValue renders a scalar cell value the way it is shown to the model.
// Whole floats drop their fractional part so JSON numbers read naturally.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

// NewGrid builds a grid from raw cell values. References are normalized to
// upper case; entries whose reference cannot be parsed are dropped and
// counted in Skipped.
func NewGrid(raw map[string]any) *Grid {
	g := &Grid{cells: make(map[string]Cell, len(raw))}
	cols := map[string]struct{}{}
	rows := map[int]struct{}{}
	for ref, v := range raw {
		col, row, err := ParseRef(ref)
		if err != nil {
			g.skipped++
			continue
		}
		key := col + strconv.Itoa(row)
		g.cells[key] = Cell{Ref: key, Column: col, Row: row, Value: FormatValue(v)}
		cols[col] = struct{}{}
		rows[row] = struct{}{}
		if row > g.lastRow {
			g.lastRow = row
		}
	}
	for c := range cols {
		g.columns = append(g.columns, c)
	}
	sortColumns(g.columns)
	for r := range rows {
		g.rows = append(g.rows, r)
	}
	sort.Ints(g.rows)
	return g
}

// sortColumns orders letters the way a sheet does: A..Z, then AA..
func sortColumns(cols []string) {
	sort.Slice(cols, func(i, j int) bool {
		if len(cols[i]) != len(cols[j]) {
			return len(cols[i]) < len(cols[j])
		}
		return cols[i] < cols[j]
	})
}

// Len reports the number of cells.
func (g *Grid) Len() int { return len(g.cells) }

// Skipped reports how many input entries had unparseable references.
func (g *Grid) Skipped() int { return g.skipped }

// LastRow is the largest row number present, or 0 for an empty grid.
func (g *Grid) LastRow() int { return g.lastRow }

// Columns returns the column letters present, in sheet order.
func (g *Grid) Columns() []string { return append([]string(nil), g.columns...) }

// Rows returns the row numbers present, ascending.
func (g *Grid) Rows() []int { return append([]int(nil), g.rows...) }

// Get returns the value at col+row.
func (g *Grid) Get(col string, row int) (string, bool) {
	c, ok := g.cells[col+strconv.Itoa(row)]
	return c.Value, ok
}

// Lookup returns the value at a reference in any case.
func (g *Grid) Lookup(ref string) (string, bool) {
	col, row, err := ParseRef(ref)
	if err != nil {
		return "", false
	}
	return g.Get(col, row)
}

// Column returns the data cells (row > 1) of one column ordered by row.
func (g *Grid) Column(col string) []Cell {
	var out []Cell
	for _, r := range g.rows {
		if r < 2 {
			continue
		}
		if c, ok := g.cells[col+strconv.Itoa(r)]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Row returns the cells of one row in column order.
func (g *Grid) Row(row int) []Cell {
	var out []Cell
	for _, col := range g.columns {
		if c, ok := g.cells[col+strconv.Itoa(row)]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Header returns the row-1 value of a column.
func (g *Grid) Header(col string) string {
	v, _ := g.Get(col, 1)
	return v
}

// DataRows counts distinct rows below the header that hold at least one cell.
func (g *Grid) DataRows() int {
	n := 0
	for _, r := range g.rows {
		if r > 1 {
			n++
		}
	}
	return n
}

// Cells returns a copy of the grid as a plain reference to value map.
func (g *Grid) Cells() map[string]string {
	out := make(map[string]string, len(g.cells))
	for k, c := range g.cells {
		out[k] = c.Value
	}
	return out
}
