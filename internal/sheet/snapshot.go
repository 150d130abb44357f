package sheet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/vinodismyname/sheetmind/config"
)

// DefaultSheetName is used when the caller does not name the active sheet.
const DefaultSheetName = "Sheet1"

// ErrNoData is returned by every read when no grid is bound.
var ErrNoData = errors.New("No sheet data available") //nolint:staticcheck // surfaced verbatim to the model

// NotFoundError reports a row or cell absent from the grid.
type NotFoundError struct {
	Kind string
	Ref  string
}

func (e *NotFoundError) Error() string { return e.Kind + " " + e.Ref + " not found" }

// Input is the sheet payload a client sends with a request.
type Input struct {
	SheetName string         `json:"sheetName,omitempty"`
	DataRange string         `json:"dataRange,omitempty"`
	Cells     map[string]any `json:"cells"`
	Selected  string         `json:"selectedRange,omitempty"`
	Metadata  *Metadata      `json:"metadata,omitempty"`
}

// Snapshot is the immutable per-invocation view the tool surface reads. A nil
// Snapshot is valid and answers every read with ErrNoData.
type Snapshot struct {
	Name      string
	DataRange string
	Selected  string
	Grid      *Grid
	Meta      Metadata
}

// NewSnapshot parses the cell map and derives metadata. Caller supplied
// metadata is kept but its LastRow is pinned to the grid's maximum row.
func NewSnapshot(in Input) *Snapshot {
	name := in.SheetName
	if name == "" {
		name = DefaultSheetName
	}
	g := NewGrid(in.Cells)
	s := &Snapshot{Name: name, DataRange: in.DataRange, Selected: in.Selected, Grid: g}
	if in.Metadata != nil {
		s.Meta = *in.Metadata
		s.Meta.SheetName = name
		if g.LastRow() > 0 {
			s.Meta.LastRow = g.LastRow()
		}
	} else {
		s.Meta = Analyze(name, g)
	}
	return s
}

func (s *Snapshot) ok() bool { return s != nil && s.Grid != nil }

// LastRow is the single source of truth for range bounds. It falls back to
// the configured default when nothing is known.
func (s *Snapshot) LastRow() int {
	if !s.ok() || s.Meta.LastRow < 1 {
		return config.DefaultLastRow
	}
	return s.Meta.LastRow
}

// SheetName returns the bound sheet name or the default.
func (s *Snapshot) SheetName() string {
	if s == nil || s.Name == "" {
		return DefaultSheetName
	}
	return s.Name
}

// Entry is one column-keyed value.
type Entry struct {
	Column string
	Value  string
}

// Row is an ordered column to value mapping. It encodes as a JSON object
// whose keys keep sheet column order.
type Row []Entry

func (r Row) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, e := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(e.Column)
		v, _ := json.Marshal(e.Value)
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Headers returns the row-1 values keyed by column letter.
func (s *Snapshot) Headers() (Row, error) {
	if !s.ok() {
		return nil, ErrNoData
	}
	return toRow(s.Grid.Row(1)), nil
}

// RowValue is one data cell in a column listing.
type RowValue struct {
	Row   int    `json:"row"`
	Value string `json:"value"`
}

// ColumnValues lists up to limit data values of a column ordered by row. A
// non-positive limit uses the default.
func (s *Snapshot) ColumnValues(column string, limit int) ([]RowValue, error) {
	if !s.ok() {
		return nil, ErrNoData
	}
	col, err := ColumnLetter(column)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = config.DefaultColumnValuesLimit
	}
	out := []RowValue{}
	for _, c := range s.Grid.Column(col) {
		if len(out) == limit {
			break
		}
		out = append(out, RowValue{Row: c.Row, Value: c.Value})
	}
	return out, nil
}

// Row returns the values of row n keyed by column letter.
func (s *Snapshot) Row(n int) (Row, error) {
	if !s.ok() {
		return nil, ErrNoData
	}
	cells := s.Grid.Row(n)
	if len(cells) == 0 {
		return nil, &NotFoundError{Kind: "Row", Ref: strconv.Itoa(n)}
	}
	return toRow(cells), nil
}

// Cell returns the raw value at ref.
func (s *Snapshot) Cell(ref string) (string, error) {
	if !s.ok() {
		return "", ErrNoData
	}
	col, row, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	v, ok := s.Grid.Get(col, row)
	if !ok {
		return "", &NotFoundError{Kind: "Cell", Ref: col + strconv.Itoa(row)}
	}
	return v, nil
}

// RangeInfo summarizes the data extent.
type RangeInfo struct {
	SheetName   string   `json:"sheetName"`
	DataRange   string   `json:"dataRange"`
	RowCount    int      `json:"rowCount"`
	ColumnCount int      `json:"columnCount"`
	LastRow     int      `json:"lastRow"`
	Columns     []string `json:"columns"`
}

// Extent reports the sheet name, declared range and counts.
func (s *Snapshot) Extent() (RangeInfo, error) {
	if !s.ok() {
		return RangeInfo{}, ErrNoData
	}
	return RangeInfo{
		SheetName:   s.SheetName(),
		DataRange:   s.DeclaredRange(),
		RowCount:    len(s.Grid.Rows()),
		ColumnCount: len(s.Grid.Columns()),
		LastRow:     s.Grid.LastRow(),
		Columns:     s.Grid.Columns(),
	}, nil
}

// DeclaredRange is the client supplied range, or the grid's bounding box.
func (s *Snapshot) DeclaredRange() string {
	if s.DataRange != "" {
		return s.DataRange
	}
	cols := s.Grid.Columns()
	if len(cols) == 0 {
		return ""
	}
	return fmt.Sprintf("A1:%s%d", cols[len(cols)-1], s.Grid.LastRow())
}

// CountRows counts rows below the header that hold any cell.
func (s *Snapshot) CountRows() (int, error) {
	if !s.ok() {
		return 0, ErrNoData
	}
	return s.Grid.DataRows(), nil
}

// ColumnStats describes one column for the model.
type ColumnStats struct {
	Column             string     `json:"column"`
	Header             string     `json:"header"`
	Type               ColumnType `json:"type"`
	UniqueCount        int        `json:"uniqueCount"`
	UniqueValues       []string   `json:"uniqueValues"`
	TotalRows          int        `json:"totalRows"`
	ChartEndRowFormula string     `json:"chartEndRowFormula"`
}

const maxUniqueValues = 10

// ColumnStats returns header, distinct values and inferred type of a column.
func (s *Snapshot) ColumnStats(column string) (ColumnStats, error) {
	if !s.ok() {
		return ColumnStats{}, ErrNoData
	}
	col, err := ColumnLetter(column)
	if err != nil {
		return ColumnStats{}, err
	}
	cm := analyzeColumn(col, s.Grid)
	header := cm.Header
	if header == "" {
		header = "Column " + col
	}
	uniq := []string{}
	seen := map[string]bool{}
	total := 0
	for _, c := range s.Grid.Column(col) {
		total++
		if c.Value == "" || seen[c.Value] {
			continue
		}
		seen[c.Value] = true
		if len(uniq) < maxUniqueValues {
			uniq = append(uniq, c.Value)
		}
	}
	return ColumnStats{
		Column:       col,
		Header:       header,
		Type:         cm.Type,
		UniqueCount:  cm.UniqueCount,
		UniqueValues: uniq,
		TotalRows:    total,
		ChartEndRowFormula: fmt.Sprintf("startRow + %d - 1 = 2 + %d - 1 = %d",
			cm.UniqueCount, cm.UniqueCount, 2+cm.UniqueCount-1),
	}, nil
}

// ChartRange is the row span a per-group summary occupies.
type ChartRange struct {
	Column          string `json:"column"`
	UniqueCount     int    `json:"uniqueCount"`
	StartRow        int    `json:"startRow"`
	EndRow          int    `json:"endRow"`
	FillDownLastRow int    `json:"fillDownLastRow"`
	Explanation     string `json:"explanation"`
}

// ChartRange sizes a summary grouped by column: rows 2..1+unique hold one
// line per distinct value. Metadata counts win; the grid is recounted
// otherwise, and a column with no values assumes a fixed fallback.
func (s *Snapshot) ChartRange(column string) (ChartRange, error) {
	if !s.ok() {
		return ChartRange{}, ErrNoData
	}
	col, err := ColumnLetter(column)
	if err != nil {
		return ChartRange{}, err
	}
	unique := 0
	if cm, ok := s.Meta.Column(col); ok {
		unique = cm.UniqueCount
	}
	if unique == 0 {
		seen := map[string]bool{}
		for _, c := range s.Grid.Column(col) {
			if c.Value != "" {
				seen[c.Value] = true
			}
		}
		unique = len(seen)
	}
	if unique == 0 {
		unique = config.DefaultChartRangeFallback
	}
	const start = 2
	end := start + unique - 1
	fill := 1 + unique
	return ChartRange{
		Column:          col,
		UniqueCount:     unique,
		StartRow:        start,
		EndRow:          end,
		FillDownLastRow: fill,
		Explanation:     fmt.Sprintf("%d unique values -> chart rows %d to %d, autoFillDown to row %d", unique, start, end, fill),
	}, nil
}

func toRow(cells []Cell) Row {
	r := make(Row, 0, len(cells))
	for _, c := range cells {
		r = append(r, Entry{Column: c.Column, Value: c.Value})
	}
	return r
}
