package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/sheetmind/internal/security"
)

func salesInput() Input {
	cells := map[string]any{
		"A1": "Region", "B1": "Product", "C1": "Sales", "D1": "Order ID", "E1": "Order Date",
	}
	regions := []string{"East", "West", "East", "West", "East", "North", "East", "West"}
	products := []string{"Apple", "Pear", "Fig", "Kiwi", "Plum", "Lime", "Date", "Yam"}
	sales := []any{100.0, 200.0, "1,500", 50.0, 25.5, 300.0, 10.0, 90.0}
	for i := 0; i < 8; i++ {
		row := i + 2
		cells["A"+itoa(row)] = regions[i]
		cells["b"+itoa(row)] = products[i]
		cells["C"+itoa(row)] = sales[i]
		cells["D"+itoa(row)] = float64(i + 1)
		cells["E"+itoa(row)] = "2024-01-0" + itoa(i+1)
	}
	return Input{SheetName: "Sales", Cells: cells}
}

func itoa(n int) string { return FormatValue(n) }

func TestParseRef(t *testing.T) {
	col, row, err := ParseRef("b12")
	require.NoError(t, err)
	require.Equal(t, "B", col)
	require.Equal(t, 12, row)

	for _, bad := range []string{"", "A0", "$A$1", "A1:B2", "1A", "Sheet1!A1", "hello"} {
		_, _, err := ParseRef(bad)
		require.Error(t, err, bad)
	}
}

func TestNewGrid_NormalizesAndOrders(t *testing.T) {
	g := NewGrid(map[string]any{"aa1": "x", "B1": "y", "A1": "z", "nope": 1, "A3": true})
	require.Equal(t, []string{"A", "B", "AA"}, g.Columns())
	require.Equal(t, 1, g.Skipped())
	require.Equal(t, 3, g.LastRow())
	v, ok := g.Lookup("a3")
	require.True(t, ok)
	require.Equal(t, "TRUE", v)
	require.Equal(t, 1, g.DataRows())
}

func TestAnalyze_InfersTypesAndSuggestions(t *testing.T) {
	s := NewSnapshot(salesInput())
	m := s.Meta
	require.Equal(t, "Sales", m.SheetName)
	require.Equal(t, 9, m.LastRow)
	require.Equal(t, 8, m.DataRows)
	require.Equal(t, 5, m.TotalColumns)

	types := map[string]ColumnType{}
	for _, c := range m.Columns {
		types[c.Letter] = c.Type
	}
	require.Equal(t, map[string]ColumnType{
		"A": TypeCategorical, "B": TypeText, "C": TypeNumeric, "D": TypeNumeric, "E": TypeDate,
	}, types)

	sales, ok := m.Column("C")
	require.True(t, ok)
	require.Equal(t, 10.0, *sales.Min)
	require.Equal(t, 1500.0, *sales.Max)
	require.Equal(t, 2275.5, *sales.Sum)
	require.Equal(t, 284.44, *sales.Avg)
	require.Len(t, sales.Samples, 5)

	region, _ := m.Column("A")
	require.Equal(t, []string{"East", "West", "North"}, region.Categories)

	require.Equal(t, []string{"A"}, m.SuggestedGroupBy)
	require.Equal(t, []string{"C"}, m.SuggestedAggregate)
	require.Equal(t, "E", m.SuggestedDateColumn)
	require.Equal(t, "A (Region)", m.Labeled(m.SuggestedGroupBy))
	require.Equal(t, "None detected", m.Labeled(nil))

	desc := m.Describe()
	require.Contains(t, desc, "Last row with data: 9")
	require.Contains(t, desc, `- Column C "Sales": numeric, 8 unique`)
}

func TestAnalyze_IsDeterministic(t *testing.T) {
	in := salesInput()
	a := Analyze("Sales", NewGrid(in.Cells))
	b := Analyze("Sales", NewGrid(in.Cells))
	require.Equal(t, a, b)
}

func TestNewSnapshot_PinsSuppliedLastRow(t *testing.T) {
	in := salesInput()
	in.Metadata = &Metadata{LastRow: 500}
	s := NewSnapshot(in)
	require.Equal(t, 9, s.LastRow())
}

func TestSnapshot_Reads(t *testing.T) {
	s := NewSnapshot(salesInput())

	h, err := s.Headers()
	require.NoError(t, err)
	b, err := json.Marshal(h)
	require.NoError(t, err)
	require.Equal(t, `{"A":"Region","B":"Product","C":"Sales","D":"Order ID","E":"Order Date"}`, string(b))

	vals, err := s.ColumnValues("c", 3)
	require.NoError(t, err)
	require.Equal(t, []RowValue{{2, "100"}, {3, "200"}, {4, "1,500"}}, vals)

	_, err = s.Row(99)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "Row 99 not found", err.Error())

	v, err := s.Cell("c4")
	require.NoError(t, err)
	require.Equal(t, "1,500", v)
	_, err = s.Cell("Z9")
	require.EqualError(t, err, "Cell Z9 not found")
	_, err = s.Cell("??")
	require.Error(t, err)

	n, err := s.CountRows()
	require.NoError(t, err)
	require.Equal(t, 8, n)

	info, err := s.Extent()
	require.NoError(t, err)
	require.Equal(t, "A1:E9", info.DataRange)
	require.Equal(t, 9, info.RowCount)
	require.Equal(t, 5, info.ColumnCount)
}

func TestSnapshot_ColumnStatsAndChartRange(t *testing.T) {
	s := NewSnapshot(salesInput())

	st, err := s.ColumnStats("a")
	require.NoError(t, err)
	require.Equal(t, TypeCategorical, st.Type)
	require.Equal(t, 3, st.UniqueCount)
	require.Equal(t, []string{"East", "West", "North"}, st.UniqueValues)
	require.Equal(t, 8, st.TotalRows)
	require.Equal(t, "startRow + 3 - 1 = 2 + 3 - 1 = 4", st.ChartEndRowFormula)

	cr, err := s.ChartRange("A")
	require.NoError(t, err)
	require.Equal(t, 2, cr.StartRow)
	require.Equal(t, 4, cr.EndRow)
	require.Equal(t, 4, cr.FillDownLastRow)
	require.Equal(t, "3 unique values -> chart rows 2 to 4, autoFillDown to row 4", cr.Explanation)

	empty, err := s.ChartRange("F")
	require.NoError(t, err)
	require.Equal(t, 10, empty.UniqueCount)
	require.Equal(t, 11, empty.EndRow)
	require.Equal(t, 11, empty.FillDownLastRow)

	_, err = s.ChartRange("1")
	require.Error(t, err)
}

func TestSnapshot_NilAnswersNoData(t *testing.T) {
	var s *Snapshot
	_, err := s.Headers()
	require.ErrorIs(t, err, ErrNoData)
	_, err = s.ColumnValues("A", 0)
	require.ErrorIs(t, err, ErrNoData)
	_, err = s.Cell("A1")
	require.ErrorIs(t, err, ErrNoData)
	_, err = s.ChartRange("A")
	require.ErrorIs(t, err, ErrNoData)
	require.Equal(t, 100, s.LastRow())
	require.Equal(t, "Sheet1", s.SheetName())
	require.Equal(t, "No spreadsheet data available.", s.Brief())
}

func TestTable(t *testing.T) {
	g := NewGrid(map[string]any{"A1": "Name", "B1": "Age", "A2": "Ann", "B2": 30.0})
	want := "| Row | A | B |\n" +
		"|-----|------|------|\n" +
		"| 1 (header) | Name | Age |\n" +
		"| 2 | Ann | 30 |\n" +
		"\n" +
		`Column mapping: Column A = "Name", Column B = "Age"`
	require.Equal(t, want, g.Table())

	long := NewGrid(map[string]any{"A1": strings.Repeat("x", 40)})
	require.Contains(t, long.Table(), "| "+strings.Repeat("x", 30)+" |")
	require.Empty(t, NewGrid(nil).Table())
}

func TestSnapshot_Context(t *testing.T) {
	s := NewSnapshot(Input{SheetName: "People", DataRange: "A1:B2", Selected: "B2",
		Cells: map[string]any{"A1": "Name", "B1": "Age", "A2": "Ann", "B2": "30"}})
	ctx := s.Context()
	require.True(t, strings.HasPrefix(ctx, "Active sheet: People\nData range: A1:B2\nSpreadsheet data:\n| Row |"))
	require.True(t, strings.HasSuffix(ctx, "Currently selected: B2"))
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "people.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Age"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Ann"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 30))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	sec, err := security.NewManager([]string{dir}, nil)
	require.NoError(t, err)

	in, err := NewLoader(sec, 100).Load(context.Background(), path, "")
	require.NoError(t, err)
	require.Equal(t, "Sheet1", in.SheetName)
	require.Equal(t, "A1:B2", in.DataRange)
	require.Equal(t, map[string]any{"A1": "Name", "B1": "Age", "A2": "Ann", "B2": "30"}, in.Cells)

	_, err = NewLoader(sec, 100).Load(context.Background(), path, "Missing")
	require.ErrorIs(t, err, ErrSheetNotFound)

	_, err = NewLoader(sec, 3).Load(context.Background(), path, "Sheet1")
	require.ErrorIs(t, err, ErrTooManyCells)

	other, err := security.NewManager([]string{t.TempDir()}, nil)
	require.NoError(t, err)
	_, err = NewLoader(other, 100).Load(context.Background(), path, "")
	require.True(t, errors.Is(err, security.ErrNotAllowed))
}

func TestLoader_LoadJSONSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.json")
	body := `{"sheetName":"Data","dataRange":"A1:A2","cells":{"A1":"Qty","A2":3}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	sec, err := security.NewManager([]string{dir}, nil)
	require.NoError(t, err)

	in, err := NewLoader(sec, 100).Load(context.Background(), path, "")
	require.NoError(t, err)
	require.Equal(t, "Data", in.SheetName)
	require.Equal(t, "A1:A2", in.DataRange)
	require.Equal(t, "Qty", in.Cells["A1"])
	require.EqualValues(t, 3, in.Cells["A2"])

	in, err = NewLoader(sec, 100).Load(context.Background(), path, "Renamed")
	require.NoError(t, err)
	require.Equal(t, "Renamed", in.SheetName)

	_, err = NewLoader(sec, 1).Load(context.Background(), path, "")
	require.ErrorIs(t, err, ErrTooManyCells)
}
