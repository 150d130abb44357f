package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/sheetmind/internal/security"
)

// ErrTooManyCells is returned when a worksheet exceeds the import cap.
var ErrTooManyCells = errors.New("sheet: worksheet exceeds cell limit")

// ErrSheetNotFound is returned when the named worksheet does not exist.
var ErrSheetNotFound = errors.New("sheet: worksheet not found")

// Loader imports worksheets from .xlsx files, or saved JSON snapshots, inside
// the security allow-list.
type Loader struct {
	sec      *security.Manager
	maxCells int
}

// NewLoader returns a loader bounded by the allow-list and a cell cap.
func NewLoader(sec *security.Manager, maxCells int) *Loader {
	return &Loader{sec: sec, maxCells: maxCells}
}

// Load reads one worksheet into an Input. An empty sheet name selects the
// first worksheet. Empty cells are skipped.
func (l *Loader) Load(ctx context.Context, path, sheetName string) (Input, error) {
	canonical, err := l.sec.ValidateOpenPath(path)
	if err != nil {
		return Input{}, err
	}
	if strings.EqualFold(filepath.Ext(canonical), ".json") {
		return l.loadJSON(canonical, sheetName)
	}
	f, err := excelize.OpenFile(canonical)
	if err != nil {
		return Input{}, fmt.Errorf("sheet: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheetName == "" {
		sheetName = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if idx, _ := f.GetSheetIndex(sheetName); idx < 0 {
		return Input{}, fmt.Errorf("%w: %q", ErrSheetNotFound, sheetName)
	}

	rows, err := f.Rows(sheetName)
	if err != nil {
		return Input{}, fmt.Errorf("sheet: read rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cells := map[string]any{}
	maxCol, rowNum, lastRow := 0, 0, 0
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return Input{}, err
		}
		rowNum++
		cols, err := rows.Columns()
		if err != nil {
			return Input{}, fmt.Errorf("sheet: read row %d: %w", rowNum, err)
		}
		for i, v := range cols {
			if v == "" {
				continue
			}
			if l.maxCells > 0 && len(cells) >= l.maxCells {
				return Input{}, fmt.Errorf("%w (%d)", ErrTooManyCells, l.maxCells)
			}
			cells[ColumnName(i+1)+strconv.Itoa(rowNum)] = v
			maxCol = max(maxCol, i+1)
			lastRow = rowNum
		}
	}
	if err := rows.Error(); err != nil {
		return Input{}, fmt.Errorf("sheet: iterate rows: %w", err)
	}

	in := Input{SheetName: sheetName, Cells: cells}
	if maxCol > 0 {
		in.DataRange = fmt.Sprintf("A1:%s%d", ColumnName(maxCol), lastRow)
	}
	return in, nil
}

// loadJSON reads a snapshot saved in the request wire shape.
func (l *Loader) loadJSON(path, sheetName string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, fmt.Errorf("sheet: read snapshot: %w", err)
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, fmt.Errorf("sheet: decode snapshot: %w", err)
	}
	if l.maxCells > 0 && len(in.Cells) > l.maxCells {
		return Input{}, fmt.Errorf("%w (%d)", ErrTooManyCells, l.maxCells)
	}
	if sheetName != "" {
		in.SheetName = sheetName
	}
	return in, nil
}
