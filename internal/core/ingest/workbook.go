package ingest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

// readXLSX reads the first sheet with raw cell values, so dates stay Excel
// serials and numbers keep full precision. Numeric cells become float64 and
// everything else stays text.
func readXLSX(data []byte) ([][]any, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	grid := make([][]any, len(rows))
	for r, row := range rows {
		cells := make([]any, len(row))
		for c, raw := range row {
			cells[c] = xlsxValue(f, sheet, c, r, raw)
		}
		grid[r] = cells
	}
	return grid, nil
}

func xlsxValue(f *excelize.File, sheet string, col, row int, raw string) any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return raw
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return raw
	}
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return raw
}

// readXLS reads the first sheet of a legacy workbook. Cells arrive as text;
// numeric and date cells are parsed downstream.
func readXLS(data []byte) ([][]any, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		// Some exports name xlsx files .xls.
		if grid, errX := readXLSX(data); errX == nil {
			return grid, nil
		}
		return nil, fmt.Errorf("%w: open xls: %v", ErrUnsupportedFormat, err)
	}
	if len(workbook.GetSheets()) == 0 {
		return nil, ErrEmptyFile
	}
	sheet, err := workbook.GetSheet(0)
	if err != nil {
		return nil, fmt.Errorf("read xls sheet: %w", err)
	}

	var grid [][]any
	for _, row := range sheet.GetRows() {
		var cells []any
		for _, cell := range row.GetCols() {
			s := strings.TrimSpace(cell.GetString())
			if s == "" {
				cells = append(cells, nil)
				continue
			}
			cells = append(cells, s)
		}
		grid = append(grid, cells)
	}
	return grid, nil
}
