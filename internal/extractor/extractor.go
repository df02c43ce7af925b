// Package extractor reads spreadsheet bytes into loosely-typed rows without
// interpreting cell values. Column labels come from the first non-empty row.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrDecode marks spreadsheet bytes that cannot be read as a workbook:
// corrupt files, wrong formats, workbooks without sheets or a header row.
var ErrDecode = errors.New("spreadsheet decode failed")

// RawRow maps an original column label to the raw cell value as a string.
type RawRow map[string]string

// Sheet is the result of extracting one workbook: the header in original
// order plus one RawRow per data row.
type Sheet struct {
	Columns []string
	Rows    []RawRow
}

// TotalRows reports the number of data rows in the sheet.
func (s *Sheet) TotalRows() int {
	return len(s.Rows)
}

// Extract decodes workbook bytes and returns the first sheet's rows keyed by
// the header labels. Only the first sheet is read; expense exports are
// single-sheet workbooks.
func Extract(data []byte) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrDecode)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: reading sheet %q: %v", ErrDecode, sheets[0], err)
	}

	headerIdx := -1
	for i, row := range rows {
		if !rowEmpty(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return nil, fmt.Errorf("%w: no header row found", ErrDecode)
	}

	columns := make([]string, 0, len(rows[headerIdx]))
	for i, label := range rows[headerIdx] {
		label = strings.TrimSpace(label)
		if label == "" {
			label = fmt.Sprintf("Column %d", i+1)
		}
		columns = append(columns, label)
	}

	sheet := &Sheet{Columns: columns}
	for _, row := range rows[headerIdx+1:] {
		if rowEmpty(row) {
			continue
		}
		raw := make(RawRow, len(columns))
		for i, col := range columns {
			if i < len(row) {
				raw[col] = strings.TrimSpace(row[i])
			} else {
				raw[col] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, raw)
	}

	return sheet, nil
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
