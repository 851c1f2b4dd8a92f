package sheet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Row is an ordered column → value mapping. The zero value is ready to use.
type Row struct {
	cols []string
	vals map[string]any
}

// NewRow builds a row from alternating column/value pairs.
func NewRow(pairs ...any) Row {
	var r Row
	for i := 0; i+1 < len(pairs); i += 2 {
		col, _ := pairs[i].(string)
		r.Set(col, pairs[i+1])
	}
	return r
}

// Set assigns a value, appending the column on first use.
func (r *Row) Set(col string, v any) {
	if r.vals == nil {
		r.vals = make(map[string]any)
	}
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = v
}

// Get returns the value stored under col.
func (r Row) Get(col string) (any, bool) {
	v, ok := r.vals[col]
	return v, ok
}

// Columns lists the row's columns in insertion order.
func (r Row) Columns() []string {
	return append([]string(nil), r.cols...)
}

// Sheet is a named table destined for one worksheet.
type Sheet struct {
	Name string
	// Columns fixes the header order; when empty the union of row columns in
	// first-seen order is used.
	Columns []string
	Rows    []Row
}

// Header resolves the column order written for the sheet.
func (s Sheet) Header() []string {
	if len(s.Columns) > 0 {
		return append([]string(nil), s.Columns...)
	}
	var header []string
	seen := make(map[string]bool)
	for _, row := range s.Rows {
		for _, col := range row.cols {
			if !seen[col] {
				seen[col] = true
				header = append(header, col)
			}
		}
	}
	return header
}

// ErrNoSheets is returned when Write receives nothing to write.
var ErrNoSheets = errors.New("sheet: no sheets to write")

const maxSheetName = 31

// Write renders the sheets into a single XLSX workbook, one worksheet per sheet
// in the order given.
func Write(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	names := make(map[string]bool, len(sheets))
	for _, s := range sheets {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, errors.New("sheet: sheet name required")
		}
		if len([]rune(name)) > maxSheetName {
			return nil, fmt.Errorf("sheet: sheet name %q exceeds %d characters", name, maxSheetName)
		}
		key := strings.ToLower(name)
		if names[key] {
			return nil, fmt.Errorf("sheet: duplicate sheet name %q", name)
		}
		names[key] = true
	}

	f := excelize.NewFile()
	defer f.Close()
	defaultSheet := f.GetSheetName(0)
	for i, s := range sheets {
		name := strings.TrimSpace(s.Name)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return nil, fmt.Errorf("sheet: rename %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("sheet: new sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, s); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("sheet: encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, name string, s Sheet) error {
	header := s.Header()
	if len(header) == 0 {
		return nil
	}
	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &headerCells); err != nil {
		return fmt.Errorf("sheet: write header %q: %w", name, err)
	}
	for i, row := range s.Rows {
		cells := make([]any, len(header))
		for j, col := range header {
			if v, ok := row.vals[col]; ok {
				cells[j] = cellValue(v)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &cells); err != nil {
			return fmt.Errorf("sheet: write row %d of %q: %w", i+2, name, err)
		}
	}
	return nil
}

func cellValue(v any) any {
	switch val := v.(type) {
	case decimal.Decimal:
		return val.InexactFloat64()
	case *decimal.Decimal:
		if val == nil {
			return nil
		}
		return val.InexactFloat64()
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}
