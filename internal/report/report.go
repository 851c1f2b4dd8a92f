// Package report assembles named sheets into a downloadable workbook.
package report

import (
	"errors"
	"fmt"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
)

// ContentType is the media type of assembled workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrNoSheets is returned when nothing is supplied.
var ErrNoSheets = errors.New("report: at least one sheet is required")

// Assemble writes sheets, in order, as one xlsx workbook. Column order is taken
// from each sheet as supplied.
func Assemble(sheets ...sheet.Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	data, err := sheet.Write(sheets)
	if err != nil {
		return nil, fmt.Errorf("report: assemble: %w", err)
	}
	return data, nil
}

// Field is one label/value line of a summary sheet.
type Field struct {
	Label string
	Value any
}

// SummarySheet renders label/value pairs as a two column sheet.
func SummarySheet(name string, fields ...Field) sheet.Sheet {
	out := sheet.Sheet{Name: name, Columns: []string{"Item", "Value"}, Rows: make([]sheet.Row, 0, len(fields))}
	for _, f := range fields {
		out.Rows = append(out.Rows, sheet.NewRow("Item", f.Label, "Value", f.Value))
	}
	return out
}

// Filename builds a download name from its parts, e.g. "macros_amazon_b2c_2024-04.xlsx".
func Filename(parts ...string) string {
	name := ""
	for _, p := range parts {
		p = sanitize(p)
		if p == "" {
			continue
		}
		if name != "" {
			name += "_"
		}
		name += p
	}
	if name == "" {
		name = "report"
	}
	return name + ".xlsx"
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ' || r == '/' || r == '.':
			out = append(out, '-')
		}
	}
	return string(out)
}
