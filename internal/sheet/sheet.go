// Package sheet reads marketplace and trial-balance spreadsheets into header-keyed
// records and writes named tables back out as XLSX workbooks.
package sheet

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Format identifies the container of an uploaded spreadsheet.
type Format string

const (
	// FormatAuto sniffs the container from its magic bytes.
	FormatAuto Format = ""
	// FormatXLSX is an Office Open XML workbook.
	FormatXLSX Format = "xlsx"
	// FormatXLS is a legacy BIFF workbook.
	FormatXLS Format = "xls"
	// FormatCSV is comma (or tab) separated text.
	FormatCSV Format = "csv"
)

// FormatFromName maps a file name extension to a Format, defaulting to FormatAuto.
func FormatFromName(name string) Format {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xlsm"):
		return FormatXLSX
	case strings.HasSuffix(lower, ".xls"):
		return FormatXLS
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".tsv"), strings.HasSuffix(lower, ".txt"):
		return FormatCSV
	default:
		return FormatAuto
	}
}

// Record is one data row keyed by normalized header name.
type Record map[string]string

// Get returns the trimmed cell value for the normalized header.
func (r Record) Get(header string) string {
	return strings.TrimSpace(r[header])
}

// Table is the parsed first worksheet of an upload.
type Table struct {
	// Headers are the normalized, de-duplicated header keys in column order.
	Headers []string
	// Display holds the original header text for each entry in Headers.
	Display []string
	Records []Record
	// Rows maps each record back to its 1-based spreadsheet row.
	Rows []int
}

// Len reports the number of data records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// HasHeader reports whether the normalized header exists.
func (t *Table) HasHeader(header string) bool {
	if t == nil {
		return false
	}
	key := NormalizeHeader(header)
	for _, h := range t.Headers {
		if h == key {
			return true
		}
	}
	return false
}

// ParseError reports an input that could not be turned into a table.
type ParseError struct {
	Format Format
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "sheet: parse"
	if e.Format != FormatAuto {
		msg += " " + string(e.Format)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrorf(format Format, err error, reason string, args ...any) *ParseError {
	return &ParseError{Format: format, Reason: fmt.Sprintf(reason, args...), Err: err}
}

// NormalizeHeader trims, collapses inner whitespace and case-folds a header so
// that "Seller  SKU " and "seller sku" compare equal.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	fields := strings.Fields(h)
	if len(fields) == 0 {
		return ""
	}
	return cases.Fold().String(strings.Join(fields, " "))
}

// normalizeHeaders keys a raw header row. Blank headers become "" so their
// column is skipped; repeated headers get an index suffix.
func normalizeHeaders(raw []string) (keys, display []string) {
	keys = make([]string, len(raw))
	display = make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	count := make(map[string]int, len(raw))
	for i, h := range raw {
		base := NormalizeHeader(h)
		if base == "" {
			continue
		}
		count[base]++
		key := base
		if count[base] > 1 {
			key = fmt.Sprintf("%s_%d", base, count[base])
		}
		for used[key] {
			count[base]++
			key = fmt.Sprintf("%s_%d", base, count[base])
		}
		used[key] = true
		keys[i] = key
		display[i] = strings.TrimSpace(h)
	}
	return keys, display
}
