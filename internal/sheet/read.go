package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Read parses the first worksheet of data, sniffing the container format.
func Read(data []byte) (*Table, error) {
	return ReadFormat(data, FormatAuto)
}

// ReadFormat parses the first worksheet of data using the given format. The first
// non-blank row supplies the headers.
func ReadFormat(data []byte, format Format) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, parseErrorf(format, nil, "empty input")
	}
	if format == FormatAuto {
		format = sniff(data)
	}
	var (
		rows [][]string
		err  error
	)
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(data)
	case FormatXLS:
		rows, err = readXLS(data)
	case FormatCSV:
		rows, err = readCSV(data)
	default:
		return nil, parseErrorf(format, nil, "unsupported format")
	}
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, parseErrorf(format, err, "decode")
	}
	return buildTable(format, rows)
}

func sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX
	case bytes.HasPrefix(data, oleMagic):
		return FormatXLS
	default:
		return FormatCSV
	}
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, parseErrorf(FormatXLSX, nil, "workbook has no worksheet")
	}
	// Raw values keep numbers free of display formatting; dates arrive as
	// serial numbers which the portal parsers understand.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	// Header cells are labels, so a month typed as a date keeps the text the
	// user sees rather than its serial number.
	for i, row := range rows {
		if blankRow(row) {
			continue
		}
		formatted, err := f.GetRows(sheets[0])
		if err != nil {
			return nil, err
		}
		if i < len(formatted) {
			rows[i] = formatted[i]
		}
		break
	}
	return rows, nil
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if wb.NumSheets() == 0 {
		return nil, parseErrorf(FormatXLS, nil, "workbook has no worksheet")
	}
	ws := wb.GetSheet(0)
	if ws == nil {
		return nil, parseErrorf(FormatXLS, nil, "workbook has no worksheet")
	}
	rows := make([][]string, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	if firstLine := firstLine(data); strings.Count(firstLine, "\t") > strings.Count(firstLine, ",") {
		r.Comma = '\t'
	}
	return r.ReadAll()
}

func firstLine(data []byte) string {
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		return string(data[:idx])
	}
	return string(data)
}

func buildTable(format Format, rows [][]string) (*Table, error) {
	headerAt := -1
	for i, row := range rows {
		if !blankRow(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, parseErrorf(format, nil, "no rows")
	}
	keys, display := normalizeHeaders(rows[headerAt])
	table := &Table{}
	for i, key := range keys {
		if key == "" {
			continue
		}
		table.Headers = append(table.Headers, key)
		table.Display = append(table.Display, display[i])
	}
	if len(table.Headers) == 0 {
		return nil, parseErrorf(format, nil, "header row has no named columns")
	}
	for i := headerAt + 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}
		rec := make(Record, len(table.Headers))
		for col, key := range keys {
			if key == "" {
				continue
			}
			if col < len(row) {
				rec[key] = strings.TrimSpace(row[col])
			} else {
				rec[key] = ""
			}
		}
		table.Records = append(table.Records, rec)
		table.Rows = append(table.Rows, i+1)
	}
	return table, nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
