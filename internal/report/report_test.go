package report

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
	_ "github.com/Jayes-h/fintech-process-automation-sub001/testing"
)

func TestAssembleKeepsSheetAndColumnOrder(t *testing.T) {
	pivot := sheet.Sheet{Name: "Pivot", Columns: []string{"B", "A"}, Rows: []sheet.Row{sheet.NewRow("A", 1, "B", "x")}}
	summary := SummarySheet("Summary", Field{Label: "Rows", Value: 3})

	data, err := Assemble(summary, pivot)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{"Summary", "Pivot"}, f.GetSheetList())
	rows, err := f.GetRows("Pivot")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, rows[0])
	assert.Equal(t, []string{"x", "1"}, rows[1])
}

func TestAssembleRejectsBadNames(t *testing.T) {
	_, err := Assemble()
	assert.True(t, errors.Is(err, ErrNoSheets))

	_, err = Assemble(sheet.Sheet{Name: "Same"}, sheet.Sheet{Name: "same"})
	assert.Error(t, err)

	_, err = Assemble(sheet.Sheet{Name: ""})
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "macros_amazon_b2c_2024-04.xlsx", Filename("macros", "amazon_b2c", "2024/04"))
	assert.Equal(t, "report.xlsx", Filename("", "??"))
}
