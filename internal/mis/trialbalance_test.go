package mis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
)

func TestParseTrialBalanceJSONKeepsMonthOrder(t *testing.T) {
	data := []byte(`[
		{"particular": "Sales", "Jun-24": 30, "Apr-24": 10, "May-24": "1,000.50", "Total": 999},
		{"Particulars": "Rent", "Apr-24": -5, "May-24": null},
		{"particular": " sales ", "Apr-24": 1, "Jul-24": 2}
	]`)
	tb, err := ParseTrialBalanceJSON(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jun-24", "Apr-24", "May-24", "Jul-24"}, tb.Months)
	require.Len(t, tb.Lines, 2)

	sales, ok := tb.Lookup("SALES")
	require.True(t, ok)
	assert.True(t, d("11").Equal(sales.Values["Apr-24"]))
	assert.True(t, d("1000.5").Equal(sales.Values["May-24"]))
	assert.True(t, d("1002").Equal(sales.Total), sales.Total.String())

	rent, ok := tb.Lookup("rent")
	require.True(t, ok)
	assert.True(t, d("-5").Equal(rent.Total))
}

func TestParseTrialBalanceJSONErrors(t *testing.T) {
	for _, doc := range []string{`{}`, `[]`, `[{"Apr-24": 1}]`, `[{"particular": "A", "Apr-24": "abc"}]`, `[1]`, `not json`} {
		_, err := ParseTrialBalanceJSON([]byte(doc))
		assert.True(t, errors.Is(err, ErrTrialBalance), doc)
	}
}

func TestTrialBalanceFromTable(t *testing.T) {
	table, err := sheet.ReadFormat([]byte("Particulars,Apr-24,May-24,Total\nSales,100,200,\nRent,(10),-20,-35\nSales,1,1,\n,9,9,\n"), sheet.FormatCSV)
	require.NoError(t, err)

	tb, err := TrialBalanceFromTable(table)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apr-24", "May-24"}, tb.Months)
	require.Len(t, tb.Lines, 2)
	sales, _ := tb.Lookup("Sales")
	assert.True(t, d("302").Equal(sales.Total))
	rent, _ := tb.Lookup("Rent")
	assert.True(t, d("-10").Equal(rent.Values["Apr-24"]))
	assert.True(t, d("-35").Equal(rent.Total))

	bad, err := sheet.ReadFormat([]byte("Particulars,Apr-24\nSales,abc\n"), sheet.FormatCSV)
	require.NoError(t, err)
	_, err = TrialBalanceFromTable(bad)
	assert.ErrorIs(t, err, ErrTrialBalance)
}

func TestTrialBalanceFromTableRejectsRepeatedMonth(t *testing.T) {
	table, err := sheet.ReadFormat([]byte("Particulars,Apr-24,apr-24\nSales,100,200\n"), sheet.FormatCSV)
	require.NoError(t, err)
	_, err = TrialBalanceFromTable(table)
	assert.ErrorIs(t, err, ErrTrialBalance)
	assert.Contains(t, err.Error(), "more than one column")
}

func TestSheetsRenderReport(t *testing.T) {
	tb := sampleTB()
	rep, err := Evaluate(tb, []FormatRule{{Name: "X", Formula: "A"}, {Name: "Y", Formula: "nope"}}, Options{Policy: SkipInvalid})
	require.NoError(t, err)

	s := ReportSheet("MIS", rep)
	assert.Equal(t, []string{"Particulars", "Apr-24", "May-24", "Total", "Error"}, s.Header())
	v, _ := s.Rows[1].Get("Error")
	assert.Contains(t, v, "unknown operand")

	echo := TrialBalanceSheet("Trial Balance", tb)
	assert.Len(t, echo.Rows, 4)
}
