package mis

import "github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"

const (
	colParticulars = "Particulars"
	colTotal       = "Total"
	colError       = "Error"
)

// ReportSheet renders the evaluated rows, months in trial balance order, then
// the total. An error column is added when any row is invalid.
func ReportSheet(name string, rep Report) sheet.Sheet {
	cols := append([]string{colParticulars}, rep.Months...)
	cols = append(cols, colTotal)
	if rep.Invalid() > 0 {
		cols = append(cols, colError)
	}
	out := sheet.Sheet{Name: name, Columns: cols, Rows: make([]sheet.Row, 0, len(rep.Rows))}
	for _, r := range rep.Rows {
		row := sheet.NewRow(colParticulars, r.Name)
		if r.Valid() {
			for _, m := range rep.Months {
				row.Set(m, r.Values[m])
			}
			row.Set(colTotal, r.Total)
		} else {
			row.Set(colError, r.Error)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// TrialBalanceSheet echoes the input trial balance.
func TrialBalanceSheet(name string, tb *TrialBalance) sheet.Sheet {
	cols := append([]string{colParticulars}, tb.Months...)
	cols = append(cols, colTotal)
	out := sheet.Sheet{Name: name, Columns: cols, Rows: make([]sheet.Row, 0, len(tb.Lines))}
	for _, l := range tb.Lines {
		row := sheet.NewRow(colParticulars, l.Particular)
		for _, m := range tb.Months {
			row.Set(m, l.Values[m])
		}
		row.Set(colTotal, l.Total)
		out.Rows = append(out.Rows, row)
	}
	return out
}
