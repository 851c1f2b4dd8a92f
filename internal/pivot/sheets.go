package pivot

import (
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
)

// Column headings shared by the pivot sheets.
const (
	ColLedgerSKU     = "Ledger SKU"
	ColState         = "State"
	ColInvoice       = "Invoice No"
	ColMonth         = "Month"
	ColQuantity      = "Quantity"
	ColBaseAmount    = "Base Amount"
	ColIGST          = "IGST"
	ColCGST          = "CGST"
	ColSGST          = "SGST"
	ColTotalTax      = "Total Tax"
	ColInvoiceAmount = "Invoice Amount"
	grandTotal       = "Grand Total"
)

var measureColumns = []string{ColQuantity, ColBaseAmount, ColIGST, ColCGST, ColSGST, ColTotalTax, ColInvoiceAmount}

func setMeasures(row *sheet.Row, a Amounts) {
	row.Set(ColQuantity, a.Quantity)
	row.Set(ColBaseAmount, a.BaseAmount)
	row.Set(ColIGST, a.IGST)
	row.Set(ColCGST, a.CGST)
	row.Set(ColSGST, a.SGST)
	row.Set(ColTotalTax, a.TotalTax())
	row.Set(ColInvoiceAmount, a.InvoiceAmount)
}

// PivotSheet renders aggregated rows followed by a grand total. The invoice
// column is emitted only for portals that pivot per invoice.
func PivotSheet(name string, rows []Row, withInvoice bool) sheet.Sheet {
	cols := []string{ColLedgerSKU, ColState}
	if withInvoice {
		cols = append(cols, ColInvoice)
	}
	cols = append(cols, ColMonth)
	cols = append(cols, measureColumns...)

	out := sheet.Sheet{Name: name, Columns: cols, Rows: make([]sheet.Row, 0, len(rows)+1)}
	for _, r := range rows {
		row := sheet.NewRow(ColLedgerSKU, r.LedgerSKU, ColState, r.State)
		if withInvoice {
			row.Set(ColInvoice, r.Invoice)
		}
		row.Set(ColMonth, r.Month)
		setMeasures(&row, r.Amounts)
		out.Rows = append(out.Rows, row)
	}
	total := sheet.NewRow(ColLedgerSKU, grandTotal)
	setMeasures(&total, Totals(rows))
	out.Rows = append(out.Rows, total)
	return out
}

// SKUSummarySheet renders the ledger SKU by month pivot with quantity and base
// amount columns per month.
func SKUSummarySheet(name string, table SKUTable) sheet.Sheet {
	cols := []string{ColLedgerSKU}
	for _, m := range table.Months {
		label := monthLabel(m)
		cols = append(cols, label+" Qty", label+" Amount")
	}
	cols = append(cols, "Total Qty", "Total Amount", ColTotalTax, ColInvoiceAmount)

	out := sheet.Sheet{Name: name, Columns: cols, Rows: make([]sheet.Row, 0, len(table.Rows))}
	for _, r := range table.Rows {
		row := sheet.NewRow(ColLedgerSKU, r.LedgerSKU)
		for _, m := range table.Months {
			label := monthLabel(m)
			row.Set(label+" Qty", r.Quantity[m])
			row.Set(label+" Amount", r.Amount[m].Round(2))
		}
		row.Set("Total Qty", r.Total.Quantity)
		row.Set("Total Amount", r.Total.BaseAmount)
		row.Set(ColTotalTax, r.Total.TotalTax())
		row.Set(ColInvoiceAmount, r.Total.InvoiceAmount)
		out.Rows = append(out.Rows, row)
	}
	return out
}

// StateSummarySheet renders GST totals per state.
func StateSummarySheet(name string, rows []StateRow) sheet.Sheet {
	cols := append([]string{ColState}, measureColumns...)
	out := sheet.Sheet{Name: name, Columns: cols, Rows: make([]sheet.Row, 0, len(rows)+1)}
	var total Amounts
	for _, r := range rows {
		row := sheet.NewRow(ColState, r.State)
		setMeasures(&row, r.Amounts)
		out.Rows = append(out.Rows, row)
		total = total.Add(r.Amounts)
	}
	last := sheet.NewRow(ColState, grandTotal)
	setMeasures(&last, total)
	out.Rows = append(out.Rows, last)
	return out
}

func monthLabel(m string) string {
	if m == "" {
		return "Undated"
	}
	return m
}
