// Package pivot aggregates resolved sales lines into accounting summaries.
package pivot

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
)

// Line is a canonical record whose portal SKU has been resolved.
type Line struct {
	LedgerSKU string
	portal.Record
}

// Key identifies one pivot bucket. Invoice is empty unless the portal pivots
// per invoice; Month is empty for rows without a readable date.
type Key struct {
	LedgerSKU string `json:"ledger_sku"`
	State     string `json:"state"`
	Invoice   string `json:"invoice"`
	Month     string `json:"month"`
}

func (k Key) less(o Key) bool {
	if k.LedgerSKU != o.LedgerSKU {
		return k.LedgerSKU < o.LedgerSKU
	}
	if k.State != o.State {
		return k.State < o.State
	}
	if k.Invoice != o.Invoice {
		return k.Invoice < o.Invoice
	}
	return k.Month < o.Month
}

// Amounts are the summed measures of a bucket.
type Amounts struct {
	Quantity      decimal.Decimal `json:"quantity"`
	BaseAmount    decimal.Decimal `json:"base_amount"`
	IGST          decimal.Decimal `json:"igst"`
	CGST          decimal.Decimal `json:"cgst"`
	SGST          decimal.Decimal `json:"sgst"`
	InvoiceAmount decimal.Decimal `json:"invoice_amount"`
}

func (a Amounts) addRecord(rec portal.Record) Amounts {
	return Amounts{
		Quantity:      a.Quantity.Add(rec.Quantity),
		BaseAmount:    a.BaseAmount.Add(rec.BaseAmount),
		IGST:          a.IGST.Add(rec.IGST),
		CGST:          a.CGST.Add(rec.CGST),
		SGST:          a.SGST.Add(rec.SGST),
		InvoiceAmount: a.InvoiceAmount.Add(rec.InvoiceAmount),
	}
}

// Add sums two amount sets.
func (a Amounts) Add(b Amounts) Amounts {
	return Amounts{
		Quantity:      a.Quantity.Add(b.Quantity),
		BaseAmount:    a.BaseAmount.Add(b.BaseAmount),
		IGST:          a.IGST.Add(b.IGST),
		CGST:          a.CGST.Add(b.CGST),
		SGST:          a.SGST.Add(b.SGST),
		InvoiceAmount: a.InvoiceAmount.Add(b.InvoiceAmount),
	}
}

// Rounded rounds money to two decimals. Quantity is left as summed.
func (a Amounts) Rounded() Amounts {
	return Amounts{
		Quantity:      a.Quantity,
		BaseAmount:    a.BaseAmount.Round(2),
		IGST:          a.IGST.Round(2),
		CGST:          a.CGST.Round(2),
		SGST:          a.SGST.Round(2),
		InvoiceAmount: a.InvoiceAmount.Round(2),
	}
}

// TotalTax is IGST + CGST + SGST.
func (a Amounts) TotalTax() decimal.Decimal {
	return a.IGST.Add(a.CGST).Add(a.SGST)
}

// Row is one aggregated bucket.
type Row struct {
	Key
	Amounts
	Lines int `json:"lines"`
}

// Aggregate groups lines by (ledger SKU, state, invoice, month) and sums their
// measures exactly, rounding money once on output. Rows come back sorted by key
// so identical input always yields identical output.
func Aggregate(lines []Line) []Row {
	if len(lines) == 0 {
		return []Row{}
	}
	index := make(map[Key]int, len(lines))
	rows := make([]Row, 0)
	for _, line := range lines {
		key := Key{
			LedgerSKU: line.LedgerSKU,
			State:     line.State,
			Invoice:   line.InvoiceBucket,
			Month:     line.Month,
		}
		at, ok := index[key]
		if !ok {
			at = len(rows)
			index[key] = at
			rows = append(rows, Row{Key: key})
		}
		rows[at].Amounts = rows[at].Amounts.addRecord(line.Record)
		rows[at].Lines++
	}
	for i := range rows {
		rows[i].Amounts = rows[i].Amounts.Rounded()
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key.less(rows[j].Key) })
	return rows
}

// Totals sums every row.
func Totals(rows []Row) Amounts {
	var total Amounts
	for _, r := range rows {
		total = total.Add(r.Amounts)
	}
	return total
}
