package pivot

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SKUMonth holds one ledger SKU's figures across months.
type SKUMonth struct {
	LedgerSKU string                     `json:"ledger_sku"`
	Quantity  map[string]decimal.Decimal `json:"quantity"`
	Amount    map[string]decimal.Decimal `json:"amount"`
	Total     Amounts                    `json:"total"`
}

// SKUTable is a ledger SKU by month pivot.
type SKUTable struct {
	Months []string   `json:"months"`
	Rows   []SKUMonth `json:"rows"`
}

// SKUSummary pivots rows into one line per ledger SKU with a column per month.
// Rows without a month are reported under the empty month.
func SKUSummary(rows []Row) SKUTable {
	months := make(map[string]bool)
	index := make(map[string]int)
	out := SKUTable{Months: []string{}, Rows: []SKUMonth{}}
	for _, r := range rows {
		months[r.Month] = true
		at, ok := index[r.LedgerSKU]
		if !ok {
			at = len(out.Rows)
			index[r.LedgerSKU] = at
			out.Rows = append(out.Rows, SKUMonth{
				LedgerSKU: r.LedgerSKU,
				Quantity:  make(map[string]decimal.Decimal),
				Amount:    make(map[string]decimal.Decimal),
			})
		}
		sm := &out.Rows[at]
		sm.Quantity[r.Month] = sm.Quantity[r.Month].Add(r.Quantity)
		sm.Amount[r.Month] = sm.Amount[r.Month].Add(r.BaseAmount)
		sm.Total = sm.Total.Add(r.Amounts)
	}
	for m := range months {
		out.Months = append(out.Months, m)
	}
	sort.Strings(out.Months)
	sort.Slice(out.Rows, func(i, j int) bool { return out.Rows[i].LedgerSKU < out.Rows[j].LedgerSKU })
	return out
}

// StateRow is the GST position of one state.
type StateRow struct {
	State string `json:"state"`
	Amounts
}

// StateSummary totals rows per state, sorted by state.
func StateSummary(rows []Row) []StateRow {
	index := make(map[string]int)
	out := make([]StateRow, 0)
	for _, r := range rows {
		at, ok := index[r.State]
		if !ok {
			at = len(out)
			index[r.State] = at
			out = append(out, StateRow{State: r.State})
		}
		out[at].Amounts = out[at].Amounts.Add(r.Amounts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out
}
