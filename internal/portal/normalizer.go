// Package portal turns raw marketplace export rows into canonical sales records.
package portal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
)

// Record is the canonical shape of one sold (or returned) line.
type Record struct {
	Row           int             `json:"row"`
	PortalSKU     string          `json:"portal_sku"`
	Quantity      decimal.Decimal `json:"quantity"`
	BaseAmount    decimal.Decimal `json:"base_amount"`
	IGST          decimal.Decimal `json:"igst"`
	CGST          decimal.Decimal `json:"cgst"`
	SGST          decimal.Decimal `json:"sgst"`
	InvoiceAmount decimal.Decimal `json:"invoice_amount"`
	InvoiceNumber string          `json:"invoice_number"`
	// InvoiceBucket is the invoice number when the portal pivots per invoice,
	// otherwise empty so rows collapse per state and month.
	InvoiceBucket string    `json:"invoice_bucket"`
	State         string    `json:"state"`
	Date          time.Time `json:"date"`
	Month         string    `json:"month"`
	Return        bool      `json:"return"`
}

// DropReason classifies a row discarded during normalization.
type DropReason string

const (
	DropMissingSKU  DropReason = "missing_sku"
	DropBadQuantity DropReason = "bad_quantity"
	DropBadAmount   DropReason = "bad_amount"
	DropSkippedType DropReason = "skipped_type"
)

// DroppedRow records where and why a row was discarded.
type DroppedRow struct {
	Row    int        `json:"row"`
	Reason DropReason `json:"reason"`
}

// Options carries per-brand settings that shape normalization.
type Options struct {
	// HomeState is the seller's registered state, used to split a combined tax
	// column into CGST/SGST (intra-state) or IGST (inter-state).
	HomeState string
}

// ColumnError reports mandatory columns none of whose aliases are present.
type ColumnError struct {
	Portal  Kind
	Missing []Field
	Aliases map[Field][]string
}

func (e *ColumnError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, f := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s (one of: %s)", f, strings.Join(e.Aliases[f], ", ")))
	}
	return fmt.Sprintf("portal: %s export is missing required columns: %s", e.Portal, strings.Join(parts, "; "))
}

// Normalizer applies one portal's column mapping to rows of an export.
type Normalizer struct {
	cfg     Config
	opts    Options
	cols    map[Field]string
	hook    variantHook
	home    string
	skip    map[string]bool
	returns map[string]bool
	defQty  decimal.Decimal
}

// New creates a normalizer for cfg. Bind must be called before Normalize.
func New(cfg Config, opts Options) *Normalizer {
	n := &Normalizer{
		cfg:     cfg,
		opts:    opts,
		hook:    variantHooks[cfg.Kind],
		home:    CanonicalState(opts.HomeState),
		skip:    toSet(cfg.SkipTypes),
		returns: toSet(cfg.ReturnTypes),
	}
	if cfg.DefaultQuantity != "" {
		n.defQty = decimal.RequireFromString(cfg.DefaultQuantity)
	}
	return n
}

// Normalizer builds a normalizer for the configured portal kind.
func (r *Registry) Normalizer(kind Kind, opts Options) (*Normalizer, error) {
	cfg, ok := r.Config(kind)
	if !ok {
		return nil, fmt.Errorf("portal: no configuration for %q", kind)
	}
	return New(cfg, opts), nil
}

// Kind reports the portal the normalizer was built for.
func (n *Normalizer) Kind() Kind { return n.cfg.Kind }

// Bind resolves every field's aliases against the ingested headers once, using
// case-insensitive exact matching. The first alias present wins.
func (n *Normalizer) Bind(headers []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[sheet.NormalizeHeader(h)] = true
	}
	n.cols = make(map[Field]string, len(n.cfg.Fields))
	for field, aliases := range n.cfg.Fields {
		for _, alias := range aliases {
			if present[alias] {
				n.cols[field] = alias
				break
			}
		}
	}
	var missing []Field
	for _, field := range n.cfg.Required {
		if _, ok := n.cols[field]; ok {
			continue
		}
		if field == FieldQuantity && n.cfg.DefaultQuantity != "" {
			continue
		}
		missing = append(missing, field)
	}
	if len(missing) > 0 {
		return &ColumnError{Portal: n.cfg.Kind, Missing: missing, Aliases: n.cfg.Fields}
	}
	return nil
}

// Column returns the header bound to field, if any.
func (n *Normalizer) Column(field Field) (string, bool) {
	col, ok := n.cols[field]
	return col, ok
}

func (n *Normalizer) value(raw sheet.Record, field Field) string {
	col, ok := n.cols[field]
	if !ok {
		return ""
	}
	return raw.Get(col)
}

func (n *Normalizer) amount(raw sheet.Record, field Field) (decimal.Decimal, bool) {
	d, err := ParseAmount(n.value(raw, field))
	return d, err == nil
}

// Normalize shapes one raw row. It never fails: unusable rows are reported
// through the returned reason with ok set to false.
func (n *Normalizer) Normalize(raw sheet.Record) (rec Record, reason DropReason, ok bool) {
	rec.PortalSKU = n.value(raw, FieldSKU)
	if rec.PortalSKU == "" {
		return Record{}, DropMissingSKU, false
	}

	txn := sheet.NormalizeHeader(n.value(raw, FieldTransactionType))
	if n.skip[txn] {
		return Record{}, DropSkippedType, false
	}
	rec.Return = n.returns[txn]

	if _, bound := n.cols[FieldQuantity]; bound {
		qty, err := ParseQuantity(n.value(raw, FieldQuantity))
		if err != nil {
			return Record{}, DropBadQuantity, false
		}
		rec.Quantity = qty
	} else {
		rec.Quantity = n.defQty
	}

	var good bool
	fields := []struct {
		field Field
		dest  *decimal.Decimal
	}{
		{FieldBaseAmount, &rec.BaseAmount},
		{FieldIGST, &rec.IGST},
		{FieldCGST, &rec.CGST},
		{FieldSGST, &rec.SGST},
		{FieldInvoiceAmount, &rec.InvoiceAmount},
	}
	for _, f := range fields {
		if *f.dest, good = n.amount(raw, f.field); !good {
			return Record{}, DropBadAmount, false
		}
	}

	rec.InvoiceNumber = n.value(raw, FieldInvoiceNumber)
	if n.cfg.GroupByInvoice {
		rec.InvoiceBucket = rec.InvoiceNumber
	}
	if state, found := StateFromGSTIN(n.value(raw, FieldGSTIN)); found {
		rec.State = state
	} else {
		rec.State = CanonicalState(n.value(raw, FieldState))
	}
	if t, parsed := ParseDate(n.value(raw, FieldInvoiceDate)); parsed {
		rec.Date = t
		rec.Month = MonthBucket(t)
	}

	if n.hook != nil {
		if !n.hook(n, raw, &rec) {
			return Record{}, DropBadAmount, false
		}
	}
	if n.cfg.SplitTotalTax {
		if !n.splitTotalTax(raw, &rec) {
			return Record{}, DropBadAmount, false
		}
	}

	if rec.InvoiceAmount.IsZero() {
		rec.InvoiceAmount = rec.BaseAmount.Add(rec.IGST).Add(rec.CGST).Add(rec.SGST)
	}
	if rec.Return {
		rec.Quantity = negAbs(rec.Quantity)
		rec.BaseAmount = negAbs(rec.BaseAmount)
		rec.IGST = negAbs(rec.IGST)
		rec.CGST = negAbs(rec.CGST)
		rec.SGST = negAbs(rec.SGST)
		rec.InvoiceAmount = negAbs(rec.InvoiceAmount)
	}
	return rec, "", true
}

// splitTotalTax fills the GST split from a single tax column when the export
// carries no per-head amounts.
func (n *Normalizer) splitTotalTax(raw sheet.Record, rec *Record) bool {
	if !rec.IGST.IsZero() || !rec.CGST.IsZero() || !rec.SGST.IsZero() {
		return true
	}
	total, good := n.amount(raw, FieldTotalTax)
	if !good {
		return false
	}
	if total.IsZero() {
		return true
	}
	if n.home != "" && rec.State == n.home {
		rec.CGST = total.Div(decimal.NewFromInt(2)).Round(2)
		rec.SGST = total.Sub(rec.CGST)
		return true
	}
	rec.IGST = total
	return true
}

// Batch is the outcome of normalizing a whole export.
type Batch struct {
	Portal  Kind               `json:"portal"`
	Records []Record           `json:"-"`
	Total   int                `json:"total"`
	Dropped []DroppedRow       `json:"dropped"`
	Reasons map[DropReason]int `json:"reasons"`
	Columns map[Field]string   `json:"columns"`
}

// NormalizeTable binds the table's headers and normalizes every record.
func (n *Normalizer) NormalizeTable(table *sheet.Table) (Batch, error) {
	if err := n.Bind(table.Headers); err != nil {
		return Batch{}, err
	}
	batch := Batch{
		Portal:  n.cfg.Kind,
		Total:   table.Len(),
		Reasons: make(map[DropReason]int),
		Columns: make(map[Field]string, len(n.cols)),
	}
	for field, col := range n.cols {
		batch.Columns[field] = col
	}
	for i, raw := range table.Records {
		row := i + 2
		if i < len(table.Rows) {
			row = table.Rows[i]
		}
		rec, reason, ok := n.Normalize(raw)
		if !ok {
			batch.Dropped = append(batch.Dropped, DroppedRow{Row: row, Reason: reason})
			batch.Reasons[reason]++
			continue
		}
		rec.Row = row
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

// SKUs lists the distinct portal SKUs in first-seen order.
func (b Batch) SKUs() []string {
	seen := make(map[string]bool, len(b.Records))
	out := make([]string, 0)
	for _, rec := range b.Records {
		if seen[rec.PortalSKU] {
			continue
		}
		seen[rec.PortalSKU] = true
		out = append(out, rec.PortalSKU)
	}
	return out
}

func negAbs(d decimal.Decimal) decimal.Decimal {
	return d.Abs().Neg()
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
