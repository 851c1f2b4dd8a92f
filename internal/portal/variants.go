package portal

import "github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"

// variantHook adjusts a record after the shared mapping. Returning false drops
// the row as a bad amount.
type variantHook func(n *Normalizer, raw sheet.Record, rec *Record) bool

var variantHooks = map[Kind]variantHook{
	AmazonB2C: foldUTGST,
	AmazonB2B: foldUTGST,
	Flipkart:  deriveFlipkartTax,
}

// Union territories report UTGST in its own column; it plays the SGST role.
func foldUTGST(n *Normalizer, raw sheet.Record, rec *Record) bool {
	ut, ok := n.amount(raw, FieldUTGST)
	if !ok {
		return false
	}
	rec.SGST = rec.SGST.Add(ut)
	return true
}

// Flipkart omits the base amount on some report versions; derive it from the
// invoice total when the tax heads are known.
func deriveFlipkartTax(_ *Normalizer, _ sheet.Record, rec *Record) bool {
	if rec.BaseAmount.IsZero() && !rec.InvoiceAmount.IsZero() {
		rec.BaseAmount = rec.InvoiceAmount.Sub(rec.IGST).Sub(rec.CGST).Sub(rec.SGST)
	}
	return true
}
