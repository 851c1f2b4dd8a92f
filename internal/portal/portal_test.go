package portal

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
	_ "github.com/Jayes-h/fintech-process-automation-sub001/testing"
)

func mustRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	return reg
}

func normalizeCSV(t *testing.T, kind Kind, opts Options, csv string) Batch {
	t.Helper()
	table, err := sheet.ReadFormat([]byte(csv), sheet.FormatCSV)
	require.NoError(t, err)
	n, err := mustRegistry(t).Normalizer(kind, opts)
	require.NoError(t, err)
	batch, err := n.NormalizeTable(table)
	require.NoError(t, err)
	return batch
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s got %s", want, got)
}

func TestDefaultRegistryHasEveryPortal(t *testing.T) {
	reg := mustRegistry(t)
	assert.ElementsMatch(t, Kinds(), reg.Kinds())
	cfg, ok := reg.Config(AmazonB2B)
	require.True(t, ok)
	assert.True(t, cfg.GroupByInvoice)
	cfg, _ = reg.Config(AmazonB2C)
	assert.False(t, cfg.GroupByInvoice)
}

func TestParseKindRequiresAmazonVariant(t *testing.T) {
	_, err := ParseKind("amazon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explicit file type")

	k, err := ParseKind(" Flipkart ")
	require.NoError(t, err)
	assert.Equal(t, Flipkart, k)

	_, err = ParseKind("meesho")
	require.Error(t, err)
}

func TestHeaderSpellingsMapToSameField(t *testing.T) {
	a := normalizeCSV(t, AmazonB2C, Options{}, "SKU,Quantity,Tax Exclusive Gross\nA1,2,100\n")
	b := normalizeCSV(t, AmazonB2C, Options{}, "Seller SKU,QTY,Taxable Value\nA1,2,100\n")

	require.Len(t, a.Records, 1)
	require.Len(t, b.Records, 1)
	assert.Equal(t, a.Records[0].PortalSKU, b.Records[0].PortalSKU)
	assertDec(t, "2", b.Records[0].Quantity)
	assertDec(t, "100", b.Records[0].BaseAmount)
	assert.Equal(t, "sku", a.Columns[FieldSKU])
	assert.Equal(t, "seller sku", b.Columns[FieldSKU])
}

func TestAmazonB2CRecord(t *testing.T) {
	csv := "Transaction Type,Invoice Number,Invoice Date,SKU,Quantity,Tax Exclusive Gross,Igst Tax,Cgst Tax,Sgst Tax,Utgst Tax,Ship To State\n" +
		"Shipment,INV-1,15/04/2024,SKU-1,1,\"1,000.00\",0,90,0,90,Chandigarh\n" +
		"Refund,INV-2,2024-04-20,SKU-1,1,500,90,0,0,0,karnataka\n" +
		"Cancel,INV-3,2024-04-21,SKU-1,1,500,90,0,0,0,Karnataka\n" +
		",INV-4,2024-04-21,,1,500,0,0,0,0,Karnataka\n"

	batch := normalizeCSV(t, AmazonB2C, Options{}, csv)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, 4, batch.Total)
	assert.Equal(t, 1, batch.Reasons[DropSkippedType])
	assert.Equal(t, 1, batch.Reasons[DropMissingSKU])

	sale := batch.Records[0]
	assert.Equal(t, 2, sale.Row)
	assertDec(t, "1000", sale.BaseAmount)
	assertDec(t, "90", sale.SGST)
	assertDec(t, "1180", sale.InvoiceAmount)
	assert.Equal(t, "CHANDIGARH", sale.State)
	assert.Equal(t, "2024-04", sale.Month)
	assert.Equal(t, "", sale.InvoiceBucket)

	refund := batch.Records[1]
	assert.True(t, refund.Return)
	assertDec(t, "-1", refund.Quantity)
	assertDec(t, "-500", refund.BaseAmount)
	assertDec(t, "-90", refund.IGST)
	assert.Equal(t, "KARNATAKA", refund.State)
}

func TestAmazonB2BBucketsByInvoiceAndUsesGSTIN(t *testing.T) {
	csv := "Invoice Number,Invoice Date,SKU,Quantity,Tax Exclusive Gross,Igst Tax,Customer Bill To Gstid,Ship To State\n" +
		"B2B-9,2024-05-03 10:00:00,SKU-2,3,300,54,29ABCDE1234F1Z5,Maharashtra\n"

	batch := normalizeCSV(t, AmazonB2B, Options{}, csv)
	require.Len(t, batch.Records, 1)
	rec := batch.Records[0]
	assert.Equal(t, "B2B-9", rec.InvoiceBucket)
	assert.Equal(t, "KARNATAKA", rec.State)
	assert.Equal(t, "2024-05", rec.Month)
}

func TestBadQuantityDropsRow(t *testing.T) {
	batch := normalizeCSV(t, Flipkart, Options{}, "SKU,Item Quantity,Taxable Value\nF1,abc,10\nF2,,10\nF3,1,10\n")
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "F3", batch.Records[0].PortalSKU)
	assert.Equal(t, 2, batch.Reasons[DropBadQuantity])
	assert.Equal(t, []DroppedRow{{Row: 2, Reason: DropBadQuantity}, {Row: 3, Reason: DropBadQuantity}}, batch.Dropped)
}

func TestFlipkartDerivesBaseFromInvoice(t *testing.T) {
	csv := "SKU,Quantity,Final Invoice Amount,IGST Amount,Event Type,Delivery State\n" +
		"F1,1,118,18,Sale,Tamilnadu\n" +
		"F1,1,118,18,Return,Tamil Nadu\n"
	batch := normalizeCSV(t, Flipkart, Options{}, csv)
	require.Len(t, batch.Records, 2)
	assertDec(t, "100", batch.Records[0].BaseAmount)
	assertDec(t, "-100", batch.Records[1].BaseAmount)
	assert.Equal(t, "TAMIL NADU", batch.Records[1].State)
}

func TestMyntraDefaultsQuantityWhenColumnAbsent(t *testing.T) {
	batch := normalizeCSV(t, Myntra, Options{}, "Seller SKU Code,Base Value,State\nM1,499,Delhi\n")
	require.Len(t, batch.Records, 1)
	assertDec(t, "1", batch.Records[0].Quantity)
	assertDec(t, "499", batch.Records[0].BaseAmount)
}

func TestBlinkitSplitsTotalTaxByHomeState(t *testing.T) {
	csv := "Item ID,Quantity,Taxable Value,Total Tax,Supply State\n" +
		"B1,1,100,18.01,Haryana\n" +
		"B1,1,100,18,Punjab\n"
	batch := normalizeCSV(t, Blinkit, Options{HomeState: "haryana"}, csv)
	require.Len(t, batch.Records, 2)

	intra := batch.Records[0]
	assertDec(t, "9.01", intra.CGST)
	assertDec(t, "9", intra.SGST)
	assert.True(t, intra.IGST.IsZero())

	inter := batch.Records[1]
	assertDec(t, "18", inter.IGST)
	assert.True(t, inter.CGST.IsZero())
}

func TestBindReportsMissingColumns(t *testing.T) {
	n, err := mustRegistry(t).Normalizer(Flipkart, Options{})
	require.NoError(t, err)
	err = n.Bind([]string{"order id", "price"})
	var colErr *ColumnError
	require.True(t, errors.As(err, &colErr))
	assert.Equal(t, []Field{FieldSKU, FieldQuantity}, colErr.Missing)
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"":              "0",
		"-":             "0",
		"1,234.50":      "1234.5",
		"₹ 99":          "99",
		"Rs. 1,000":     "1000",
		"(250.00)":      "-250",
		"12-":           "-12",
		"\u2212 7":      "-7",
		"INR 10,00,000": "1000000",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assertDec(t, want, got)
	}
	_, err := ParseAmount("n/a")
	require.Error(t, err)
}

func TestParseDate(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-31":              time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		"31/03/2024":              time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		"05-Apr-2024":             time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC),
		"45383":                   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		"2024-04-01 10:20:30 IST": time.Date(2024, 4, 1, 10, 20, 30, 0, time.UTC),
	}
	for in, want := range cases {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.True(t, want.Equal(got), "%s: want %s got %s", in, want, got)
	}
	_, ok := ParseDate("someday")
	assert.False(t, ok)
	assert.Equal(t, "", MonthBucket(time.Time{}))
}

func TestCanonicalState(t *testing.T) {
	assert.Equal(t, "JAMMU AND KASHMIR", CanonicalState("Jammu & Kashmir"))
	assert.Equal(t, "ODISHA", CanonicalState("orissa"))
	assert.Equal(t, "ATLANTIS", CanonicalState("  atlantis "))
	state, ok := StateFromGSTIN("07AAACB1234C1Z9")
	require.True(t, ok)
	assert.Equal(t, "DELHI", state)
	_, ok = StateFromGSTIN("x")
	assert.False(t, ok)
}
