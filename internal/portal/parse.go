package portal

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var errNotNumber = errors.New("portal: not a number")

var currencyTokens = []string{"₹", "INR", "Rs.", "Rs", "rs.", "rs"}

// ParseAmount reads a currency or quantity cell. Blank cells are zero; thousands
// separators, currency markers and accounting parentheses are tolerated.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.NewReplacer(",", "", " ", "", "\u00a0", "", "\u2212", "-").Replace(s)
	if strings.HasSuffix(s, "-") && !strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errNotNumber
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseQuantity reads a mandatory quantity cell; blanks are rejected.
func ParseQuantity(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, errNotNumber
	}
	return ParseAmount(raw)
}

// dd/mm layouts come first: Indian marketplace exports are day-first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006 15:04:05",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"02/Jan/2006",
	"2006/01/02",
}

// ParseDate reads a date cell in any of the supported layouts, including Excel
// serial day numbers.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := parseExcelSerial(s); ok {
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Amazon appends a zone name after the offset ("... IST").
	if idx := strings.LastIndex(s, " "); idx > 0 {
		return ParseDate(s[:idx])
	}
	return time.Time{}, false
}

// Excel counts days from 1899-12-30; the window keeps plain numbers like order
// ids from being mistaken for dates.
func parseExcelSerial(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 20000 || f > 80000 {
		return time.Time{}, false
	}
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	days := int(f)
	frac := f - float64(days)
	return base.AddDate(0, 0, days).Add(time.Duration(frac * float64(24*time.Hour))), true
}

// MonthBucket formats the reporting month of t.
func MonthBucket(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01")
}
