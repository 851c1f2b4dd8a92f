// Package mis evaluates user-defined formulas over trial balances to build
// MIS reports.
package mis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
)

// ErrTrialBalance indicates a trial balance document that cannot be used.
var ErrTrialBalance = errors.New("mis: invalid trial balance")

// Line is one trial balance particular with its monthly values.
type Line struct {
	Particular string                     `json:"particular"`
	Values     map[string]decimal.Decimal `json:"values"`
	Total      decimal.Decimal            `json:"total"`
}

// TrialBalance is an ordered set of particulars over ordered months.
type TrialBalance struct {
	Months []string `json:"months"`
	Lines  []Line   `json:"lines"`
	index  map[string]int
}

func foldName(s string) string {
	return sheet.NormalizeHeader(s)
}

// NewTrialBalance returns an empty trial balance over months.
func NewTrialBalance(months ...string) *TrialBalance {
	tb := &TrialBalance{index: make(map[string]int)}
	for _, m := range months {
		tb.addMonth(m)
	}
	return tb
}

func (tb *TrialBalance) hasMonth(m string) bool {
	for _, existing := range tb.Months {
		if existing == m {
			return true
		}
	}
	return false
}

func (tb *TrialBalance) addMonth(m string) {
	if !tb.hasMonth(m) {
		tb.Months = append(tb.Months, m)
	}
}

// Add merges a particular into the trial balance. Repeated particulars (same
// name ignoring case and spacing) are summed. Months not seen before are
// appended in sorted order.
func (tb *TrialBalance) Add(particular string, values map[string]decimal.Decimal, total *decimal.Decimal) {
	if tb.index == nil {
		tb.index = make(map[string]int)
	}
	key := foldName(particular)
	at, ok := tb.index[key]
	if !ok {
		at = len(tb.Lines)
		tb.index[key] = at
		tb.Lines = append(tb.Lines, Line{Particular: strings.TrimSpace(particular), Values: make(map[string]decimal.Decimal)})
	}
	line := &tb.Lines[at]
	sum := decimal.Zero
	var added []string
	for m, v := range values {
		if !tb.hasMonth(m) {
			added = append(added, m)
		}
		line.Values[m] = line.Values[m].Add(v)
		sum = sum.Add(v)
	}
	sort.Strings(added)
	for _, m := range added {
		tb.addMonth(m)
	}
	if total != nil {
		line.Total = line.Total.Add(*total)
	} else {
		line.Total = line.Total.Add(sum)
	}
}

// Lookup finds a particular case-insensitively.
func (tb *TrialBalance) Lookup(name string) (Line, bool) {
	if tb == nil {
		return Line{}, false
	}
	at, ok := tb.index[foldName(name)]
	if !ok {
		return Line{}, false
	}
	return tb.Lines[at], true
}

func isParticularKey(k string) bool {
	switch foldName(k) {
	case "particular", "particulars", "ledger", "ledger name", "account", "account name":
		return true
	}
	return false
}

func isTotalKey(k string) bool {
	switch foldName(k) {
	case "total", "grand total":
		return true
	}
	return false
}

// ParseTrialBalanceJSON reads an array of objects holding a particular key,
// one key per month (kept in document order) and an optional Total.
func ParseTrialBalanceJSON(data []byte) (*TrialBalance, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrialBalance, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrTrialBalance)
	}
	tb := NewTrialBalance()
	for row := 1; dec.More(); row++ {
		if err := readTrialBalanceObject(dec, tb, row); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrialBalance, err)
	}
	if len(tb.Lines) == 0 {
		return nil, fmt.Errorf("%w: no particulars", ErrTrialBalance)
	}
	return tb, nil
}

func readTrialBalanceObject(dec *json.Decoder, tb *TrialBalance, row int) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: row %d: %v", ErrTrialBalance, row, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: row %d: expected an object", ErrTrialBalance, row)
	}
	var (
		particular string
		total      *decimal.Decimal
		months     []string
	)
	values := make(map[string]decimal.Decimal)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: row %d: %v", ErrTrialBalance, row, err)
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: row %d: %v", ErrTrialBalance, row, err)
		}
		if isParticularKey(key) {
			if err := json.Unmarshal(raw, &particular); err != nil {
				return fmt.Errorf("%w: row %d: particular must be a string", ErrTrialBalance, row)
			}
			continue
		}
		v, err := jsonAmount(raw)
		if err != nil {
			return fmt.Errorf("%w: row %d, %q: %v", ErrTrialBalance, row, key, err)
		}
		if isTotalKey(key) {
			total = &v
			continue
		}
		months = append(months, key)
		values[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: row %d: %v", ErrTrialBalance, row, err)
	}
	if strings.TrimSpace(particular) == "" {
		return fmt.Errorf("%w: row %d: missing particular", ErrTrialBalance, row)
	}
	for _, m := range months {
		tb.addMonth(m)
	}
	tb.Add(particular, values, total)
	return nil
}

func jsonAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return decimal.Zero, err
	}
	switch val := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return decimal.NewFromString(val.String())
	case string:
		return portal.ParseAmount(val)
	default:
		return decimal.Zero, errors.New("not a number")
	}
}

// TrialBalanceFromTable reads a spreadsheet whose first column holds the
// particulars and whose remaining columns are months, with an optional total.
func TrialBalanceFromTable(table *sheet.Table) (*TrialBalance, error) {
	if table == nil || len(table.Headers) < 2 {
		return nil, fmt.Errorf("%w: expected a particulars column and at least one month", ErrTrialBalance)
	}
	first := table.Headers[0]
	type monthCol struct{ key, label string }
	var cols []monthCol
	totalCol := ""
	seen := make(map[string]bool, len(table.Headers))
	for i, h := range table.Headers[1:] {
		if isTotalKey(h) {
			totalCol = h
			continue
		}
		label := table.Display[i+1]
		norm := sheet.NormalizeHeader(label)
		if seen[norm] {
			return nil, fmt.Errorf("%w: month %q appears in more than one column", ErrTrialBalance, label)
		}
		seen[norm] = true
		cols = append(cols, monthCol{key: h, label: label})
	}
	tb := NewTrialBalance()
	for _, c := range cols {
		tb.addMonth(c.label)
	}
	for i, rec := range table.Records {
		particular := rec.Get(first)
		if particular == "" {
			continue
		}
		values := make(map[string]decimal.Decimal, len(cols))
		for _, c := range cols {
			v, err := portal.ParseAmount(rec.Get(c.key))
			if err != nil {
				return nil, fmt.Errorf("%w: row %d, column %q: not a number", ErrTrialBalance, table.Rows[i], c.label)
			}
			values[c.label] = v
		}
		var total *decimal.Decimal
		if totalCol != "" && rec.Get(totalCol) != "" {
			v, err := portal.ParseAmount(rec.Get(totalCol))
			if err != nil {
				return nil, fmt.Errorf("%w: row %d, total: not a number", ErrTrialBalance, table.Rows[i])
			}
			total = &v
		}
		tb.Add(particular, values, total)
	}
	if len(tb.Lines) == 0 {
		return nil, fmt.Errorf("%w: no particulars", ErrTrialBalance)
	}
	return tb, nil
}
