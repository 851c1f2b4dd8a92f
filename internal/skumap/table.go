package skumap

import "golang.org/x/text/cases"

// Pair is the cacheable form of a single mapping.
type Pair struct {
	PortalSKU string `json:"p"`
	LedgerSKU string `json:"l"`
}

// Table is an immutable snapshot of one brand/portal's mappings. A run resolves
// every SKU against the same snapshot.
type Table struct {
	brandID  string
	portalID string
	fold     bool
	entries  map[string]string
	pairs    []Pair
}

// NewTable builds a snapshot. With caseInsensitive set, lookups compare
// case-folded SKUs; the first mapping wins when two fold to the same key.
func NewTable(brandID, portalID string, pairs []Pair, caseInsensitive bool) *Table {
	t := &Table{
		brandID:  brandID,
		portalID: portalID,
		fold:     caseInsensitive,
		entries:  make(map[string]string, len(pairs)),
		pairs:    make([]Pair, 0, len(pairs)),
	}
	for _, p := range pairs {
		key := t.key(p.PortalSKU)
		if _, exists := t.entries[key]; exists {
			continue
		}
		t.entries[key] = p.LedgerSKU
		t.pairs = append(t.pairs, p)
	}
	return t
}

// TableFromMappings builds a snapshot from stored mappings.
func TableFromMappings(brandID, portalID string, mappings []Mapping, caseInsensitive bool) *Table {
	return NewTable(brandID, portalID, pairsOf(mappings), caseInsensitive)
}

func pairsOf(mappings []Mapping) []Pair {
	pairs := make([]Pair, len(mappings))
	for i, m := range mappings {
		pairs[i] = Pair{PortalSKU: m.PortalSKU, LedgerSKU: m.LedgerSKU}
	}
	return pairs
}

func (t *Table) key(sku string) string {
	if t.fold {
		return cases.Fold().String(sku)
	}
	return sku
}

// Len reports the number of distinct mapped SKUs.
func (t *Table) Len() int { return len(t.entries) }

// Pairs returns the mappings held by the snapshot.
func (t *Table) Pairs() []Pair {
	out := make([]Pair, len(t.pairs))
	copy(out, t.pairs)
	return out
}

// Lookup returns the ledger SKU for portalSKU.
func (t *Table) Lookup(portalSKU string) (string, bool) {
	ledger, ok := t.entries[t.key(portalSKU)]
	return ledger, ok
}

// Resolve maps every SKU, collecting the unmapped ones once each in the order
// they first appear.
func (t *Table) Resolve(skus []string) Resolution {
	res := Resolution{Resolved: make(map[string]string, len(skus)), Missing: []string{}}
	seen := make(map[string]bool)
	for _, sku := range skus {
		if ledger, ok := t.Lookup(sku); ok {
			res.Resolved[sku] = ledger
			continue
		}
		if seen[sku] {
			continue
		}
		seen[sku] = true
		res.Missing = append(res.Missing, sku)
	}
	return res
}

// Err converts a resolution with missing SKUs into a MissingSKUError.
func (t *Table) Err(res Resolution) error {
	if len(res.Missing) == 0 {
		return nil
	}
	return &MissingSKUError{BrandID: t.brandID, PortalID: t.portalID, SKUs: res.Missing}
}
