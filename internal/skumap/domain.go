// Package skumap maps marketplace (portal) SKUs to internal ledger SKUs.
package skumap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotMapped indicates a portal SKU without a ledger mapping.
	ErrNotMapped = errors.New("skumap: sku not mapped")
	// ErrNotFound indicates a missing mapping record.
	ErrNotFound = errors.New("skumap: mapping not found")
	// ErrDuplicate indicates the (brand, portal, portal sku) triple already exists.
	ErrDuplicate = errors.New("skumap: mapping already exists")
	// ErrValidation wraps input validation failures.
	ErrValidation = errors.New("skumap: validation failed")
	// ErrInvalidUpload indicates a mapping spreadsheet that cannot be used.
	ErrInvalidUpload = errors.New("skumap: invalid mapping upload")
)

// Mapping links one portal SKU of a brand to its ledger SKU.
type Mapping struct {
	ID        uuid.UUID `json:"id"`
	BrandID   string    `json:"brand_id"`
	PortalID  string    `json:"portal_id"`
	PortalSKU string    `json:"portal_sku"`
	LedgerSKU string    `json:"ledger_sku"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertInput creates or replaces a mapping.
type UpsertInput struct {
	BrandID   string `json:"brand_id" validate:"required,max=64"`
	PortalID  string `json:"portal_id" validate:"required,max=64"`
	PortalSKU string `json:"portal_sku" validate:"required,max=200"`
	LedgerSKU string `json:"ledger_sku" validate:"required,max=200"`
}

func (in *UpsertInput) trim() {
	in.BrandID = strings.TrimSpace(in.BrandID)
	in.PortalID = strings.TrimSpace(in.PortalID)
	in.PortalSKU = strings.TrimSpace(in.PortalSKU)
	in.LedgerSKU = strings.TrimSpace(in.LedgerSKU)
}

// ListFilter narrows mapping listings.
type ListFilter struct {
	BrandID  string
	PortalID string
	Search   string
	Limit    int
	Offset   int
}

// UploadResult summarises a bulk mapping upload.
type UploadResult struct {
	Upserted  int             `json:"upserted"`
	Skipped   []SkippedRow    `json:"skipped,omitempty"`
	Conflicts []ConflictedSKU `json:"conflicts,omitempty"`
}

// SkippedRow reports an unusable row of a mapping upload.
type SkippedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ConflictedSKU reports a portal SKU mapped to different ledger SKUs in one file.
type ConflictedSKU struct {
	PortalSKU  string   `json:"portal_sku"`
	LedgerSKUs []string `json:"ledger_skus"`
}

// Resolution is the outcome of resolving a batch of portal SKUs.
type Resolution struct {
	Resolved map[string]string `json:"resolved"`
	// Missing holds unmapped SKUs once each, in first-seen input order.
	Missing []string `json:"missing_skus"`
}

// MissingSKUError halts a run whose input references unmapped SKUs.
type MissingSKUError struct {
	BrandID  string
	PortalID string
	SKUs     []string
}

func (e *MissingSKUError) Error() string {
	const preview = 5
	skus := e.SKUs
	suffix := ""
	if len(skus) > preview {
		suffix = fmt.Sprintf(" (+%d more)", len(skus)-preview)
		skus = skus[:preview]
	}
	return fmt.Sprintf("skumap: %d unmapped sku(s) for brand %s portal %s: %s%s",
		len(e.SKUs), e.BrandID, e.PortalID, strings.Join(skus, ", "), suffix)
}

// Is lets errors.Is(err, ErrNotMapped) match a MissingSKUError.
func (e *MissingSKUError) Is(target error) bool {
	return target == ErrNotMapped
}
