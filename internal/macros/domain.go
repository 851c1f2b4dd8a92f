// Package macros runs the marketplace reconciliation pipeline: a raw portal
// export is normalized, its SKUs mapped to ledger names and the result pivoted
// into the accounting workbook.
package macros

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
)

var (
	// ErrFileNotFound indicates a missing file record.
	ErrFileNotFound = errors.New("macros: file not found")
	// ErrInvalidStatus indicates a status transition that is not allowed.
	ErrInvalidStatus = errors.New("macros: invalid status transition")
	// ErrValidation wraps request validation failures.
	ErrValidation = errors.New("macros: validation failed")
	// ErrInProgress indicates another run holds the record.
	ErrInProgress = errors.New("macros: file is being processed")
	// ErrNoArtifact indicates the record has no generated workbook yet.
	ErrNoArtifact = errors.New("macros: workbook not available")
)

// Status tracks a file record through the pipeline.
type Status string

const (
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusMissingSKUs Status = "missing_skus"
)

// Counts summarises one pipeline run.
type Counts struct {
	Rows        int                       `json:"rows"`
	Normalized  int                       `json:"normalized"`
	Dropped     int                       `json:"dropped"`
	DropReasons map[portal.DropReason]int `json:"drop_reasons,omitempty"`
	PivotRows   int                       `json:"pivot_rows"`
	MissingSKUs int                       `json:"missing_skus"`
}

// GenerateRequest is one raw export to reconcile.
type GenerateRequest struct {
	BrandID    string
	PortalID   string
	Portal     portal.Kind
	Period     string
	HomeState  string
	SourceName string
	Data       []byte
}

// Validate checks the identifiers and the payload.
func (r *GenerateRequest) Validate() error {
	r.BrandID = strings.TrimSpace(r.BrandID)
	r.PortalID = strings.TrimSpace(r.PortalID)
	r.Period = strings.TrimSpace(r.Period)
	r.SourceName = strings.TrimSpace(r.SourceName)
	if r.BrandID == "" || r.PortalID == "" {
		return fmt.Errorf("%w: brand_id and portal_id are required", ErrValidation)
	}
	kind, err := portal.ParseKind(string(r.Portal))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	r.Portal = kind
	if len(r.Data) == 0 {
		return fmt.Errorf("%w: file is empty", ErrValidation)
	}
	return nil
}

// FileRecord tracks an uploaded export and its generated workbook.
type FileRecord struct {
	ID          uuid.UUID   `json:"id"`
	BrandID     string      `json:"brand_id"`
	PortalID    string      `json:"portal_id"`
	Portal      portal.Kind `json:"portal"`
	Period      string      `json:"period,omitempty"`
	HomeState   string      `json:"home_state,omitempty"`
	SourceName  string      `json:"source_name"`
	SourceKey   string      `json:"-"`
	ArtifactKey string      `json:"-"`
	ContentHash string      `json:"content_hash"`
	Status      Status      `json:"status"`
	Counts      Counts      `json:"counts"`
	MissingSKUs []string    `json:"missing_skus,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Downloadable reports whether the workbook can be fetched.
func (f FileRecord) Downloadable() bool {
	return f.Status == StatusCompleted && f.ArtifactKey != ""
}

// ListFilter narrows file listings.
type ListFilter struct {
	BrandID  string
	PortalID string
	Status   Status
	Limit    int
}
