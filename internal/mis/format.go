package mis

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFormatNotFound indicates a missing stored format.
	ErrFormatNotFound = errors.New("mis: format not found")
	// ErrFormatExists indicates a brand already has a format with that name.
	ErrFormatExists = errors.New("mis: format already exists")
	// ErrValidation wraps request validation failures.
	ErrValidation = errors.New("mis: validation failed")
)

// Format is a stored, ordered rule set owned by a brand.
type Format struct {
	ID        uuid.UUID    `json:"id"`
	BrandID   string       `json:"brand_id"`
	Name      string       `json:"name"`
	Rules     []FormatRule `json:"rules"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CreateFormatInput stores a new format.
type CreateFormatInput struct {
	BrandID string       `json:"brand_id" validate:"required,max=64"`
	Name    string       `json:"name" validate:"required,max=200"`
	Rules   []FormatRule `json:"rules" validate:"required,min=1,dive"`
}

func (in *CreateFormatInput) trim() {
	in.BrandID = strings.TrimSpace(in.BrandID)
	in.Name = strings.TrimSpace(in.Name)
	for i := range in.Rules {
		in.Rules[i].Name = strings.TrimSpace(in.Rules[i].Name)
		in.Rules[i].Formula = strings.TrimSpace(in.Rules[i].Formula)
	}
}

// GenerateRequest evaluates either a stored format or inline rules.
type GenerateRequest struct {
	BrandID      string
	FormatID     *uuid.UUID
	Rules        []FormatRule
	TrialBalance *TrialBalance
	Policy       Policy
	Title        string
}

// Result is a generated MIS report and its workbook.
type Result struct {
	Report   Report
	Workbook []byte
	Filename string
}
