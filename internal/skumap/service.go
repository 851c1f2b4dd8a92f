package skumap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
)

var (
	portalSKUHeaders = []string{"portal sku", "portal_sku", "marketplace sku", "seller sku", "sku"}
	ledgerSKUHeaders = []string{"ledger sku", "ledger_sku", "ledger", "ledger name", "tally sku"}
)

// Service maintains mappings and keeps resolver snapshots fresh.
type Service struct {
	repo     Repository
	resolver *Resolver
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs the mapping service.
func NewService(repo Repository, resolver *Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, validate: validator.New(), logger: logger}
}

// Resolver exposes the resolver used by pipeline runs.
func (s *Service) Resolver() *Resolver { return s.resolver }

func (s *Service) check(in *UpsertInput) error {
	in.trim()
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Create stores a new mapping, failing with ErrDuplicate if the portal SKU is
// already mapped for the brand/portal.
func (s *Service) Create(ctx context.Context, in UpsertInput) (Mapping, error) {
	if err := s.check(&in); err != nil {
		return Mapping{}, err
	}
	var m Mapping
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		m, err = repo.Insert(ctx, in)
		return err
	})
	if err != nil {
		return Mapping{}, fmt.Errorf("skumap: create: %w", err)
	}
	s.invalidate(ctx, in.BrandID, in.PortalID)
	return m, nil
}

// Upsert creates the mapping or repoints an existing portal SKU.
func (s *Service) Upsert(ctx context.Context, in UpsertInput) (Mapping, error) {
	if err := s.check(&in); err != nil {
		return Mapping{}, err
	}
	var m Mapping
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		m, err = repo.Upsert(ctx, in)
		return err
	})
	if err != nil {
		return Mapping{}, fmt.Errorf("skumap: upsert: %w", err)
	}
	s.invalidate(ctx, in.BrandID, in.PortalID)
	return m, nil
}

// BulkUpload upserts every mapping of a spreadsheet with "portal sku" and
// "ledger sku" columns. Rows mapping one portal SKU to different ledger SKUs
// are reported as conflicts and not written.
func (s *Service) BulkUpload(ctx context.Context, brandID, portalID string, data []byte) (UploadResult, error) {
	table, err := sheet.Read(data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("skumap: upload: %w", err)
	}
	portalCol, ok := firstHeader(table, portalSKUHeaders)
	if !ok {
		return UploadResult{}, fmt.Errorf("%w: no portal sku column", ErrInvalidUpload)
	}
	ledgerCol, ok := firstHeader(table, ledgerSKUHeaders)
	if !ok {
		return UploadResult{}, fmt.Errorf("%w: no ledger sku column", ErrInvalidUpload)
	}

	var result UploadResult
	inputs := make([]UpsertInput, 0, table.Len())
	index := make(map[string]int)
	ledgers := make(map[string][]string)
	for i, rec := range table.Records {
		in := UpsertInput{BrandID: brandID, PortalID: portalID, PortalSKU: rec.Get(portalCol), LedgerSKU: rec.Get(ledgerCol)}
		if err := s.check(&in); err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{Row: table.Rows[i], Reason: "missing or oversized sku"})
			continue
		}
		if at, seen := index[in.PortalSKU]; seen {
			if inputs[at].LedgerSKU != in.LedgerSKU && !contains(ledgers[in.PortalSKU], in.LedgerSKU) {
				ledgers[in.PortalSKU] = append(ledgers[in.PortalSKU], in.LedgerSKU)
			}
			continue
		}
		index[in.PortalSKU] = len(inputs)
		ledgers[in.PortalSKU] = []string{in.LedgerSKU}
		inputs = append(inputs, in)
	}

	writes := make([]UpsertInput, 0, len(inputs))
	for _, in := range inputs {
		if l := ledgers[in.PortalSKU]; len(l) > 1 {
			result.Conflicts = append(result.Conflicts, ConflictedSKU{PortalSKU: in.PortalSKU, LedgerSKUs: l})
			continue
		}
		writes = append(writes, in)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		for _, in := range writes {
			if _, err := repo.Upsert(ctx, in); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("skumap: upload: %w", err)
	}
	result.Upserted = len(writes)
	s.invalidate(ctx, brandID, portalID)
	s.logger.Info("sku mappings uploaded",
		slog.String("brand_id", brandID),
		slog.String("portal_id", portalID),
		slog.Int("upserted", result.Upserted),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("conflicts", len(result.Conflicts)),
	)
	return result, nil
}

// List returns mappings matching filter and the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Mapping, int, error) {
	mappings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("skumap: list: %w", err)
	}
	return mappings, total, nil
}

// Get loads one mapping.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Mapping, error) {
	return s.repo.Get(ctx, id)
}

// Delete removes a mapping.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var m Mapping
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		m, err = repo.Delete(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("skumap: delete: %w", err)
	}
	s.invalidate(ctx, m.BrandID, m.PortalID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, brandID, portalID string) {
	if s.resolver == nil {
		return
	}
	if err := s.resolver.Invalidate(ctx, brandID, portalID); err != nil {
		s.logger.Warn("skumap invalidate snapshot", slog.String("brand_id", brandID), slog.String("portal_id", portalID), slog.Any("error", err))
	}
}

func firstHeader(table *sheet.Table, candidates []string) (string, bool) {
	for _, c := range candidates {
		if table.HasHeader(c) {
			return sheet.NormalizeHeader(c), true
		}
	}
	return "", false
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
