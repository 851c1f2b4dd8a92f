package mis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/report"
)

// Recorder receives evaluation outcomes for metrics.
type Recorder interface {
	MISGenerated(policy string, rules, invalid int)
	MISRuleFailed(kind string)
}

// ServiceOptions configures the service.
type ServiceOptions struct {
	DefaultPolicy Policy
	Recorder      Recorder
}

// Service manages formats and generates MIS workbooks.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	validate *validator.Validate
	policy   Policy
	recorder Recorder
}

// NewService constructs the service. repo may be nil when only inline rules
// are used.
func NewService(repo Repository, logger *slog.Logger, opts ServiceOptions) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.DefaultPolicy
	if policy == "" {
		policy = AbortOnError
	}
	return &Service{repo: repo, logger: logger, validate: validator.New(), policy: policy, recorder: opts.Recorder}
}

// CreateFormat validates and stores a format. Every formula must parse.
func (s *Service) CreateFormat(ctx context.Context, in CreateFormatInput) (Format, error) {
	in.trim()
	if err := s.validate.Struct(in); err != nil {
		return Format{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := ValidateRules(in.Rules); err != nil {
		return Format{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if s.repo == nil {
		return Format{}, errors.New("mis: format storage not configured")
	}
	f, err := s.repo.CreateFormat(ctx, in)
	if err != nil {
		return Format{}, fmt.Errorf("mis: create format: %w", err)
	}
	return f, nil
}

// GetFormat loads a stored format.
func (s *Service) GetFormat(ctx context.Context, id uuid.UUID) (Format, error) {
	if s.repo == nil {
		return Format{}, ErrFormatNotFound
	}
	return s.repo.GetFormat(ctx, id)
}

// ListFormats lists formats, optionally for one brand.
func (s *Service) ListFormats(ctx context.Context, brandID string) ([]Format, error) {
	if s.repo == nil {
		return []Format{}, nil
	}
	formats, err := s.repo.ListFormats(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("mis: list formats: %w", err)
	}
	return formats, nil
}

// DeleteFormat removes a stored format.
func (s *Service) DeleteFormat(ctx context.Context, id uuid.UUID) error {
	if s.repo == nil {
		return ErrFormatNotFound
	}
	return s.repo.DeleteFormat(ctx, id)
}

func (s *Service) rules(ctx context.Context, req GenerateRequest) ([]FormatRule, string, error) {
	if req.FormatID == nil {
		if len(req.Rules) == 0 {
			return nil, "", fmt.Errorf("%w: a format_id or rules are required", ErrValidation)
		}
		return req.Rules, req.Title, nil
	}
	f, err := s.GetFormat(ctx, *req.FormatID)
	if err != nil {
		return nil, "", err
	}
	if req.BrandID != "" && f.BrandID != req.BrandID {
		return nil, "", ErrFormatNotFound
	}
	title := req.Title
	if title == "" {
		title = f.Name
	}
	return f.Rules, title, nil
}

// Generate evaluates the rules over the trial balance and assembles the MIS
// workbook (MIS sheet followed by the trial balance echo).
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (Result, error) {
	if req.TrialBalance == nil || len(req.TrialBalance.Lines) == 0 {
		return Result{}, fmt.Errorf("%w: trial balance is required", ErrValidation)
	}
	rules, title, err := s.rules(ctx, req)
	if err != nil {
		return Result{}, err
	}
	policy := req.Policy
	if policy == "" {
		policy = s.policy
	}

	rep, err := Evaluate(req.TrialBalance, rules, Options{Policy: policy})
	if err != nil {
		s.recordFailure(err)
		s.logger.Warn("mis evaluation aborted", slog.String("brand_id", req.BrandID), slog.Any("error", err))
		return Result{}, err
	}
	for _, row := range rep.Rows {
		if !row.Valid() {
			s.recordFailure(row.Err)
		}
	}
	if s.recorder != nil {
		s.recorder.MISGenerated(string(policy), len(rules), rep.Invalid())
	}

	workbook, err := report.Assemble(
		ReportSheet("MIS", rep),
		TrialBalanceSheet("Trial Balance", req.TrialBalance),
	)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("mis generated",
		slog.String("brand_id", req.BrandID),
		slog.Int("rules", len(rules)),
		slog.Int("invalid", rep.Invalid()),
		slog.Int("months", len(rep.Months)),
	)
	return Result{Report: rep, Workbook: workbook, Filename: report.Filename("mis", req.BrandID, title)}, nil
}

func (s *Service) recordFailure(err error) {
	if s.recorder == nil {
		return
	}
	s.recorder.MISRuleFailed(FailureKind(err))
}

// FailureKind classifies an evaluation error for metrics and API responses.
func FailureKind(err error) string {
	var (
		unknown *UnknownOperandError
		dep     *InvalidDependencyError
		syntax  *FormulaError
	)
	switch {
	case errors.As(err, &unknown):
		return "unknown_operand"
	case errors.As(err, &dep):
		return "invalid_dependency"
	case errors.As(err, &syntax):
		return "syntax"
	case errors.Is(err, ErrDuplicateRule):
		return "duplicate_rule"
	default:
		return "other"
	}
}
