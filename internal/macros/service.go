package macros

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap"
)

// Enqueuer hands a pending record to the background worker.
type Enqueuer interface {
	EnqueueMacrosGenerate(ctx context.Context, fileID uuid.UUID) error
}

// Recorder receives pipeline metrics.
type Recorder interface {
	MacrosProcessed(portal, outcome string)
	MacrosRows(portal string, normalized, dropped int)
}

// DefaultStaleAfter outlasts the queue's task timeout so a live run is never
// claimed twice.
const DefaultStaleAfter = 15 * time.Minute

// ServiceOptions carries the optional collaborators of a Service.
type ServiceOptions struct {
	Storage  Storage
	Enqueuer Enqueuer
	Recorder Recorder
	// StaleAfter is how long a record may sit in processing before another
	// run may claim it.
	StaleAfter time.Duration
}

// Service persists runs of the pipeline and their artifacts.
type Service struct {
	pipeline *Pipeline
	repo     Repository
	storage  Storage
	enqueuer Enqueuer
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	stale    time.Duration
}

// NewService constructs a Service. A nil repo runs the pipeline without
// keeping file records.
func NewService(pipeline *Pipeline, repo Repository, logger *slog.Logger, opts ServiceOptions) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	storage := opts.Storage
	if storage == nil {
		storage = NewDirStorage("")
	}
	stale := opts.StaleAfter
	if stale <= 0 {
		stale = DefaultStaleAfter
	}
	return &Service{
		pipeline: pipeline,
		repo:     repo,
		storage:  storage,
		enqueuer: opts.Enqueuer,
		recorder: opts.Recorder,
		logger:   logger,
		now:      time.Now,
		stale:    stale,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Generate runs the pipeline synchronously. When a repository is configured the
// run is also recorded so the workbook can be downloaded again later.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (Output, FileRecord, error) {
	if err := req.Validate(); err != nil {
		return Output{}, FileRecord{}, err
	}
	if s.repo == nil {
		out, err := s.run(ctx, req)
		return out, FileRecord{}, err
	}
	rec, err := s.store(ctx, req, StatusProcessing)
	if err != nil {
		return Output{}, FileRecord{}, err
	}
	out, err := s.run(ctx, req)
	rec, finishErr := s.finish(ctx, rec, out, err)
	if err != nil {
		return out, rec, err
	}
	return out, rec, finishErr
}

// Submit stores the export and queues it for the worker. An identical export
// that already completed for the same brand and portal is returned as is.
func (s *Service) Submit(ctx context.Context, req GenerateRequest) (FileRecord, error) {
	if err := req.Validate(); err != nil {
		return FileRecord{}, err
	}
	if s.repo == nil || s.enqueuer == nil {
		return FileRecord{}, errors.New("macros: background processing not configured")
	}
	hash := ContentHash(req.Data)
	existing, err := s.repo.FindCompleted(ctx, req.BrandID, req.PortalID, req.Portal, hash)
	switch {
	case err == nil:
		s.logger.Info("macros export already processed", slog.String("file_id", existing.ID.String()))
		return existing, nil
	case !errors.Is(err, ErrFileNotFound):
		return FileRecord{}, err
	}
	rec, err := s.store(ctx, req, StatusPending)
	if err != nil {
		return FileRecord{}, err
	}
	if err := s.enqueuer.EnqueueMacrosGenerate(ctx, rec.ID); err != nil {
		_ = s.repo.MarkFailed(ctx, rec.ID, "enqueue: "+err.Error(), Counts{})
		return FileRecord{}, fmt.Errorf("macros: enqueue: %w", err)
	}
	return rec, nil
}

// Process runs a queued record. Completed records are returned untouched.
func (s *Service) Process(ctx context.Context, id uuid.UUID) (FileRecord, error) {
	if s.repo == nil {
		return FileRecord{}, errors.New("macros: repository not configured")
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return FileRecord{}, err
	}
	if rec.Status == StatusCompleted {
		return rec, nil
	}
	if err := s.repo.MarkProcessing(ctx, id, s.now().Add(-s.stale)); err != nil {
		if errors.Is(err, ErrInvalidStatus) && rec.Status == StatusProcessing {
			return rec, ErrInProgress
		}
		return rec, err
	}
	data, err := s.storage.Get(ctx, rec.SourceKey)
	if err != nil {
		_ = s.repo.MarkFailed(ctx, id, "load source: "+err.Error(), Counts{})
		return rec, fmt.Errorf("macros: load source: %w", err)
	}
	req := GenerateRequest{
		BrandID:    rec.BrandID,
		PortalID:   rec.PortalID,
		Portal:     rec.Portal,
		Period:     rec.Period,
		HomeState:  rec.HomeState,
		SourceName: rec.SourceName,
		Data:       data,
	}
	out, err := s.run(ctx, req)
	rec, finishErr := s.finish(ctx, rec, out, err)
	if err != nil {
		return rec, err
	}
	return rec, finishErr
}

// Retry reruns a record that failed, halted on unmapped SKUs or was abandoned
// in processing, reading the stored source again. It runs inline because the
// original task may still be archived in the queue under the record's task id.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (FileRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return FileRecord{}, err
	}
	switch rec.Status {
	case StatusFailed, StatusMissingSKUs:
	case StatusProcessing:
		if !s.Stale(rec) {
			return rec, ErrInProgress
		}
	default:
		return rec, fmt.Errorf("%w: %s", ErrInvalidStatus, rec.Status)
	}
	return s.Process(ctx, id)
}

// Stale reports whether a processing record has outlived any run that could
// still be working on it.
func (s *Service) Stale(rec FileRecord) bool {
	return rec.Status == StatusProcessing && rec.UpdatedAt.Before(s.now().Add(-s.stale))
}

// Get loads a file record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (FileRecord, error) {
	if s.repo == nil {
		return FileRecord{}, ErrFileNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns file records, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]FileRecord, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.List(ctx, filter)
}

// Download returns the record and its generated workbook.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (FileRecord, []byte, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return FileRecord{}, nil, err
	}
	if !rec.Downloadable() {
		return rec, nil, ErrNoArtifact
	}
	data, err := s.storage.Get(ctx, rec.ArtifactKey)
	if err != nil {
		return rec, nil, err
	}
	return rec, data, nil
}

func (s *Service) store(ctx context.Context, req GenerateRequest, status Status) (FileRecord, error) {
	rec := FileRecord{
		ID:          uuid.New(),
		BrandID:     req.BrandID,
		PortalID:    req.PortalID,
		Portal:      req.Portal,
		Period:      req.Period,
		HomeState:   req.HomeState,
		SourceName:  req.SourceName,
		ContentHash: ContentHash(req.Data),
		Status:      status,
	}
	rec.SourceKey = sourceKey(rec)
	if err := s.storage.Put(ctx, rec.SourceKey, req.Data); err != nil {
		return FileRecord{}, fmt.Errorf("macros: store source: %w", err)
	}
	return s.repo.Insert(ctx, rec)
}

func (s *Service) run(ctx context.Context, req GenerateRequest) (Output, error) {
	out, err := s.pipeline.Run(ctx, req)
	kind := string(req.Portal)
	var missing *skumap.MissingSKUError
	switch {
	case err == nil:
		s.record(kind, "completed", out.Counts)
		s.logger.Info("macros generated",
			slog.String("brand_id", req.BrandID),
			slog.String("portal", kind),
			slog.Int("rows", out.Counts.Rows),
			slog.Int("dropped", out.Counts.Dropped),
			slog.Int("pivot_rows", out.Counts.PivotRows),
		)
	case errors.As(err, &missing):
		s.record(kind, "missing_skus", out.Counts)
		s.logger.Warn("macros halted on unmapped skus",
			slog.String("brand_id", req.BrandID),
			slog.String("portal", kind),
			slog.Int("missing", len(missing.SKUs)),
		)
	default:
		s.record(kind, "failed", out.Counts)
		s.logger.Warn("macros failed", slog.String("portal", kind), slog.Any("error", err))
	}
	return out, err
}

func (s *Service) record(kind, outcome string, counts Counts) {
	if s.recorder == nil {
		return
	}
	s.recorder.MacrosProcessed(kind, outcome)
	if counts.Rows > 0 {
		s.recorder.MacrosRows(kind, counts.Normalized, counts.Dropped)
	}
}

// finish stores the outcome of a run on its record and returns the refreshed
// record.
func (s *Service) finish(ctx context.Context, rec FileRecord, out Output, runErr error) (FileRecord, error) {
	var (
		missing *skumap.MissingSKUError
		err     error
	)
	switch {
	case runErr == nil:
		key := artifactKey(rec)
		if err = s.storage.Put(ctx, key, out.Workbook); err != nil {
			_ = s.repo.MarkFailed(ctx, rec.ID, "store workbook: "+err.Error(), out.Counts)
			return rec, fmt.Errorf("macros: store workbook: %w", err)
		}
		err = s.repo.MarkCompleted(ctx, rec.ID, key, out.Counts, s.now())
	case errors.As(runErr, &missing):
		err = s.repo.MarkMissingSKUs(ctx, rec.ID, out.Counts, missing.SKUs)
	default:
		err = s.repo.MarkFailed(ctx, rec.ID, runErr.Error(), out.Counts)
	}
	if err != nil {
		return rec, err
	}
	return s.repo.Get(ctx, rec.ID)
}
