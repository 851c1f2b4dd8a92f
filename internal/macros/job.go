package macros

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/Jayes-h/fintech-process-automation-sub001/internal/jobs"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap"
	"github.com/Jayes-h/fintech-process-automation-sub001/jobs"
)

// Job processes queued macros generation requests.
type Job struct {
	service *Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewJob constructs a Job handler. metrics may be nil.
func NewJob(service *Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *Job {
	return &Job{service: service, logger: logger, metrics: metrics}
}

// Handle fulfils the asynq.HandlerFunc contract. Failures the input itself
// causes are not retried.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil {
		return fmt.Errorf("macros job not configured")
	}
	var payload jobs.MacrosGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	id, err := uuid.Parse(payload.FileID)
	if err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(jobs.TaskMacrosGenerate)
	rec, err := j.service.Process(ctx, id)
	_ = tracker.End(err)
	if err != nil {
		if permanent(err) {
			if j.logger != nil {
				j.logger.Warn("macros job rejected", slog.String("file_id", payload.FileID), slog.Any("error", err))
			}
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if j.logger != nil {
		j.logger.Info("macros file processed", slog.String("file_id", rec.ID.String()), slog.String("status", string(rec.Status)))
	}
	return nil
}

func permanent(err error) bool {
	var (
		parseErr  *sheet.ParseError
		columnErr *portal.ColumnError
	)
	return errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, skumap.ErrNotMapped) ||
		errors.As(err, &parseErr) ||
		errors.As(err, &columnErr)
}
