package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/Jayes-h/fintech-process-automation-sub001/internal/jobs"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SnapshotLoader loads one mapping snapshot, populating the cache on a miss.
type SnapshotLoader interface {
	Snapshot(ctx context.Context, brandID, portalID string) (*skumap.Table, error)
}

// SKUWarmupJob preloads the SKU snapshot cache for every mapped brand and portal
// so the first upload of the day does not pay for the database round trip.
type SKUWarmupJob struct {
	Loader  SnapshotLoader
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSKUWarmupJob wires dependencies for the warmup handler.
func NewSKUWarmupJob(loader SnapshotLoader, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *SKUWarmupJob {
	return &SKUWarmupJob{
		Loader:  loader,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes snapshot warmup tasks.
func (j *SKUWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("skumap warmup: handler not configured")
	}
	var payload SKUSnapshotWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSKUSnapshotWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.BrandID != "" {
		logger = logger.With(slog.String("brand_id", payload.BrandID))
	}
	logger.Info("starting sku snapshot warmup")

	scopes, err := j.fetchScopes(ctx, payload.BrandID)
	if err != nil {
		resultErr = err
		logger.Error("load warmup scopes", slog.Any("error", err))
		return resultErr
	}
	if len(scopes) == 0 {
		logger.Info("no sku mappings to warm")
		return resultErr
	}

	start := j.now()
	warmed := 0
	for _, scope := range scopes {
		if err := j.warmScope(ctx, scope); err != nil {
			resultErr = err
			logger.Error("warm scope", slog.String("brand_id", scope.BrandID), slog.String("portal_id", scope.PortalID), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}
	j.metrics().AddSnapshots(warmed)

	logger.Info("completed sku snapshot warmup", slog.Int("scopes", warmed), slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *SKUWarmupJob) warmScope(ctx context.Context, scope warmupScope) error {
	if j.Loader == nil {
		return nil
	}
	scopeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	_, err := j.Loader.Snapshot(scopeCtx, scope.BrandID, scope.PortalID)
	return err
}

func (j *SKUWarmupJob) fetchScopes(ctx context.Context, brandID string) ([]warmupScope, error) {
	if j.Pool == nil {
		return nil, errors.New("skumap warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT DISTINCT brand_id, portal_id FROM sku_mappings
WHERE $1 = '' OR brand_id = $1 ORDER BY brand_id, portal_id`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scopes := make([]warmupScope, 0)
	for rows.Next() {
		var scope warmupScope
		if err := rows.Scan(&scope.BrandID, &scope.PortalID); err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scopes, nil
}

func (j *SKUWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSKUSnapshotWarmup))
	}
	return slog.Default().With(slog.String("job", TaskSKUSnapshotWarmup))
}

func (j *SKUWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SKUWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

type warmupScope struct {
	BrandID  string
	PortalID string
}
