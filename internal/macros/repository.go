package macros

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
)

// Repository persists file records.
type Repository interface {
	Insert(ctx context.Context, rec FileRecord) (FileRecord, error)
	Get(ctx context.Context, id uuid.UUID) (FileRecord, error)
	List(ctx context.Context, filter ListFilter) ([]FileRecord, error)
	FindCompleted(ctx context.Context, brandID, portalID string, kind portal.Kind, hash string) (FileRecord, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, staleBefore time.Time) error
	MarkCompleted(ctx context.Context, id uuid.UUID, artifactKey string, counts Counts, at time.Time) error
	MarkMissingSKUs(ctx context.Context, id uuid.UUID, counts Counts, skus []string) error
	MarkFailed(ctx context.Context, id uuid.UUID, msg string, counts Counts) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const fileColumns = `id, brand_id, portal_id, portal, period, home_state, source_name, source_key,
	artifact_key, content_hash, status, counts, missing_skus, error_message,
	created_at, updated_at, completed_at`

func scanFile(row pgx.Row) (FileRecord, error) {
	var (
		rec     FileRecord
		counts  []byte
		missing []byte
		errMsg  *string
	)
	err := row.Scan(&rec.ID, &rec.BrandID, &rec.PortalID, &rec.Portal, &rec.Period, &rec.HomeState,
		&rec.SourceName, &rec.SourceKey, &rec.ArtifactKey, &rec.ContentHash, &rec.Status,
		&counts, &missing, &errMsg, &rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FileRecord{}, ErrFileNotFound
	}
	if err != nil {
		return FileRecord{}, err
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &rec.Counts); err != nil {
			return FileRecord{}, fmt.Errorf("macros: decode counts: %w", err)
		}
	}
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &rec.MissingSKUs); err != nil {
			return FileRecord{}, fmt.Errorf("macros: decode missing skus: %w", err)
		}
	}
	if errMsg != nil {
		rec.Error = *errMsg
	}
	return rec, nil
}

func (r *repository) Insert(ctx context.Context, rec FileRecord) (FileRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	counts, err := json.Marshal(rec.Counts)
	if err != nil {
		return FileRecord{}, err
	}
	return scanFile(r.pool.QueryRow(ctx, `INSERT INTO macros_files
	(id, brand_id, portal_id, portal, period, home_state, source_name, source_key, artifact_key,
	 content_hash, status, counts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, $10, $11)
RETURNING `+fileColumns,
		rec.ID, rec.BrandID, rec.PortalID, rec.Portal, rec.Period, rec.HomeState, rec.SourceName,
		rec.SourceKey, rec.ContentHash, rec.Status, counts))
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (FileRecord, error) {
	return scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM macros_files WHERE id = $1`, id))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]FileRecord, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.BrandID != "" {
		add("brand_id = $%d", filter.BrandID)
	}
	if filter.PortalID != "" {
		add("portal_id = $%d", filter.PortalID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	query := `SELECT ` + fileColumns + ` FROM macros_files`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repository) FindCompleted(ctx context.Context, brandID, portalID string, kind portal.Kind, hash string) (FileRecord, error) {
	return scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM macros_files
WHERE brand_id = $1 AND portal_id = $2 AND portal = $3 AND content_hash = $4 AND status = 'completed'
ORDER BY completed_at DESC LIMIT 1`, brandID, portalID, kind, hash))
}

// MarkProcessing claims a record that is pending or may be retried. A record
// left in processing since before staleBefore is claimed again.
func (r *repository) MarkProcessing(ctx context.Context, id uuid.UUID, staleBefore time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE macros_files
SET status = 'processing', error_message = NULL, updated_at = NOW()
WHERE id = $1 AND (status IN ('pending', 'failed', 'missing_skus')
    OR (status = 'processing' AND updated_at < $2))`, id, staleBefore)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, artifactKey string, counts Counts, at time.Time) error {
	payload, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE macros_files
SET status = 'completed', artifact_key = $2, counts = $3, missing_skus = NULL, error_message = NULL,
    completed_at = $4, updated_at = NOW()
WHERE id = $1`, id, artifactKey, payload, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (r *repository) MarkMissingSKUs(ctx context.Context, id uuid.UUID, counts Counts, skus []string) error {
	payload, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	missing, err := json.Marshal(skus)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE macros_files
SET status = 'missing_skus', counts = $2, missing_skus = $3, updated_at = NOW()
WHERE id = $1`, id, payload, missing)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, msg string, counts Counts) error {
	payload, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE macros_files
SET status = 'failed', error_message = $2, counts = $3, updated_at = NOW()
WHERE id = $1`, id, truncateError(msg), payload)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

func truncateError(msg string) string {
	const max = 1000
	msg = strings.TrimSpace(msg)
	if len(msg) > max {
		return msg[:max]
	}
	return msg
}
