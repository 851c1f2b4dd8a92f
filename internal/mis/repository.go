package mis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists MIS formats.
type Repository interface {
	CreateFormat(ctx context.Context, in CreateFormatInput) (Format, error)
	GetFormat(ctx context.Context, id uuid.UUID) (Format, error)
	ListFormats(ctx context.Context, brandID string) ([]Format, error)
	DeleteFormat(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const formatColumns = `id, brand_id, name, rules, created_at, updated_at`

func scanFormat(row pgx.Row) (Format, error) {
	var (
		f   Format
		raw []byte
	)
	if err := row.Scan(&f.ID, &f.BrandID, &f.Name, &raw, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Format{}, ErrFormatNotFound
		}
		return Format{}, err
	}
	if err := json.Unmarshal(raw, &f.Rules); err != nil {
		return Format{}, fmt.Errorf("mis: decode rules: %w", err)
	}
	return f, nil
}

func (r *repository) CreateFormat(ctx context.Context, in CreateFormatInput) (Format, error) {
	rules, err := json.Marshal(in.Rules)
	if err != nil {
		return Format{}, err
	}
	f, err := scanFormat(r.pool.QueryRow(ctx, `INSERT INTO mis_formats (id, brand_id, name, rules)
		VALUES ($1, $2, $3, $4)
		RETURNING `+formatColumns, uuid.New(), in.BrandID, in.Name, rules))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Format{}, ErrFormatExists
		}
		return Format{}, err
	}
	return f, nil
}

func (r *repository) GetFormat(ctx context.Context, id uuid.UUID) (Format, error) {
	return scanFormat(r.pool.QueryRow(ctx, `SELECT `+formatColumns+` FROM mis_formats WHERE id = $1`, id))
}

func (r *repository) ListFormats(ctx context.Context, brandID string) ([]Format, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+formatColumns+` FROM mis_formats
		WHERE ($1 = '' OR brand_id = $1)
		ORDER BY brand_id, name`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Format
	for rows.Next() {
		f, err := scanFormat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *repository) DeleteFormat(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM mis_formats WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFormatNotFound
	}
	return nil
}
