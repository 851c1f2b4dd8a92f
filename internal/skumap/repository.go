package skumap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/platform/db"
)

// Repository persists SKU mappings.
type Repository interface {
	Store
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id uuid.UUID) (Mapping, error)
	Lookup(ctx context.Context, brandID, portalID, portalSKU string) (Mapping, error)
	List(ctx context.Context, filter ListFilter) ([]Mapping, int, error)
	Insert(ctx context.Context, in UpsertInput) (Mapping, error)
	Upsert(ctx context.Context, in UpsertInput) (Mapping, error)
	Delete(ctx context.Context, id uuid.UUID) (Mapping, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

const mappingColumns = `id, brand_id, portal_id, portal_sku, ledger_sku, created_at, updated_at`

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func scanMapping(row pgx.Row) (Mapping, error) {
	var m Mapping
	err := row.Scan(&m.ID, &m.BrandID, &m.PortalID, &m.PortalSKU, &m.LedgerSKU, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mapping{}, ErrNotFound
	}
	return m, err
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Mapping, error) {
	return scanMapping(r.db.QueryRow(ctx, `SELECT `+mappingColumns+` FROM sku_mappings WHERE id = $1`, id))
}

func (r *repository) Lookup(ctx context.Context, brandID, portalID, portalSKU string) (Mapping, error) {
	return scanMapping(r.db.QueryRow(ctx, `SELECT `+mappingColumns+` FROM sku_mappings
		WHERE brand_id = $1 AND portal_id = $2 AND portal_sku = $3`, brandID, portalID, portalSKU))
}

func (r *repository) ListForPortal(ctx context.Context, brandID, portalID string) ([]Mapping, error) {
	rows, err := r.db.Query(ctx, `SELECT `+mappingColumns+` FROM sku_mappings
		WHERE brand_id = $1 AND portal_id = $2
		ORDER BY created_at, portal_sku`, brandID, portalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMappings(rows)
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Mapping, int, error) {
	var conditions []string
	var args []interface{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.BrandID != "" {
		add("brand_id = $%d", filter.BrandID)
	}
	if filter.PortalID != "" {
		add("portal_id = $%d", filter.PortalID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conditions = append(conditions, fmt.Sprintf("(portal_sku ILIKE $%d OR ledger_sku ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM sku_mappings "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM sku_mappings %s
		ORDER BY brand_id, portal_id, portal_sku
		LIMIT $%d OFFSET $%d`, mappingColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	mappings, err := collectMappings(rows)
	if err != nil {
		return nil, 0, err
	}
	return mappings, total, nil
}

func collectMappings(rows pgx.Rows) ([]Mapping, error) {
	var out []Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) Insert(ctx context.Context, in UpsertInput) (Mapping, error) {
	m, err := scanMapping(r.db.QueryRow(ctx, `INSERT INTO sku_mappings (id, brand_id, portal_id, portal_sku, ledger_sku)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+mappingColumns, uuid.New(), in.BrandID, in.PortalID, in.PortalSKU, in.LedgerSKU))
	if err != nil {
		return Mapping{}, mapWriteError(err)
	}
	return m, nil
}

func (r *repository) Upsert(ctx context.Context, in UpsertInput) (Mapping, error) {
	m, err := scanMapping(r.db.QueryRow(ctx, `INSERT INTO sku_mappings (id, brand_id, portal_id, portal_sku, ledger_sku)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (brand_id, portal_id, portal_sku)
		DO UPDATE SET ledger_sku = EXCLUDED.ledger_sku, updated_at = now()
		RETURNING `+mappingColumns, uuid.New(), in.BrandID, in.PortalID, in.PortalSKU, in.LedgerSKU))
	if err != nil {
		return Mapping{}, mapWriteError(err)
	}
	return m, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (Mapping, error) {
	return scanMapping(r.db.QueryRow(ctx, `DELETE FROM sku_mappings WHERE id = $1 RETURNING `+mappingColumns, id))
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
