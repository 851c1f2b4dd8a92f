package skumap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Store loads every mapping of a brand/portal pair.
type Store interface {
	ListForPortal(ctx context.Context, brandID, portalID string) ([]Mapping, error)
}

// ResolverOptions tunes SKU matching.
type ResolverOptions struct {
	CaseInsensitive bool
	Logger          *slog.Logger
}

// Resolver answers portal to ledger SKU lookups from per-run snapshots.
type Resolver struct {
	store  Store
	cache  *SnapshotCache
	group  singleflight.Group
	fold   bool
	logger *slog.Logger
}

// NewResolver constructs a resolver. cache may be nil.
func NewResolver(store Store, cache *SnapshotCache, opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, cache: cache, fold: opts.CaseInsensitive, logger: logger}
}

// Snapshot loads the mapping table once for brand/portal. Concurrent callers
// share a single load, which outlives any one caller's cancellation.
func (r *Resolver) Snapshot(ctx context.Context, brandID, portalID string) (*Table, error) {
	if r.store == nil {
		return nil, errors.New("skumap: store not configured")
	}
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(flightKey(brandID, portalID), func() (interface{}, error) {
		return r.load(shared, brandID, portalID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Table), nil
	}
}

func (r *Resolver) load(ctx context.Context, brandID, portalID string) (*Table, error) {
	pairs, hit, err := r.cache.Get(ctx, brandID, portalID)
	if err != nil {
		r.logger.Warn("skumap snapshot cache read", slog.String("brand_id", brandID), slog.String("portal_id", portalID), slog.Any("error", err))
	}
	if hit {
		return NewTable(brandID, portalID, pairs, r.fold), nil
	}
	gen, genErr := r.cache.Generation(ctx, brandID, portalID)
	mappings, err := r.store.ListForPortal(ctx, brandID, portalID)
	if err != nil {
		return nil, fmt.Errorf("skumap: load mappings: %w", err)
	}
	table := TableFromMappings(brandID, portalID, mappings, r.fold)
	if genErr != nil {
		return table, nil
	}
	err = r.cache.Set(ctx, brandID, portalID, gen, table.Pairs())
	switch {
	case errors.Is(err, ErrStaleSnapshot):
		r.logger.Debug("skumap snapshot superseded", slog.String("brand_id", brandID), slog.String("portal_id", portalID))
	case err != nil:
		r.logger.Warn("skumap snapshot cache write", slog.String("brand_id", brandID), slog.String("portal_id", portalID), slog.Any("error", err))
	}
	return table, nil
}

// Resolve maps a single portal SKU, returning ErrNotMapped when absent.
func (r *Resolver) Resolve(ctx context.Context, brandID, portalID, portalSKU string) (string, error) {
	table, err := r.Snapshot(ctx, brandID, portalID)
	if err != nil {
		return "", err
	}
	ledger, ok := table.Lookup(portalSKU)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotMapped, portalSKU)
	}
	return ledger, nil
}

// ResolveBatch maps skus against one snapshot. Unmapped SKUs are reported in
// Resolution.Missing rather than as an error.
func (r *Resolver) ResolveBatch(ctx context.Context, brandID, portalID string, skus []string) (Resolution, error) {
	table, err := r.Snapshot(ctx, brandID, portalID)
	if err != nil {
		return Resolution{}, err
	}
	return table.Resolve(skus), nil
}

// Invalidate forgets the cached snapshot for brand/portal.
func (r *Resolver) Invalidate(ctx context.Context, brandID, portalID string) error {
	r.group.Forget(flightKey(brandID, portalID))
	return r.cache.Invalidate(ctx, brandID, portalID)
}

func flightKey(brandID, portalID string) string {
	return brandID + "\x00" + portalID
}
