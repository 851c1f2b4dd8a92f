package skumap

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]Mapping
	txErr    error
	listErr  error
	listHits int
	onList   func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[uuid.UUID]Mapping)}
}

func (f *fakeRepo) seed(brandID, portalID string, pairs ...string) {
	for i := 0; i+1 < len(pairs); i += 2 {
		_, _ = f.Upsert(context.Background(), UpsertInput{BrandID: brandID, PortalID: portalID, PortalSKU: pairs[i], LedgerSKU: pairs[i+1]})
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	return fn(ctx, f)
}

func (f *fakeRepo) find(brandID, portalID, portalSKU string) (Mapping, bool) {
	for _, m := range f.byID {
		if m.BrandID == brandID && m.PortalID == portalID && m.PortalSKU == portalSKU {
			return m, true
		}
	}
	return Mapping{}, false
}

func (f *fakeRepo) sorted(match func(Mapping) bool) []Mapping {
	var out []Mapping
	for _, m := range f.byID {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].PortalSKU < out[j].PortalSKU
	})
	return out
}

func (f *fakeRepo) ListForPortal(_ context.Context, brandID, portalID string) ([]Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHits++
	if f.onList != nil {
		f.onList()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sorted(func(m Mapping) bool { return m.BrandID == brandID && m.PortalID == portalID }), nil
}

func (f *fakeRepo) Get(_ context.Context, id uuid.UUID) (Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return Mapping{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) Lookup(_ context.Context, brandID, portalID, portalSKU string) (Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.find(brandID, portalID, portalSKU)
	if !ok {
		return Mapping{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) List(_ context.Context, filter ListFilter) ([]Mapping, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sorted(func(m Mapping) bool {
		return (filter.BrandID == "" || m.BrandID == filter.BrandID) && (filter.PortalID == "" || m.PortalID == filter.PortalID)
	})
	return out, len(out), nil
}

func (f *fakeRepo) Insert(_ context.Context, in UpsertInput) (Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.find(in.BrandID, in.PortalID, in.PortalSKU); ok {
		return Mapping{}, ErrDuplicate
	}
	return f.insertLocked(in), nil
}

func (f *fakeRepo) insertLocked(in UpsertInput) Mapping {
	now := time.Unix(int64(len(f.byID)), 0).UTC()
	m := Mapping{ID: uuid.New(), BrandID: in.BrandID, PortalID: in.PortalID, PortalSKU: in.PortalSKU, LedgerSKU: in.LedgerSKU, CreatedAt: now, UpdatedAt: now}
	f.byID[m.ID] = m
	return m
}

func (f *fakeRepo) Upsert(_ context.Context, in UpsertInput) (Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.find(in.BrandID, in.PortalID, in.PortalSKU); ok {
		m.LedgerSKU = in.LedgerSKU
		f.byID[m.ID] = m
		return m, nil
	}
	return f.insertLocked(in), nil
}

func (f *fakeRepo) Delete(_ context.Context, id uuid.UUID) (Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return Mapping{}, ErrNotFound
	}
	delete(f.byID, id)
	return m, nil
}
