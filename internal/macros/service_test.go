package macros

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap"
	"github.com/Jayes-h/fintech-process-automation-sub001/jobs"
)

type fakeRepo struct {
	mu    sync.Mutex
	files map[uuid.UUID]FileRecord
}

func newFakeRepo() *fakeRepo { return &fakeRepo{files: make(map[uuid.UUID]FileRecord)} }

func (f *fakeRepo) Insert(_ context.Context, rec FileRecord) (FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	f.files[rec.ID] = rec
	return rec, nil
}

func (f *fakeRepo) Get(_ context.Context, id uuid.UUID) (FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.files[id]
	if !ok {
		return FileRecord{}, ErrFileNotFound
	}
	return rec, nil
}

func (f *fakeRepo) List(_ context.Context, filter ListFilter) ([]FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FileRecord
	for _, rec := range f.files {
		if filter.BrandID != "" && rec.BrandID != filter.BrandID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeRepo) FindCompleted(_ context.Context, brandID, portalID string, kind portal.Kind, hash string) (FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.files {
		if rec.BrandID == brandID && rec.PortalID == portalID && rec.Portal == kind && rec.ContentHash == hash && rec.Status == StatusCompleted {
			return rec, nil
		}
	}
	return FileRecord{}, ErrFileNotFound
}

func (f *fakeRepo) update(id uuid.UUID, fn func(*FileRecord) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.files[id]
	if !ok {
		return ErrFileNotFound
	}
	if err := fn(&rec); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()
	f.files[id] = rec
	return nil
}

func (f *fakeRepo) MarkProcessing(_ context.Context, id uuid.UUID, staleBefore time.Time) error {
	return f.update(id, func(rec *FileRecord) error {
		switch rec.Status {
		case StatusPending, StatusFailed, StatusMissingSKUs:
		case StatusProcessing:
			if !rec.UpdatedAt.Before(staleBefore) {
				return ErrInvalidStatus
			}
		default:
			return ErrInvalidStatus
		}
		rec.Status = StatusProcessing
		rec.Error = ""
		return nil
	})
}

func (f *fakeRepo) MarkCompleted(_ context.Context, id uuid.UUID, key string, counts Counts, at time.Time) error {
	return f.update(id, func(rec *FileRecord) error {
		rec.Status = StatusCompleted
		rec.ArtifactKey = key
		rec.Counts = counts
		rec.MissingSKUs = nil
		rec.CompletedAt = &at
		return nil
	})
}

func (f *fakeRepo) MarkMissingSKUs(_ context.Context, id uuid.UUID, counts Counts, skus []string) error {
	return f.update(id, func(rec *FileRecord) error {
		rec.Status = StatusMissingSKUs
		rec.Counts = counts
		rec.MissingSKUs = skus
		return nil
	})
}

func (f *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, msg string, counts Counts) error {
	return f.update(id, func(rec *FileRecord) error {
		rec.Status = StatusFailed
		rec.Error = msg
		rec.Counts = counts
		return nil
	})
}

type fakeEnqueuer struct {
	ids []uuid.UUID
	err error
}

func (e *fakeEnqueuer) EnqueueMacrosGenerate(_ context.Context, id uuid.UUID) error {
	if e.err != nil {
		return e.err
	}
	e.ids = append(e.ids, id)
	return nil
}

type recorder struct {
	outcomes []string
	dropped  int
}

func (r *recorder) MacrosProcessed(kind, outcome string) { r.outcomes = append(r.outcomes, kind+":"+outcome) }
func (r *recorder) MacrosRows(_ string, _, dropped int) { r.dropped += dropped }

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	queue    *fakeEnqueuer
	recorder *recorder
	resolver *tableResolver
}

func newFixture(t *testing.T, pairs ...skumap.Pair) fixture {
	t.Helper()
	fx := fixture{
		repo:     newFakeRepo(),
		queue:    &fakeEnqueuer{},
		recorder: &recorder{},
		resolver: newResolver(pairs...),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fx.svc = NewService(newPipeline(t, fx.resolver), fx.repo, logger, ServiceOptions{
		Storage:  NewDirStorage(t.TempDir()),
		Enqueuer: fx.queue,
		Recorder: fx.recorder,
	})
	return fx
}

var allMapped = []skumap.Pair{
	{PortalSKU: "AMZ-RED", LedgerSKU: "Red Shirt"},
	{PortalSKU: "AMZ-BLUE", LedgerSKU: "Blue Shirt"},
}

func TestSubmitProcessDownload(t *testing.T) {
	fx := newFixture(t, allMapped...)
	ctx := context.Background()

	rec, err := fx.svc.Submit(ctx, amazonRequest(amazonCSV))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, ContentHash([]byte(amazonCSV)), rec.ContentHash)
	require.Equal(t, []uuid.UUID{rec.ID}, fx.queue.ids)

	_, _, err = fx.svc.Download(ctx, rec.ID)
	assert.True(t, errors.Is(err, ErrNoArtifact))

	done, err := fx.svc.Process(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 2, done.Counts.PivotRows)
	require.NotNil(t, done.CompletedAt)

	got, data, err := fx.svc.Download(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, []byte("PK"), data[:2])

	again, err := fx.svc.Submit(ctx, amazonRequest(amazonCSV))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Len(t, fx.queue.ids, 1)

	assert.Equal(t, []string{"amazon_b2c:completed"}, fx.recorder.outcomes)
	assert.Equal(t, 1, fx.recorder.dropped)
}

func TestProcessRecordsMissingSKUs(t *testing.T) {
	fx := newFixture(t, skumap.Pair{PortalSKU: "AMZ-BLUE", LedgerSKU: "Blue Shirt"})
	ctx := context.Background()

	rec, err := fx.svc.Submit(ctx, amazonRequest(amazonCSV))
	require.NoError(t, err)

	_, err = fx.svc.Process(ctx, rec.ID)
	var missing *skumap.MissingSKUError
	require.True(t, errors.As(err, &missing))

	stored, err := fx.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMissingSKUs, stored.Status)
	assert.Equal(t, []string{"AMZ-RED"}, stored.MissingSKUs)
	assert.Equal(t, 1, stored.Counts.MissingSKUs)
	assert.Empty(t, stored.ArtifactKey)

	_, _, err = fx.svc.Download(ctx, rec.ID)
	assert.True(t, errors.Is(err, ErrNoArtifact))
	assert.Equal(t, []string{"amazon_b2c:missing_skus"}, fx.recorder.outcomes)
}

func TestGenerateKeepsRecord(t *testing.T) {
	fx := newFixture(t, allMapped...)
	out, rec, err := fx.svc.Generate(context.Background(), amazonRequest(amazonCSV))
	require.NoError(t, err)
	assert.NotEmpty(t, out.Workbook)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Empty(t, fx.queue.ids)

	items, err := fx.svc.List(context.Background(), ListFilter{BrandID: "b1"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestGenerateWithoutRepository(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(newPipeline(t, newResolver(allMapped...)), nil, logger, ServiceOptions{})
	out, rec, err := svc.Generate(context.Background(), amazonRequest(amazonCSV))
	require.NoError(t, err)
	assert.NotEmpty(t, out.Workbook)
	assert.Equal(t, uuid.Nil, rec.ID)

	_, err = svc.Submit(context.Background(), amazonRequest(amazonCSV))
	assert.Error(t, err)
}

func TestSubmitMarksFailedWhenQueueUnavailable(t *testing.T) {
	fx := newFixture(t, allMapped...)
	fx.queue.err = errors.New("redis down")
	_, err := fx.svc.Submit(context.Background(), amazonRequest(amazonCSV))
	require.Error(t, err)

	items, err := fx.svc.List(context.Background(), ListFilter{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Error, "redis down")
}

func TestJobSkipsRetryForBadInput(t *testing.T) {
	fx := newFixture(t, skumap.Pair{PortalSKU: "AMZ-BLUE", LedgerSKU: "Blue Shirt"})
	job := NewJob(fx.svc, nil, nil)
	ctx := context.Background()

	err := job.Handle(ctx, asynq.NewTask(jobs.TaskMacrosGenerate, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	rec, err := fx.svc.Submit(ctx, amazonRequest(amazonCSV))
	require.NoError(t, err)
	task, err := jobs.NewMacrosGenerateTask(rec.ID)
	require.NoError(t, err)
	err = job.Handle(ctx, task)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.True(t, errors.Is(err, skumap.ErrNotMapped))

	fx.resolver.table = skumap.NewTable("b1", "p1", allMapped, false)
	require.NoError(t, job.Handle(ctx, task))
	stored, err := fx.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
}

func TestRetryAfterMappingFix(t *testing.T) {
	fx := newFixture(t, skumap.Pair{PortalSKU: "AMZ-BLUE", LedgerSKU: "Blue Shirt"})
	ctx := context.Background()

	rec, err := fx.svc.Submit(ctx, amazonRequest(amazonCSV))
	require.NoError(t, err)

	_, err = fx.svc.Retry(ctx, rec.ID)
	assert.True(t, errors.Is(err, ErrInvalidStatus), "pending records are not retried")

	_, err = fx.svc.Process(ctx, rec.ID)
	require.Error(t, err)

	fx.resolver.table = skumap.NewTable("b1", "p1", allMapped, false)
	done, err := fx.svc.Retry(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Empty(t, done.MissingSKUs)

	_, err = fx.svc.Retry(ctx, rec.ID)
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}

// flakyRepo fails the first MarkCompleted call, leaving the record claimed.
type flakyRepo struct {
	*fakeRepo
	failed bool
}

func (f *flakyRepo) MarkCompleted(ctx context.Context, id uuid.UUID, key string, counts Counts, at time.Time) error {
	if !f.failed {
		f.failed = true
		return errors.New("conn reset")
	}
	return f.fakeRepo.MarkCompleted(ctx, id, key, counts, at)
}

func TestAbandonedProcessingIsReclaimed(t *testing.T) {
	repo := &flakyRepo{fakeRepo: newFakeRepo()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(newPipeline(t, newResolver(allMapped...)), repo, logger, ServiceOptions{
		Storage:    NewDirStorage(t.TempDir()),
		Enqueuer:   &fakeEnqueuer{},
		StaleAfter: time.Minute,
	})
	job := NewJob(svc, nil, nil)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, amazonRequest(amazonCSV))
	require.NoError(t, err)
	task, err := jobs.NewMacrosGenerateTask(rec.ID)
	require.NoError(t, err)

	err = job.Handle(ctx, task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	err = job.Handle(ctx, task)
	assert.True(t, errors.Is(err, ErrInProgress))
	assert.False(t, errors.Is(err, asynq.SkipRetry), "a held record is retried later")

	_, err = svc.Retry(ctx, rec.ID)
	assert.True(t, errors.Is(err, ErrInProgress))

	stored, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, stored.Status)
	assert.False(t, svc.Stale(stored))

	svc.WithNow(func() time.Time { return time.Now().Add(2 * time.Minute) })
	assert.True(t, svc.Stale(stored))
	done, err := svc.Retry(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	require.NoError(t, job.Handle(ctx, task))
}

func TestDirStorageRejectsEscapingKeys(t *testing.T) {
	s := NewDirStorage(t.TempDir())
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "sources/a.csv", []byte("x")))
	data, err := s.Get(ctx, "sources/a.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	assert.Error(t, s.Put(ctx, "../escape", []byte("x")))
	_, err = s.Get(ctx, "sources/none.csv")
	assert.True(t, errors.Is(err, ErrNoArtifact))
}
