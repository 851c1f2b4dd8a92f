package mis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu      sync.Mutex
	formats map[uuid.UUID]Format
}

func newFakeRepo() *fakeRepo { return &fakeRepo{formats: make(map[uuid.UUID]Format)} }

func (f *fakeRepo) CreateFormat(_ context.Context, in CreateFormatInput) (Format, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.formats {
		if existing.BrandID == in.BrandID && existing.Name == in.Name {
			return Format{}, ErrFormatExists
		}
	}
	out := Format{ID: uuid.New(), BrandID: in.BrandID, Name: in.Name, Rules: in.Rules, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.formats[out.ID] = out
	return out, nil
}

func (f *fakeRepo) GetFormat(_ context.Context, id uuid.UUID) (Format, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.formats[id]
	if !ok {
		return Format{}, ErrFormatNotFound
	}
	return out, nil
}

func (f *fakeRepo) ListFormats(_ context.Context, brandID string) ([]Format, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Format
	for _, v := range f.formats {
		if brandID == "" || v.BrandID == brandID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteFormat(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.formats[id]; !ok {
		return ErrFormatNotFound
	}
	delete(f.formats, id)
	return nil
}

type recorder struct {
	generated int
	failures  map[string]int
}

func (r *recorder) MISGenerated(string, int, int) { r.generated++ }

func (r *recorder) MISRuleFailed(kind string) {
	if r.failures == nil {
		r.failures = make(map[string]int)
	}
	r.failures[kind]++
}

func TestCreateFormatValidatesFormulas(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, ServiceOptions{})
	ctx := context.Background()

	_, err := svc.CreateFormat(ctx, CreateFormatInput{BrandID: "b1", Name: "P&L", Rules: []FormatRule{{Name: "GP", Formula: "Sales -"}}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateFormat(ctx, CreateFormatInput{BrandID: "b1", Name: "P&L"})
	assert.ErrorIs(t, err, ErrValidation)

	f, err := svc.CreateFormat(ctx, CreateFormatInput{BrandID: " b1 ", Name: "P&L", Rules: []FormatRule{{Name: "GP", Formula: "Sales - Cost of Goods"}}})
	require.NoError(t, err)
	assert.Equal(t, "b1", f.BrandID)

	_, err = svc.CreateFormat(ctx, CreateFormatInput{BrandID: "b1", Name: "P&L", Rules: []FormatRule{{Name: "GP", Formula: "1"}}})
	assert.ErrorIs(t, err, ErrFormatExists)
}

func TestGenerateFromStoredFormat(t *testing.T) {
	rec := &recorder{}
	svc := NewService(newFakeRepo(), nil, ServiceOptions{Recorder: rec})
	ctx := context.Background()
	f, err := svc.CreateFormat(ctx, CreateFormatInput{BrandID: "b1", Name: "Monthly", Rules: []FormatRule{
		{Name: "GP", Formula: "Sales - Cost of Goods"},
	}})
	require.NoError(t, err)

	res, err := svc.Generate(ctx, GenerateRequest{BrandID: "b1", FormatID: &f.ID, TrialBalance: sampleTB()})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Workbook)
	assert.Equal(t, "mis_b1_Monthly.xlsx", res.Filename)
	assert.True(t, d("400").Equal(res.Report.Rows[0].Values["Apr-24"]))
	assert.Equal(t, 1, rec.generated)

	_, err = svc.Generate(ctx, GenerateRequest{BrandID: "other", FormatID: &f.ID, TrialBalance: sampleTB()})
	assert.ErrorIs(t, err, ErrFormatNotFound)
}

func TestGenerateInlineRulesPolicy(t *testing.T) {
	rec := &recorder{}
	svc := NewService(nil, nil, ServiceOptions{Recorder: rec})
	ctx := context.Background()
	rules := []FormatRule{{Name: "X", Formula: "Unknown + 1"}, {Name: "Y", Formula: "A"}}

	_, err := svc.Generate(ctx, GenerateRequest{Rules: rules, TrialBalance: sampleTB()})
	var unknown *UnknownOperandError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, 1, rec.failures["unknown_operand"])

	res, err := svc.Generate(ctx, GenerateRequest{Rules: rules, TrialBalance: sampleTB(), Policy: SkipInvalid})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Invalid())

	_, err = svc.Generate(ctx, GenerateRequest{TrialBalance: sampleTB()})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Generate(ctx, GenerateRequest{Rules: rules})
	assert.ErrorIs(t, err, ErrValidation)
}
