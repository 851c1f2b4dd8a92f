package macros

import (
	"context"
	"fmt"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/pivot"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/report"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap"
)

// Resolver maps portal SKUs to ledger SKUs against one mapping snapshot.
type Resolver interface {
	ResolveBatch(ctx context.Context, brandID, portalID string, skus []string) (skumap.Resolution, error)
}

// Output is the result of a successful run.
type Output struct {
	Workbook []byte
	Filename string
	Counts   Counts
	Batch    portal.Batch
	Rows     []pivot.Row
}

// Pipeline is the synchronous core shared by the HTTP handler and the worker.
type Pipeline struct {
	registry *portal.Registry
	resolver Resolver
}

// NewPipeline constructs a Pipeline.
func NewPipeline(registry *portal.Registry, resolver Resolver) *Pipeline {
	return &Pipeline{registry: registry, resolver: resolver}
}

// Run reconciles one export. When any SKU is unmapped it returns a
// *skumap.MissingSKUError together with the counts gathered so far and builds
// no pivot output.
func (p *Pipeline) Run(ctx context.Context, req GenerateRequest) (Output, error) {
	if err := req.Validate(); err != nil {
		return Output{}, err
	}
	table, err := sheet.ReadFormat(req.Data, sheet.FormatFromName(req.SourceName))
	if err != nil {
		return Output{}, err
	}
	normalizer, err := p.registry.Normalizer(req.Portal, portal.Options{HomeState: req.HomeState})
	if err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	batch, err := normalizer.NormalizeTable(table)
	if err != nil {
		return Output{}, err
	}
	counts := Counts{
		Rows:        batch.Total,
		Normalized:  len(batch.Records),
		Dropped:     len(batch.Dropped),
		DropReasons: batch.Reasons,
	}

	res, err := p.resolver.ResolveBatch(ctx, req.BrandID, req.PortalID, batch.SKUs())
	if err != nil {
		return Output{Counts: counts, Batch: batch}, fmt.Errorf("macros: resolve skus: %w", err)
	}
	if len(res.Missing) > 0 {
		counts.MissingSKUs = len(res.Missing)
		return Output{Counts: counts, Batch: batch}, &skumap.MissingSKUError{
			BrandID:  req.BrandID,
			PortalID: req.PortalID,
			SKUs:     res.Missing,
		}
	}

	lines := make([]pivot.Line, 0, len(batch.Records))
	for _, rec := range batch.Records {
		lines = append(lines, pivot.Line{LedgerSKU: res.Resolved[rec.PortalSKU], Record: rec})
	}
	rows := pivot.Aggregate(lines)
	counts.PivotRows = len(rows)

	cfg, _ := p.registry.Config(req.Portal)
	workbook, err := report.Assemble(
		summarySheet(req, counts, pivot.Totals(rows)),
		pivot.PivotSheet("Pivot", rows, cfg.GroupByInvoice),
		pivot.SKUSummarySheet("SKU Summary", pivot.SKUSummary(rows)),
		pivot.StateSummarySheet("State Summary", pivot.StateSummary(rows)),
		droppedSheet(batch),
	)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Workbook: workbook,
		Filename: report.Filename("macros", string(req.Portal), req.Period),
		Counts:   counts,
		Batch:    batch,
		Rows:     rows,
	}, nil
}

func summarySheet(req GenerateRequest, counts Counts, totals pivot.Amounts) sheet.Sheet {
	fields := []report.Field{
		{Label: "Brand", Value: req.BrandID},
		{Label: "Portal", Value: string(req.Portal)},
		{Label: "Period", Value: req.Period},
		{Label: "Source File", Value: req.SourceName},
		{Label: "Rows Read", Value: counts.Rows},
		{Label: "Rows Normalized", Value: counts.Normalized},
		{Label: "Dropped Rows", Value: counts.Dropped},
	}
	for _, reason := range []portal.DropReason{portal.DropMissingSKU, portal.DropBadQuantity, portal.DropBadAmount, portal.DropSkippedType} {
		if n := counts.DropReasons[reason]; n > 0 {
			fields = append(fields, report.Field{Label: "Dropped: " + string(reason), Value: n})
		}
	}
	fields = append(fields,
		report.Field{Label: "Pivot Rows", Value: counts.PivotRows},
		report.Field{Label: "Total Quantity", Value: totals.Quantity},
		report.Field{Label: "Total Base Amount", Value: totals.BaseAmount},
		report.Field{Label: "Total Tax", Value: totals.TotalTax()},
		report.Field{Label: "Total Invoice Amount", Value: totals.InvoiceAmount},
	)
	return report.SummarySheet("Summary", fields...)
}

func droppedSheet(batch portal.Batch) sheet.Sheet {
	out := sheet.Sheet{Name: "Dropped Rows", Columns: []string{"Row", "Reason"}, Rows: make([]sheet.Row, 0, len(batch.Dropped))}
	for _, d := range batch.Dropped {
		out.Rows = append(out.Rows, sheet.NewRow("Row", d.Row, "Reason", string(d.Reason)))
	}
	return out
}
