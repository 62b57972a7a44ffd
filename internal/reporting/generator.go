package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	panelStore     storage.PanelRowStore
	runStore       storage.PipelineRunStore
	attritionStore storage.AttritionStore
	statStore      storage.SampleStatStore
	now            func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	panelStore storage.PanelRowStore,
	runStore storage.PipelineRunStore,
	attritionStore storage.AttritionStore,
	statStore storage.SampleStatStore,
) *Generator {
	return &Generator{
		panelStore:     panelStore,
		runStore:       runStore,
		attritionStore: attritionStore,
		statStore:      statStore,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete panel report. Attrition and winsorization
// sections come from the most recently started pipeline run; a panel with
// no recorded run still reports its summary.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	rows, err := g.panelStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt:  g.now(),
		PanelSummary: generatePanelSummary(rows),
		RunLengths:   generateRunLengths(rows),
	}

	run, err := g.runStore.GetLatest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return report, nil
	}
	if err != nil {
		return nil, err
	}
	report.PipelineRunID = run.RunID

	attrition, err := g.attritionStore.GetByPipelineRun(ctx, run.RunID)
	if err != nil {
		return nil, err
	}
	report.Attrition = generateAttrition(attrition)

	stats, err := g.statStore.GetByPipelineRun(ctx, run.RunID)
	if err != nil {
		return nil, err
	}
	report.WinsorBounds = generateWinsorBounds(stats)

	return report, nil
}

// generatePanelSummary computes the panel summary from all rows.
func generatePanelSummary(rows []*domain.PanelRow) PanelSummary {
	summary := PanelSummary{PanelRows: len(rows)}
	if len(rows) == 0 {
		return summary
	}

	firms := make(map[string]struct{})
	runSizes := runLengthsByRun(rows)

	summary.DateRangeStart = rows[0].QuarterEndMs
	summary.DateRangeEnd = rows[0].QuarterEndMs

	for _, row := range rows {
		firms[row.GVKey] = struct{}{}
		if row.InSample {
			summary.InSampleRows++
		}
		if row.CalendarAligned {
			summary.AlignedRows++
		}
		if row.QuarterEndMs < summary.DateRangeStart {
			summary.DateRangeStart = row.QuarterEndMs
		}
		if row.QuarterEndMs > summary.DateRangeEnd {
			summary.DateRangeEnd = row.QuarterEndMs
		}
	}

	summary.Firms = len(firms)
	summary.CensoredRows = summary.PanelRows - summary.InSampleRows
	summary.AlignedShare = float64(summary.AlignedRows) / float64(summary.PanelRows)

	summary.Runs = len(runSizes)
	for _, size := range runSizes {
		if size > summary.MaxRunLength {
			summary.MaxRunLength = size
		}
		if size == 1 {
			summary.SingletonRuns++
		}
	}
	if summary.Runs > 0 {
		summary.MeanRunLength = float64(summary.PanelRows) / float64(summary.Runs)
	}

	return summary
}

// generateRunLengths buckets runs by length, sorted by length ASC.
func generateRunLengths(rows []*domain.PanelRow) []RunLengthRow {
	counts := make(map[int]int)
	for _, size := range runLengthsByRun(rows) {
		counts[size]++
	}

	out := make([]RunLengthRow, 0, len(counts))
	for length, count := range counts {
		out = append(out, RunLengthRow{Length: length, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Length < out[j].Length
	})
	return out
}

// runLengthsByRun counts rows per (gvkey, run id).
func runLengthsByRun(rows []*domain.PanelRow) map[runKey]int {
	sizes := make(map[runKey]int)
	for _, row := range rows {
		sizes[runKey{GVKey: row.GVKey, RunID: row.RunID}]++
	}
	return sizes
}

type runKey struct {
	GVKey string
	RunID int
}

// generateAttrition converts stored attrition rows, sorted by (stage, reason).
func generateAttrition(rows []*domain.StageAttrition) []AttritionRow {
	out := make([]AttritionRow, len(rows))
	for i, row := range rows {
		out[i] = AttritionRow{
			Stage:  row.Stage,
			Reason: row.Reason,
			Count:  row.Count,
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// generateWinsorBounds converts stored sample stats, sorted by variable.
func generateWinsorBounds(stats []*domain.SampleStat) []WinsorBoundRow {
	out := make([]WinsorBoundRow, len(stats))
	for i, s := range stats {
		out[i] = WinsorBoundRow{
			Variable:     s.Variable,
			PctLow:       s.PctLow,
			PctHigh:      s.PctHigh,
			LowerBound:   s.LowerBound,
			UpperBound:   s.UpperBound,
			ClampedLow:   s.ClampedLow,
			ClampedHigh:  s.ClampedHigh,
			Observations: s.Observations,
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Variable < out[j].Variable
	})
	return out
}
