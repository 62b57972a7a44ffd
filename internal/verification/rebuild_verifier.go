package verification

import (
	"context"
	"errors"
	"sort"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/normalization"
	"firm-panel-lab/internal/sample"
	"firm-panel-lab/internal/storage"
)

// ErrFirmNotFound is returned when a firm has no stored panel rows.
var ErrFirmNotFound = errors.New("firm not found in panel")

// PanelVerifier implements Verifier by rebuilding rows from the stored firm
// periods through the same alignment, segmentation and sample machinery.
type PanelVerifier struct {
	panelStore storage.PanelRowStore
	runner     *normalization.Runner

	winsorLow  float64
	winsorHigh float64
}

// PanelVerifierOptions contains configuration for creating a PanelVerifier.
type PanelVerifierOptions struct {
	PanelStore  storage.PanelRowStore
	PeriodStore storage.FirmPeriodStore
	ShockStore  storage.ShockEventStore
	PatentStore storage.PatentGrantStore

	// WinsorLow and WinsorHigh are the percentiles the stored panel was
	// winsorized with. Both zero defaults to 0.01 / 0.99.
	WinsorLow  float64
	WinsorHigh float64
}

// NewPanelVerifier creates a new PanelVerifier.
func NewPanelVerifier(opts PanelVerifierOptions) *PanelVerifier {
	low, high := opts.WinsorLow, opts.WinsorHigh
	if low == 0 && high == 0 {
		low, high = 0.01, 0.99
	}
	return &PanelVerifier{
		panelStore: opts.PanelStore,
		runner:     normalization.NewRunner(opts.PeriodStore, opts.ShockStore, opts.PatentStore, nil),
		winsorLow:  low,
		winsorHigh: high,
	}
}

// VerifyPanel runs the invariant battery over the stored panel.
func (v *PanelVerifier) VerifyPanel(ctx context.Context) (*PanelReport, error) {
	rows, err := v.panelStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	firms := make(map[string]bool)
	for _, row := range rows {
		firms[row.GVKey] = true
	}

	return &PanelReport{
		TotalRows:  len(rows),
		TotalFirms: len(firms),
		Violations: CheckPanel(rows),
	}, nil
}

// VerifyFirm rebuilds one firm's alignment and segmentation and compares the
// key, calendar and run attributes against the stored rows.
func (v *PanelVerifier) VerifyFirm(ctx context.Context, gvkey string) (*RowResult, error) {
	stored, err := v.panelStore.GetByGVKey(ctx, gvkey)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, ErrFirmNotFound
	}

	rebuilt, err := v.runner.NormalizeFirm(ctx, gvkey)
	if err != nil {
		return nil, err
	}

	result := &RowResult{GVKey: gvkey, Rows: len(stored)}
	if len(stored) != len(rebuilt) {
		result.Divergences = append(result.Divergences, RowDivergence{
			Fields: []FieldDivergence{
				{Field: "RowCount", Expected: len(stored), Actual: len(rebuilt)},
			},
		})
		return result, nil
	}

	for i := range stored {
		if fields := CompareAlignment(stored[i], rebuilt[i]); len(fields) > 0 {
			result.Divergences = append(result.Divergences, RowDivergence{
				PeriodID: stored[i].PeriodID,
				Fields:   fields,
			})
		}
	}

	result.Match = len(result.Divergences) == 0
	return result, nil
}

// VerifyAll rebuilds the entire panel, re-censors and re-winsorizes it, and
// compares every stored row field by field. Counts cover the stored rows;
// rebuilt rows with no stored counterpart are appended to Divergences.
func (v *PanelVerifier) VerifyAll(ctx context.Context) (*RebuildReport, error) {
	stored, err := v.panelStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	rebuilt, _, err := v.runner.NormalizeAll(ctx)
	if err != nil {
		return nil, err
	}
	sample.Censor(rebuilt)
	sample.Winsorize(rebuilt, "", v.winsorLow, v.winsorHigh, 0)

	byID := make(map[string]*domain.PanelRow, len(rebuilt))
	for _, row := range rebuilt {
		byID[row.PeriodID] = row
	}

	report := &RebuildReport{TotalRows: len(stored)}
	for _, s := range stored {
		r, ok := byID[s.PeriodID]
		if !ok {
			report.DivergentRows++
			report.Divergences = append(report.Divergences, RowDivergence{
				PeriodID: s.PeriodID,
				Fields: []FieldDivergence{
					{Field: "Error", Expected: s.PeriodID, Actual: "not reproduced by rebuild"},
				},
			})
			continue
		}
		delete(byID, s.PeriodID)

		if fields := ComparePanelRows(s, r); len(fields) > 0 {
			report.DivergentRows++
			report.Divergences = append(report.Divergences, RowDivergence{
				PeriodID: s.PeriodID,
				Fields:   fields,
			})
		} else {
			report.MatchedRows++
		}
	}

	extra := make([]string, 0, len(byID))
	for id := range byID {
		extra = append(extra, id)
	}
	sort.Strings(extra)
	for _, id := range extra {
		report.Divergences = append(report.Divergences, RowDivergence{
			PeriodID: id,
			Fields: []FieldDivergence{
				{Field: "Error", Expected: nil, Actual: "row absent from stored panel"},
			},
		})
	}

	return report, nil
}

var _ Verifier = (*PanelVerifier)(nil)
