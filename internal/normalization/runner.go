package normalization

import (
	"context"
	"errors"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/lookup"
)

// Stats summarizes a normalization pass over the panel.
type Stats struct {
	Firms         int // firms that produced rows
	Rows          int // panel rows emitted
	RejectedFirms int // firms skipped for non-increasing report dates
}

// NormalizeFirm builds the enriched panel rows for a single firm.
// Steps:
//  1. Load the firm's deduplicated periods in report-date order
//  2. Segment reporting runs
//  3. Align quarter endpoints against the calendar
//  4. Compute derived variables with within-run lags
func (r *Runner) NormalizeFirm(ctx context.Context, gvkey string) ([]*domain.PanelRow, error) {
	shocks, err := r.loadShockIndex(ctx)
	if err != nil {
		return nil, err
	}
	return r.normalizeFirm(ctx, gvkey, shocks)
}

// NormalizeAll processes every firm and returns the combined panel. A firm
// whose periods are not strictly increasing by report date is skipped and
// counted, not failed.
func (r *Runner) NormalizeAll(ctx context.Context) ([]*domain.PanelRow, *Stats, error) {
	stats := &Stats{}

	// The shock calendar is market-wide; load and index it once.
	shocks, err := r.loadShockIndex(ctx)
	if err != nil {
		return nil, nil, err
	}

	gvkeys, err := r.periodStore.ListGVKeys(ctx)
	if err != nil {
		return nil, nil, err
	}

	var all []*domain.PanelRow
	for _, gvkey := range gvkeys {
		rows, err := r.normalizeFirm(ctx, gvkey, shocks)
		if err != nil {
			if errors.Is(err, ErrNonIncreasingDates) {
				stats.RejectedFirms++
				r.logger.Printf("Skipping firm %s: %v", gvkey, err)
				continue
			}
			return nil, nil, err
		}
		if len(rows) == 0 {
			continue
		}
		stats.Firms++
		stats.Rows += len(rows)
		all = append(all, rows...)
	}

	return all, stats, nil
}

func (r *Runner) normalizeFirm(ctx context.Context, gvkey string, shocks *lookup.ShockIndex) ([]*domain.PanelRow, error) {
	// 1. Load periods; the store returns them ordered by report date ASC
	periods, err := r.periodStore.GetByGVKey(ctx, gvkey)
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		return nil, nil
	}

	// 2. Segment runs; rejects the whole firm on a non-increasing date
	runs, err := SegmentRuns(periods)
	if err != nil {
		return nil, err
	}

	// 3. Patent grants are firm-specific; index them for window counting
	var patents *lookup.PatentIndex
	if r.patentStore != nil {
		grants, err := r.patentStore.GetByGVKey(ctx, gvkey)
		if err != nil {
			return nil, err
		}
		patents = lookup.NewPatentIndex(grants)
	}

	// 4. One row per period with calendar and run attributes
	rows := make([]*domain.PanelRow, len(periods))
	for i, p := range periods {
		a := AlignAt(periods, i)
		rows[i] = &domain.PanelRow{
			PeriodID:            p.PeriodID,
			GVKey:               p.GVKey,
			ReportDate:          p.ReportDate,
			FiscalYear:          p.FiscalYear,
			FiscalQuarter:       p.FiscalQuarter,
			ReportedQuarter:     p.ReportedQuarter,
			SIC:                 p.SIC,
			Fields:              p.Fields,
			CalendarQuarter:     a.CalendarQuarter,
			CalendarAligned:     a.CalendarAligned,
			ExpectedQuarterDays: a.ExpectedQuarterDays,
			QuarterEndMs:        a.QuarterEndMs,
			QuarterEnd1Ms:       a.QuarterEnd1Ms,
			QuarterEnd2Ms:       a.QuarterEnd2Ms,
			Lag1Genuine:         a.Lag1Genuine,
			Lag2Genuine:         a.Lag2Genuine,
			LagUnavailable:      a.LagUnavailable,
			RunID:               runs[i].RunID,
			RunSeq:              runs[i].RunSeq,
			GapDays:             runs[i].GapDays,
			InSample:            true,
			CreatedAt:           r.nowMs(),
		}
	}

	// 5. Derived variables; lags never cross a run boundary
	ComputeVariables(periods, rows, shocks, patents)

	return rows, nil
}

func (r *Runner) loadShockIndex(ctx context.Context) (*lookup.ShockIndex, error) {
	if r.shockStore == nil {
		return nil, nil
	}
	events, err := r.shockStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return lookup.NewShockIndex(events), nil
}
