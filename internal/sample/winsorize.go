package sample

import (
	"sort"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/observability"
)

// Winsorize clamps each analysis variable to its [pctLow, pctHigh] percentile
// bounds, computed cross-sectionally over the in-sample non-null observations.
// Rows censored out of the sample are neither counted nor clamped. Returns one
// stat per analysis variable, in report order, keyed to the pipeline run.
func Winsorize(rows []*domain.PanelRow, pipelineRunID string, pctLow, pctHigh float64, nowMs int64) []*domain.SampleStat {
	stats := make([]*domain.SampleStat, 0, len(domain.AnalysisVariables))

	for _, name := range domain.AnalysisVariables {
		var values []float64
		for _, row := range rows {
			if !row.InSample {
				continue
			}
			if v := row.Variable(name); v != nil {
				values = append(values, *v)
			}
		}

		stat := &domain.SampleStat{
			PipelineRunID: pipelineRunID,
			Variable:      name,
			PctLow:        pctLow,
			PctHigh:       pctHigh,
			Observations:  int64(len(values)),
			CreatedAt:     nowMs,
		}

		if len(values) > 0 {
			sort.Float64s(values)
			stat.LowerBound = Percentile(values, pctLow)
			stat.UpperBound = Percentile(values, pctHigh)
			clampVariable(rows, name, stat)
		}

		stats = append(stats, stat)
	}

	return stats
}

func clampVariable(rows []*domain.PanelRow, name string, stat *domain.SampleStat) {
	for _, row := range rows {
		if !row.InSample {
			continue
		}
		v := row.Variable(name)
		if v == nil {
			continue
		}
		switch {
		case *v < stat.LowerBound:
			clamped := stat.LowerBound
			row.SetVariable(name, &clamped)
			stat.ClampedLow++
			observability.RecordClampedValue(name, "low")
		case *v > stat.UpperBound:
			clamped := stat.UpperBound
			row.SetVariable(name, &clamped)
			stat.ClampedHigh++
			observability.RecordClampedValue(name, "high")
		}
	}
}
