// Package sample implements the censoring battery and cross-sectional
// winsorization that turn the enriched panel into the analysis sample.
package sample

import (
	"strconv"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/observability"
)

// Censor applies the exclusion predicates to every row, in order, recording
// the first failing predicate as the exclusion reason. Returns the rejection
// count per reason. Rows already out of sample are left untouched.
func Censor(rows []*domain.PanelRow) map[string]int64 {
	counts := make(map[string]int64)
	for _, row := range rows {
		if !row.InSample {
			continue
		}
		reason := ExcludeReasonFor(row)
		if reason == "" {
			continue
		}
		row.InSample = false
		row.ExcludeReason = reason
		counts[reason]++
		observability.RecordCensoredRow(reason)
	}
	return counts
}

// ExcludeReasonFor evaluates the predicates in their fixed order and returns
// the first failure, or "" for a row that stays in sample. The evaluation is
// pure; Censor uses it to mark rows, the verifier to re-check them.
func ExcludeReasonFor(row *domain.PanelRow) string {
	f := &row.Fields

	if f.ATQ == nil || *f.ATQ <= 0 {
		return domain.ExcludeATQNonpositive
	}

	if f.SALEQ == nil {
		return domain.ExcludeSALEQMissing
	}
	if *f.SALEQ < 0 {
		return domain.ExcludeSALEQNegative
	}

	// An empty or malformed industry code is unknown, not excluded.
	if sic, err := strconv.Atoi(row.SIC); err == nil {
		if sic >= 6000 && sic <= 6999 {
			return domain.ExcludeSICFinancial
		}
		if sic >= 4900 && sic <= 4999 {
			return domain.ExcludeSICUtility
		}
	}

	if row.Leverage == nil {
		return domain.ExcludeLeverageMissing
	}
	if *row.Leverage < 0 || *row.Leverage > 1 {
		return domain.ExcludeLeverageOutsideUnit
	}

	return ""
}
