package normalization

import (
	"math"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/lookup"
)

// ComputeVariables fills the derived-variable block of each panel row.
// rows[i] corresponds to periods[i]; run assignments must already be applied.
// Lags never cross a run boundary: a row opening a run has null lag-based
// variables. Nil shock or patent indexes leave the window controls null.
func ComputeVariables(periods []*domain.FirmPeriod, rows []*domain.PanelRow, shocks *lookup.ShockIndex, patents *lookup.PatentIndex) {
	for i, p := range periods {
		row := rows[i]
		f := &p.Fields

		// The within-run lag is the immediate predecessor in the same run.
		var lag *domain.AccountingFields
		if i > 0 && rows[i-1].RunID == row.RunID {
			lag = &periods[i-1].Fields
		}

		row.Leverage = ratioOfSum(f.DLCQ, f.DLTTQ, f.ATQ)
		row.Liquidity = ratio(f.CHEQ, f.ATQ)
		row.Size = logOf(f.ATQ)
		row.RDIntensity = rdIntensity(f.XRDQ, f.ATQ)

		if lag != nil {
			row.Investment = logDiff(f.PPENTQ, lag.PPENTQ)
			row.CashFlow = ratioOfSum(f.IBQ, f.DPQ, lag.ATQ)
			row.SalesGrowth = growth(f.SALEQ, lag.SALEQ)
		}

		// Event-window controls over the quarter (1-back endpoint, endpoint].
		if shocks != nil {
			count, sum := shocks.Window(row.QuarterEnd1Ms, row.QuarterEndMs)
			row.ShockCount = &count
			row.ShockSum = &sum
		}
		if patents != nil {
			count := patents.CountInWindow(p.GVKey, row.QuarterEnd1Ms, row.QuarterEndMs)
			row.PatentCount = &count
		}
	}
}

// ratioOfSum computes (a + b) / denom. Null if any input is null or the
// denominator is not strictly positive.
func ratioOfSum(a, b, denom *float64) *float64 {
	if a == nil || b == nil || denom == nil || *denom <= 0 {
		return nil
	}
	v := (*a + *b) / *denom
	return &v
}

// ratio computes num / denom. Null if either input is null or the denominator
// is not strictly positive.
func ratio(num, denom *float64) *float64 {
	if num == nil || denom == nil || *denom <= 0 {
		return nil
	}
	v := *num / *denom
	return &v
}

// logOf computes log(v). Null unless v is strictly positive.
func logOf(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	l := math.Log(*v)
	return &l
}

// logDiff computes log(cur) - log(prev). Null unless both are strictly positive.
func logDiff(cur, prev *float64) *float64 {
	if cur == nil || prev == nil || *cur <= 0 || *prev <= 0 {
		return nil
	}
	v := math.Log(*cur) - math.Log(*prev)
	return &v
}

// growth computes (cur - prev) / prev. Null if either input is null or the
// base is not strictly positive.
func growth(cur, prev *float64) *float64 {
	if cur == nil || prev == nil || *prev <= 0 {
		return nil
	}
	v := (*cur - *prev) / *prev
	return &v
}

// rdIntensity computes xrdq / atq, treating a null xrdq as zero. Null when
// atq is null or not strictly positive.
func rdIntensity(xrdq, atq *float64) *float64 {
	if atq == nil || *atq <= 0 {
		return nil
	}
	x := 0.0
	if xrdq != nil {
		x = *xrdq
	}
	v := x / *atq
	return &v
}
