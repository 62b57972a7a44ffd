package domain

import "time"

// PanelRow is one firm-quarter of the enriched analysis panel: the canonical
// record plus calendar alignment, run segmentation, derived variables and the
// sample-filter outcome. Corresponds to panel_rows table in ClickHouse.
type PanelRow struct {
	PeriodID        string
	GVKey           string
	ReportDate      time.Time
	FiscalYear      int
	FiscalQuarter   int
	ReportedQuarter string
	SIC             string
	Fields          AccountingFields // resolved accounting items, carried through

	// Calendar alignment
	CalendarQuarter     string // label computed from the report date, e.g. "1998Q4c"
	CalendarAligned     bool   // coarse computed label equals the reported label
	ExpectedQuarterDays int    // expected length of the quarter ending at ReportDate
	QuarterEndMs        int64  // end instant of the current quarter (ms)
	QuarterEnd1Ms       int64  // end instant one quarter back
	QuarterEnd2Ms       int64  // end instant two quarters back
	Lag1Genuine         bool   // 1-back endpoint taken from a real prior record
	Lag2Genuine         bool   // 2-back endpoint taken from a real prior record
	LagUnavailable      bool   // no same-firm record 89-92 days before this one

	// Run segmentation
	RunID   int    // run identifier, dense per firm starting at 1
	RunSeq  int    // 1-based position within the run
	GapDays *int64 // days since the firm's previous record, nil for the first

	// Derived variables. Nil when an input is missing, a denominator is
	// invalid, or the required lag crosses a run boundary.
	Leverage    *float64 // (dlcq + dlttq) / atq
	Liquidity   *float64 // cheq / atq
	Investment  *float64 // log(ppentq) - log(lag ppentq), within run
	CashFlow    *float64 // (ibq + dpq) / lag atq, within run
	SalesGrowth *float64 // (saleq - lag saleq) / lag saleq, within run
	Size        *float64 // log(atq)
	RDIntensity *float64 // xrdq / atq, missing xrdq treated as zero
	PatentCount *int64   // patent grants in (1-back endpoint, current endpoint]
	ShockCount  *int64   // shock announcements in the same window
	ShockSum    *float64 // summed policy surprises in the same window

	// Sample filter
	InSample      bool
	ExcludeReason string // first failing censoring predicate, empty when in sample
	CreatedAt     int64
}

// Censoring exclusion reasons, stored on PanelRow.ExcludeReason.
const (
	ExcludeATQNonpositive      = "atq_missing_or_nonpositive"
	ExcludeSALEQMissing        = "saleq_missing"
	ExcludeSALEQNegative       = "saleq_negative"
	ExcludeSICFinancial        = "sic_financial"
	ExcludeSICUtility          = "sic_utility"
	ExcludeLeverageMissing     = "leverage_missing"
	ExcludeLeverageOutsideUnit = "leverage_outside_unit"
)

// Analysis variable names used by winsorization stats and reports.
const (
	VarLeverage    = "leverage"
	VarLiquidity   = "liquidity"
	VarInvestment  = "investment"
	VarCashFlow    = "cash_flow"
	VarSalesGrowth = "sales_growth"
	VarSize        = "size"
	VarRDIntensity = "rd_intensity"
)

// AnalysisVariables lists the winsorized variables in report order.
var AnalysisVariables = []string{
	VarLeverage, VarLiquidity, VarInvestment, VarCashFlow,
	VarSalesGrowth, VarSize, VarRDIntensity,
}

// Variable returns the derived-variable pointer by name, nil for unknown names.
func (r *PanelRow) Variable(name string) *float64 {
	switch name {
	case VarLeverage:
		return r.Leverage
	case VarLiquidity:
		return r.Liquidity
	case VarInvestment:
		return r.Investment
	case VarCashFlow:
		return r.CashFlow
	case VarSalesGrowth:
		return r.SalesGrowth
	case VarSize:
		return r.Size
	case VarRDIntensity:
		return r.RDIntensity
	}
	return nil
}

// SetVariable assigns the derived-variable pointer by name.
func (r *PanelRow) SetVariable(name string, v *float64) {
	switch name {
	case VarLeverage:
		r.Leverage = v
	case VarLiquidity:
		r.Liquidity = v
	case VarInvestment:
		r.Investment = v
	case VarCashFlow:
		r.CashFlow = v
	case VarSalesGrowth:
		r.SalesGrowth = v
	case VarSize:
		r.Size = v
	case VarRDIntensity:
		r.RDIntensity = v
	}
}
