package reporting

import (
	"github.com/gocarina/gocsv"

	"firm-panel-lab/internal/domain"
)

// panelRowCSV flattens a PanelRow for export. Pointer fields render as
// empty cells when nil.
type panelRowCSV struct {
	PeriodID        string   `csv:"period_id"`
	GVKey           string   `csv:"gvkey"`
	ReportDate      string   `csv:"report_date"`
	FiscalYear      int      `csv:"fiscal_year"`
	FiscalQuarter   int      `csv:"fiscal_quarter"`
	ReportedQuarter string   `csv:"reported_quarter"`
	CalendarQuarter string   `csv:"calendar_quarter"`
	CalendarAligned bool     `csv:"calendar_aligned"`
	SIC             string   `csv:"sic"`
	RunID           int      `csv:"run_id"`
	RunSeq          int      `csv:"run_seq"`
	GapDays         *int64   `csv:"gap_days"`
	QuarterEndMs    int64    `csv:"quarter_end_ms"`
	Lag1Genuine     bool     `csv:"lag1_genuine"`
	Lag2Genuine     bool     `csv:"lag2_genuine"`
	LagUnavailable  bool     `csv:"lag_unavailable"`
	Leverage        *float64 `csv:"leverage"`
	Liquidity       *float64 `csv:"liquidity"`
	Investment      *float64 `csv:"investment"`
	CashFlow        *float64 `csv:"cash_flow"`
	SalesGrowth     *float64 `csv:"sales_growth"`
	Size            *float64 `csv:"size"`
	RDIntensity     *float64 `csv:"rd_intensity"`
	PatentCount     *int64   `csv:"patent_count"`
	ShockCount      *int64   `csv:"shock_count"`
	ShockSum        *float64 `csv:"shock_sum"`
	InSample        bool     `csv:"in_sample"`
	ExcludeReason   string   `csv:"exclude_reason"`
}

// RenderPanelRowsCSV renders the panel as CSV.
func RenderPanelRowsCSV(rows []*domain.PanelRow) (string, error) {
	out := make([]*panelRowCSV, 0, len(rows))
	for _, row := range rows {
		out = append(out, &panelRowCSV{
			PeriodID:        row.PeriodID,
			GVKey:           row.GVKey,
			ReportDate:      row.ReportDate.Format("2006-01-02"),
			FiscalYear:      row.FiscalYear,
			FiscalQuarter:   row.FiscalQuarter,
			ReportedQuarter: row.ReportedQuarter,
			CalendarQuarter: row.CalendarQuarter,
			CalendarAligned: row.CalendarAligned,
			SIC:             row.SIC,
			RunID:           row.RunID,
			RunSeq:          row.RunSeq,
			GapDays:         row.GapDays,
			QuarterEndMs:    row.QuarterEndMs,
			Lag1Genuine:     row.Lag1Genuine,
			Lag2Genuine:     row.Lag2Genuine,
			LagUnavailable:  row.LagUnavailable,
			Leverage:        row.Leverage,
			Liquidity:       row.Liquidity,
			Investment:      row.Investment,
			CashFlow:        row.CashFlow,
			SalesGrowth:     row.SalesGrowth,
			Size:            row.Size,
			RDIntensity:     row.RDIntensity,
			PatentCount:     row.PatentCount,
			ShockCount:      row.ShockCount,
			ShockSum:        row.ShockSum,
			InSample:        row.InSample,
			ExcludeReason:   row.ExcludeReason,
		})
	}
	return gocsv.MarshalString(&out)
}

type attritionCSV struct {
	Stage  string `csv:"stage"`
	Reason string `csv:"reason"`
	Count  int64  `csv:"count"`
}

// RenderAttritionCSV renders the attrition table as CSV.
func RenderAttritionCSV(rows []AttritionRow) (string, error) {
	out := make([]*attritionCSV, 0, len(rows))
	for _, row := range rows {
		out = append(out, &attritionCSV{
			Stage:  row.Stage,
			Reason: row.Reason,
			Count:  row.Count,
		})
	}
	return gocsv.MarshalString(&out)
}

type sampleStatCSV struct {
	Variable     string  `csv:"variable"`
	PctLow       float64 `csv:"pct_low"`
	PctHigh      float64 `csv:"pct_high"`
	LowerBound   float64 `csv:"lower_bound"`
	UpperBound   float64 `csv:"upper_bound"`
	ClampedLow   int64   `csv:"clamped_low"`
	ClampedHigh  int64   `csv:"clamped_high"`
	Observations int64   `csv:"observations"`
}

// RenderSampleStatsCSV renders the winsorization outcomes as CSV.
func RenderSampleStatsCSV(rows []WinsorBoundRow) (string, error) {
	out := make([]*sampleStatCSV, 0, len(rows))
	for _, row := range rows {
		out = append(out, &sampleStatCSV{
			Variable:     row.Variable,
			PctLow:       row.PctLow,
			PctHigh:      row.PctHigh,
			LowerBound:   row.LowerBound,
			UpperBound:   row.UpperBound,
			ClampedLow:   row.ClampedLow,
			ClampedHigh:  row.ClampedHigh,
			Observations: row.Observations,
		})
	}
	return gocsv.MarshalString(&out)
}
