package normalization

import (
	"math"
	"testing"
	"time"

	"firm-panel-lab/internal/calendar"
	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/lookup"
)

func ptr[T any](v T) *T {
	return &v
}

// varPeriods builds two quarters of one firm with fully populated fields.
func varPeriods() []*domain.FirmPeriod {
	periods := testPeriods("001000",
		calendar.Date(1999, time.March, 31),
		calendar.Date(1999, time.June, 30),
	)
	periods[0].Fields = domain.AccountingFields{
		ATQ: ptr(100.0), CHEQ: ptr(20.0), DLCQ: ptr(10.0), DLTTQ: ptr(30.0),
		SALEQ: ptr(50.0), IBQ: ptr(5.0), DPQ: ptr(2.0), PPENTQ: ptr(40.0),
	}
	periods[1].Fields = domain.AccountingFields{
		ATQ: ptr(110.0), CHEQ: ptr(22.0), DLCQ: ptr(8.0), DLTTQ: ptr(32.0),
		SALEQ: ptr(55.0), IBQ: ptr(6.0), DPQ: ptr(3.0), PPENTQ: ptr(44.0),
		XRDQ: ptr(1.1),
	}
	return periods
}

func varRows(runIDs ...int) []*domain.PanelRow {
	rows := make([]*domain.PanelRow, len(runIDs))
	for i, id := range runIDs {
		rows[i] = &domain.PanelRow{RunID: id, RunSeq: i + 1}
	}
	return rows
}

func checkVar(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Errorf("Expected %s = %v, got nil", name, want)
		return
	}
	if math.Abs(*got-want) > 1e-9 {
		t.Errorf("Expected %s = %v, got %v", name, want, *got)
	}
}

func checkNull(t *testing.T, name string, got *float64) {
	t.Helper()
	if got != nil {
		t.Errorf("Expected %s null, got %v", name, *got)
	}
}

func TestComputeVariables_LevelRatios(t *testing.T) {
	periods := varPeriods()[:1]
	rows := varRows(1)

	ComputeVariables(periods, rows, nil, nil)

	checkVar(t, "leverage", rows[0].Leverage, 0.4)
	checkVar(t, "liquidity", rows[0].Liquidity, 0.2)
	checkVar(t, "size", rows[0].Size, math.Log(100.0))
	// A null xrdq reads as zero spending, not a missing ratio.
	checkVar(t, "rd_intensity", rows[0].RDIntensity, 0.0)

	checkNull(t, "investment", rows[0].Investment)
	checkNull(t, "cash_flow", rows[0].CashFlow)
	checkNull(t, "sales_growth", rows[0].SalesGrowth)
}

func TestComputeVariables_WithinRunLags(t *testing.T) {
	periods := varPeriods()
	rows := varRows(1, 1)

	ComputeVariables(periods, rows, nil, nil)

	checkVar(t, "investment", rows[1].Investment, math.Log(44.0)-math.Log(40.0))
	// Cash flow scales by the lagged assets, not the current ones.
	checkVar(t, "cash_flow", rows[1].CashFlow, 0.09)
	checkVar(t, "sales_growth", rows[1].SalesGrowth, 0.1)
	checkVar(t, "leverage", rows[1].Leverage, 40.0/110.0)
	checkVar(t, "rd_intensity", rows[1].RDIntensity, 0.01)
}

func TestComputeVariables_RunBoundaryBlocksLags(t *testing.T) {
	periods := varPeriods()
	rows := varRows(1, 2)

	ComputeVariables(periods, rows, nil, nil)

	checkNull(t, "investment", rows[1].Investment)
	checkNull(t, "cash_flow", rows[1].CashFlow)
	checkNull(t, "sales_growth", rows[1].SalesGrowth)

	// Level ratios do not need a lag and survive the run break.
	checkVar(t, "leverage", rows[1].Leverage, 40.0/110.0)
	checkVar(t, "size", rows[1].Size, math.Log(110.0))
}

func TestComputeVariables_NullPropagation(t *testing.T) {
	periods := varPeriods()
	periods[1].Fields.ATQ = nil
	periods[1].Fields.PPENTQ = ptr(-1.0)
	periods[0].Fields.SALEQ = ptr(0.0)
	rows := varRows(1, 1)

	ComputeVariables(periods, rows, nil, nil)

	checkNull(t, "leverage", rows[1].Leverage)
	checkNull(t, "liquidity", rows[1].Liquidity)
	checkNull(t, "size", rows[1].Size)
	checkNull(t, "rd_intensity", rows[1].RDIntensity)
	checkNull(t, "investment", rows[1].Investment)
	checkNull(t, "sales_growth", rows[1].SalesGrowth)

	// Cash flow divides by lagged assets, which are still present.
	checkVar(t, "cash_flow", rows[1].CashFlow, 0.09)
}

func TestComputeVariables_ShockWindow(t *testing.T) {
	periods := varPeriods()[:1]
	rows := varRows(1)
	rows[0].QuarterEnd1Ms = calendar.Date(1999, time.April, 1).UnixMilli()
	rows[0].QuarterEndMs = calendar.Date(1999, time.July, 1).UnixMilli()

	shocks := lookup.NewShockIndex([]*domain.ShockEvent{
		// Exactly at the window start: excluded, belongs to the prior quarter.
		{EventID: "e1", Series: "ffr", AnnouncedAtMs: rows[0].QuarterEnd1Ms, Surprise: 1.0},
		{EventID: "e2", Series: "ffr", AnnouncedAtMs: calendar.Date(1999, time.May, 15).UnixMilli(), Surprise: 0.25},
		// Exactly at the window end: included.
		{EventID: "e3", Series: "ffr", AnnouncedAtMs: rows[0].QuarterEndMs, Surprise: -0.1},
		{EventID: "e4", Series: "ffr", AnnouncedAtMs: calendar.Date(1999, time.August, 1).UnixMilli(), Surprise: 2.0},
	})

	ComputeVariables(periods, rows, shocks, nil)

	if rows[0].ShockCount == nil || *rows[0].ShockCount != 2 {
		t.Fatalf("Expected shock count 2, got %v", rows[0].ShockCount)
	}
	if rows[0].ShockSum == nil || math.Abs(*rows[0].ShockSum-0.15) > 1e-9 {
		t.Errorf("Expected shock sum 0.15, got %v", rows[0].ShockSum)
	}
}

func TestComputeVariables_PatentWindow(t *testing.T) {
	periods := varPeriods()[:1]
	rows := varRows(1)
	rows[0].QuarterEnd1Ms = calendar.Date(1999, time.April, 1).UnixMilli()
	rows[0].QuarterEndMs = calendar.Date(1999, time.July, 1).UnixMilli()

	patents := lookup.NewPatentIndex([]*domain.PatentGrant{
		{PatentID: "p1", GVKey: "001000", GrantedAtMs: calendar.Date(1999, time.May, 1).UnixMilli()},
		{PatentID: "p2", GVKey: "001000", GrantedAtMs: rows[0].QuarterEndMs},
		{PatentID: "p3", GVKey: "001000", GrantedAtMs: rows[0].QuarterEnd1Ms},
		{PatentID: "p4", GVKey: "002000", GrantedAtMs: calendar.Date(1999, time.May, 1).UnixMilli()},
	})

	ComputeVariables(periods, rows, nil, patents)

	if rows[0].PatentCount == nil || *rows[0].PatentCount != 2 {
		t.Fatalf("Expected patent count 2, got %v", rows[0].PatentCount)
	}
}

func TestComputeVariables_NilIndexesLeaveControlsNull(t *testing.T) {
	periods := varPeriods()[:1]
	rows := varRows(1)

	ComputeVariables(periods, rows, nil, nil)

	if rows[0].ShockCount != nil || rows[0].ShockSum != nil || rows[0].PatentCount != nil {
		t.Error("Expected null window controls without indexes")
	}
}
