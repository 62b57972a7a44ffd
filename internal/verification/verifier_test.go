package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"firm-panel-lab/internal/calendar"
	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/normalization"
	"firm-panel-lab/internal/sample"
	"firm-panel-lab/internal/storage/memory"
)

func ptr[T any](v T) *T {
	return &v
}

func vfPeriod(gvkey string, date time.Time, atq, saleq float64) *domain.FirmPeriod {
	p := &domain.FirmPeriod{
		PeriodID:        gvkey + "-" + date.Format("2006-01-02"),
		GVKey:           gvkey,
		ReportDate:      date,
		FiscalYear:      date.Year(),
		FiscalQuarter:   calendar.QuarterLabel(date).Quarter,
		ReportedQuarter: calendar.QuarterLabel(date).Coarse(),
		SIC:             "3674",
	}
	p.Fields = domain.AccountingFields{
		ATQ: ptr(atq), CHEQ: ptr(atq * 0.2), DLCQ: ptr(atq * 0.1), DLTTQ: ptr(atq * 0.2),
		SALEQ: ptr(saleq), IBQ: ptr(saleq * 0.1), DPQ: ptr(saleq * 0.05), PPENTQ: ptr(atq * 0.4),
	}
	return p
}

type panelFixture struct {
	periodStore *memory.FirmPeriodStore
	shockStore  *memory.ShockEventStore
	patentStore *memory.PatentGrantStore
	rows        []*domain.PanelRow
}

// buildPanel assembles a three-firm panel through the real machinery: a clean
// firm, a firm with a reporting gap, and a financial firm the censor excludes.
func buildPanel(t *testing.T) *panelFixture {
	t.Helper()
	ctx := context.Background()

	periodStore := memory.NewFirmPeriodStore()
	periods := []*domain.FirmPeriod{
		vfPeriod("001000", calendar.Date(1999, time.March, 31), 100, 50),
		vfPeriod("001000", calendar.Date(1999, time.June, 30), 110, 55),
		vfPeriod("001000", calendar.Date(1999, time.September, 30), 120, 60),
		vfPeriod("001000", calendar.Date(1999, time.December, 31), 130, 65),
		vfPeriod("002000", calendar.Date(1999, time.March, 31), 200, 80),
		vfPeriod("002000", calendar.Date(1999, time.June, 30), 210, 85),
		vfPeriod("002000", calendar.Date(2000, time.March, 31), 220, 90),
		vfPeriod("002000", calendar.Date(2000, time.June, 30), 230, 95),
		vfPeriod("003000", calendar.Date(1999, time.June, 30), 500, 120),
	}
	periods[8].SIC = "6020"
	if err := periodStore.InsertBulk(ctx, periods); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	shockStore := memory.NewShockEventStore()
	err := shockStore.InsertBulk(ctx, []*domain.ShockEvent{
		{EventID: "e1", Series: "ffr", AnnouncedAtMs: calendar.Date(1999, time.May, 18).UnixMilli(), Surprise: 0.25},
		{EventID: "e2", Series: "ffr", AnnouncedAtMs: calendar.Date(1999, time.November, 16).UnixMilli(), Surprise: -0.5},
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	patentStore := memory.NewPatentGrantStore()
	err = patentStore.InsertBulk(ctx, []*domain.PatentGrant{
		{PatentID: "p1", GVKey: "001000", GrantedAtMs: calendar.Date(1999, time.August, 10).UnixMilli()},
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	runner := normalization.NewRunner(periodStore, shockStore, patentStore, nil)
	rows, _, err := runner.NormalizeAll(ctx)
	if err != nil {
		t.Fatalf("NormalizeAll failed: %v", err)
	}
	sample.Censor(rows)
	sample.Winsorize(rows, "run-1", 0.01, 0.99, 1)

	return &panelFixture{
		periodStore: periodStore,
		shockStore:  shockStore,
		patentStore: patentStore,
		rows:        rows,
	}
}

func (f *panelFixture) panelStore(t *testing.T) *memory.PanelRowStore {
	t.Helper()
	store := memory.NewPanelRowStore()
	if err := store.InsertBulk(context.Background(), f.rows); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	return store
}

func (f *panelFixture) verifier(t *testing.T) *PanelVerifier {
	return NewPanelVerifier(PanelVerifierOptions{
		PanelStore:  f.panelStore(t),
		PeriodStore: f.periodStore,
		ShockStore:  f.shockStore,
		PatentStore: f.patentStore,
	})
}

func hasViolation(violations []Violation, property string) bool {
	for _, v := range violations {
		if v.Property == property {
			return true
		}
	}
	return false
}

func TestCheckPanel_CleanPanel(t *testing.T) {
	f := buildPanel(t)

	violations := CheckPanel(f.rows)

	if len(violations) != 0 {
		t.Fatalf("Expected clean panel, got %d violations: %+v", len(violations), violations)
	}
}

func TestCheckPanel_DuplicateKey(t *testing.T) {
	f := buildPanel(t)
	dup := *f.rows[0]
	dup.PeriodID = "another-id"
	rows := append(f.rows, &dup)

	violations := CheckPanel(rows)

	if !hasViolation(violations, PropertyUniqueKey) {
		t.Errorf("Expected unique_key violation, got %+v", violations)
	}
}

func TestCheckPanel_RunDensityViolation(t *testing.T) {
	f := buildPanel(t)
	// 002000's post-gap rows are index 6 and 7; a run id of 3 skips 2.
	f.rows[6].RunID = 3
	f.rows[7].RunID = 3

	violations := CheckPanel(f.rows)

	if !hasViolation(violations, PropertyRunDensity) {
		t.Errorf("Expected run_density violation, got %+v", violations)
	}
}

func TestCheckPanel_GapMismatch(t *testing.T) {
	f := buildPanel(t)
	f.rows[1].GapDays = ptr(int64(50))

	violations := CheckPanel(f.rows)

	if !hasViolation(violations, PropertyRunContiguity) {
		t.Errorf("Expected run_contiguity violation, got %+v", violations)
	}
}

func TestCheckPanel_EndpointViolations(t *testing.T) {
	f := buildPanel(t)
	f.rows[0].QuarterEndMs += calendar.DayMs

	violations := CheckPanel(f.rows)

	if !hasViolation(violations, PropertyEndpointOrder) {
		t.Errorf("Expected endpoint_order violation, got %+v", violations)
	}
}

func TestCheckPanel_SyntheticFlagViolation(t *testing.T) {
	f := buildPanel(t)
	// The first row of a firm has a synthetic 1-back; clearing the flag
	// contradicts the endpoints.
	f.rows[0].LagUnavailable = false

	violations := CheckPanel(f.rows)

	if !hasViolation(violations, PropertySyntheticGap) {
		t.Errorf("Expected synthetic_gap violation, got %+v", violations)
	}
}

func TestCheckPanel_LabelViolation(t *testing.T) {
	f := buildPanel(t)
	f.rows[2].CalendarAligned = !f.rows[2].CalendarAligned

	violations := CheckPanel(f.rows)

	if !hasViolation(violations, PropertyLabelForm) {
		t.Errorf("Expected label_form violation, got %+v", violations)
	}
}

func TestCheckPanel_CensorViolations(t *testing.T) {
	f := buildPanel(t)
	// An in-sample row with a reason, and an excluded row without one.
	f.rows[0].ExcludeReason = domain.ExcludeSICFinancial
	f.rows[8].ExcludeReason = ""

	violations := CheckPanel(f.rows)

	censorViolations := 0
	for _, v := range violations {
		if v.Property == PropertyCensoring {
			censorViolations++
		}
	}
	if censorViolations != 2 {
		t.Errorf("Expected 2 censor_consistency violations, got %d: %+v", censorViolations, violations)
	}
}

func TestVerifyPanel(t *testing.T) {
	f := buildPanel(t)

	report, err := f.verifier(t).VerifyPanel(context.Background())
	if err != nil {
		t.Fatalf("VerifyPanel failed: %v", err)
	}

	if report.TotalRows != 9 || report.TotalFirms != 3 {
		t.Errorf("Expected 9 rows / 3 firms, got %d/%d", report.TotalRows, report.TotalFirms)
	}
	if len(report.Violations) != 0 {
		t.Errorf("Expected no violations, got %+v", report.Violations)
	}
}

func TestVerifyFirm_Match(t *testing.T) {
	f := buildPanel(t)

	result, err := f.verifier(t).VerifyFirm(context.Background(), "001000")
	if err != nil {
		t.Fatalf("VerifyFirm failed: %v", err)
	}

	if !result.Match {
		t.Errorf("Expected match, got divergences %+v", result.Divergences)
	}
	if result.Rows != 4 {
		t.Errorf("Expected 4 rows, got %d", result.Rows)
	}
}

func TestVerifyFirm_NotFound(t *testing.T) {
	f := buildPanel(t)

	_, err := f.verifier(t).VerifyFirm(context.Background(), "999999")
	if !errors.Is(err, ErrFirmNotFound) {
		t.Errorf("Expected ErrFirmNotFound, got %v", err)
	}
}

func TestVerifyFirm_DetectsDrift(t *testing.T) {
	f := buildPanel(t)
	f.rows[1].RunID = 5

	result, err := f.verifier(t).VerifyFirm(context.Background(), "001000")
	if err != nil {
		t.Fatalf("VerifyFirm failed: %v", err)
	}

	if result.Match {
		t.Fatal("Expected divergence on tampered run id")
	}
	if len(result.Divergences) != 1 || result.Divergences[0].Fields[0].Field != "RunID" {
		t.Errorf("Expected a RunID divergence, got %+v", result.Divergences)
	}
}

func TestVerifyAll_Reproduces(t *testing.T) {
	f := buildPanel(t)

	report, err := f.verifier(t).VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}

	if report.TotalRows != 9 || report.MatchedRows != 9 || report.DivergentRows != 0 {
		t.Errorf("Expected 9/9/0, got %d/%d/%d",
			report.TotalRows, report.MatchedRows, report.DivergentRows)
	}
	if len(report.Divergences) != 0 {
		t.Errorf("Expected no divergences, got %+v", report.Divergences)
	}
}

func TestVerifyAll_DetectsTampering(t *testing.T) {
	f := buildPanel(t)
	f.rows[3].Leverage = ptr(*f.rows[3].Leverage + 1.0)

	report, err := f.verifier(t).VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}

	if report.DivergentRows != 1 || report.MatchedRows != 8 {
		t.Fatalf("Expected 1 divergent row, got %d (matched %d)",
			report.DivergentRows, report.MatchedRows)
	}
	div := report.Divergences[0]
	if div.PeriodID != f.rows[3].PeriodID {
		t.Errorf("Expected divergence on %s, got %s", f.rows[3].PeriodID, div.PeriodID)
	}
	if len(div.Fields) != 1 || div.Fields[0].Field != domain.VarLeverage {
		t.Errorf("Expected a leverage divergence, got %+v", div.Fields)
	}
}

func TestComparePanelRows_Tolerance(t *testing.T) {
	f := buildPanel(t)
	stored := f.rows[1]

	within := *stored
	within.Leverage = ptr(*stored.Leverage + 1e-8)
	if divs := ComparePanelRows(stored, &within); len(divs) != 0 {
		t.Errorf("Expected 1e-8 drift inside tolerance, got %+v", divs)
	}

	outside := *stored
	outside.Leverage = ptr(*stored.Leverage + 1e-6)
	divs := ComparePanelRows(stored, &outside)
	if len(divs) != 1 || divs[0].Field != domain.VarLeverage {
		t.Errorf("Expected a leverage divergence, got %+v", divs)
	}
}
