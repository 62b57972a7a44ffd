package sample

import (
	"math"
	"testing"

	"firm-panel-lab/internal/domain"
)

func TestWinsorize_BoundsAndClamps(t *testing.T) {
	rows := make([]*domain.PanelRow, 100)
	for i := range rows {
		rows[i] = &domain.PanelRow{InSample: true, Size: ptr(float64(i + 1))}
	}

	stats := Winsorize(rows, "run-1", 0.01, 0.99, 1700000000000)

	if len(stats) != len(domain.AnalysisVariables) {
		t.Fatalf("Expected %d stats, got %d", len(domain.AnalysisVariables), len(stats))
	}

	var size *domain.SampleStat
	for _, s := range stats {
		if s.Variable == domain.VarSize {
			size = s
		}
	}
	if size == nil {
		t.Fatal("Expected a size stat")
	}

	if size.Observations != 100 {
		t.Errorf("Expected 100 observations, got %d", size.Observations)
	}
	if math.Abs(size.LowerBound-1.99) > 1e-9 || math.Abs(size.UpperBound-99.01) > 1e-9 {
		t.Errorf("Expected bounds [1.99, 99.01], got [%v, %v]", size.LowerBound, size.UpperBound)
	}
	if size.ClampedLow != 1 || size.ClampedHigh != 1 {
		t.Errorf("Expected 1 clamp on each tail, got %d/%d", size.ClampedLow, size.ClampedHigh)
	}
	if size.PipelineRunID != "run-1" || size.CreatedAt != 1700000000000 {
		t.Errorf("Expected run keying, got %s at %d", size.PipelineRunID, size.CreatedAt)
	}

	if math.Abs(*rows[0].Size-1.99) > 1e-9 {
		t.Errorf("Expected bottom value raised to 1.99, got %v", *rows[0].Size)
	}
	if math.Abs(*rows[99].Size-99.01) > 1e-9 {
		t.Errorf("Expected top value lowered to 99.01, got %v", *rows[99].Size)
	}
	if *rows[49].Size != 50 {
		t.Errorf("Expected interior value untouched, got %v", *rows[49].Size)
	}
}

func TestWinsorize_StatsInReportOrder(t *testing.T) {
	stats := Winsorize(nil, "run-1", 0.01, 0.99, 0)

	if len(stats) != len(domain.AnalysisVariables) {
		t.Fatalf("Expected %d stats, got %d", len(domain.AnalysisVariables), len(stats))
	}
	for i, name := range domain.AnalysisVariables {
		if stats[i].Variable != name {
			t.Errorf("Expected %s at index %d, got %s", name, i, stats[i].Variable)
		}
		if stats[i].Observations != 0 {
			t.Errorf("Expected 0 observations for %s, got %d", name, stats[i].Observations)
		}
	}
}

func TestWinsorize_ExcludedRowsUntouched(t *testing.T) {
	rows := []*domain.PanelRow{
		{InSample: true, Leverage: ptr(1.0)},
		{InSample: true, Leverage: ptr(2.0)},
		{InSample: true, Leverage: ptr(3.0)},
		{InSample: true, Leverage: ptr(4.0)},
		{InSample: true, Leverage: ptr(5.0)},
		{InSample: false, ExcludeReason: domain.ExcludeSICFinancial, Leverage: ptr(1000.0)},
	}

	stats := Winsorize(rows, "run-1", 0.01, 0.99, 0)

	var lev *domain.SampleStat
	for _, s := range stats {
		if s.Variable == domain.VarLeverage {
			lev = s
		}
	}

	// Bounds come from the five in-sample values only.
	if lev.Observations != 5 {
		t.Errorf("Expected 5 observations, got %d", lev.Observations)
	}
	if math.Abs(lev.LowerBound-1.04) > 1e-9 || math.Abs(lev.UpperBound-4.96) > 1e-9 {
		t.Errorf("Expected bounds [1.04, 4.96], got [%v, %v]", lev.LowerBound, lev.UpperBound)
	}
	if *rows[5].Leverage != 1000.0 {
		t.Errorf("Expected excluded row untouched, got %v", *rows[5].Leverage)
	}
}

func TestWinsorize_NullValuesSkipped(t *testing.T) {
	rows := []*domain.PanelRow{
		{InSample: true, Liquidity: ptr(0.1)},
		{InSample: true},
		{InSample: true, Liquidity: ptr(0.3)},
	}

	stats := Winsorize(rows, "run-1", 0.01, 0.99, 0)

	for _, s := range stats {
		if s.Variable == domain.VarLiquidity && s.Observations != 2 {
			t.Errorf("Expected 2 observations, got %d", s.Observations)
		}
	}
	if rows[1].Liquidity != nil {
		t.Error("Expected null value to stay null")
	}
}
