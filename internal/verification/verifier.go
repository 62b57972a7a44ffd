// Package verification implements the invariant battery for a built panel and
// the rebuild check: reconstructing the panel from stored firm periods must
// reproduce the stored rows field by field.
package verification

import (
	"context"
	"math"

	"firm-panel-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons between stored and
// rebuilt values.
const FloatTolerance = 1e-7

// Panel invariants checked by the battery.
const (
	PropertyUniqueKey     = "unique_key"
	PropertyRunDensity    = "run_density"
	PropertyRunContiguity = "run_contiguity"
	PropertyEndpointOrder = "endpoint_order"
	PropertySyntheticGap  = "synthetic_gap"
	PropertyLabelForm     = "label_form"
	PropertyCensoring     = "censor_consistency"
)

// Violation is one broken invariant on one panel row.
type Violation struct {
	Property string // one of the Property* constants
	GVKey    string
	PeriodID string
	Detail   string
}

// PanelReport summarizes an invariant pass over the stored panel.
type PanelReport struct {
	TotalRows  int
	TotalFirms int
	Violations []Violation
}

// FieldDivergence represents a mismatch between stored and rebuilt values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // rebuilt value
}

// RowDivergence collects the divergent fields of one panel row.
type RowDivergence struct {
	PeriodID string
	Fields   []FieldDivergence
}

// RowResult contains the result of rebuilding a single firm.
type RowResult struct {
	GVKey       string
	Rows        int
	Match       bool
	Divergences []RowDivergence
}

// RebuildReport contains results for a full-panel rebuild comparison.
type RebuildReport struct {
	TotalRows     int
	MatchedRows   int
	DivergentRows int
	Divergences   []RowDivergence
}

// Verifier checks a built panel against its own construction rules.
type Verifier interface {
	// VerifyPanel runs the invariant battery over the stored panel.
	VerifyPanel(ctx context.Context) (*PanelReport, error)

	// VerifyFirm rebuilds one firm's alignment and segmentation from its
	// stored periods and compares against the stored rows.
	VerifyFirm(ctx context.Context, gvkey string) (*RowResult, error)

	// VerifyAll rebuilds the entire panel, censoring and winsorization
	// included, and compares every row.
	VerifyAll(ctx context.Context) (*RebuildReport, error)
}

// CompareAlignment compares the key, calendar and run attributes of a stored
// row against a rebuilt one. Derived variables are left out: they change under
// winsorization, which is cross-sectional and not reproducible per firm.
func CompareAlignment(stored, rebuilt *domain.PanelRow) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.PeriodID != rebuilt.PeriodID {
		divergences = append(divergences, FieldDivergence{
			Field:    "PeriodID",
			Expected: stored.PeriodID,
			Actual:   rebuilt.PeriodID,
		})
	}

	if stored.GVKey != rebuilt.GVKey {
		divergences = append(divergences, FieldDivergence{
			Field:    "GVKey",
			Expected: stored.GVKey,
			Actual:   rebuilt.GVKey,
		})
	}

	if !stored.ReportDate.Equal(rebuilt.ReportDate) {
		divergences = append(divergences, FieldDivergence{
			Field:    "ReportDate",
			Expected: stored.ReportDate,
			Actual:   rebuilt.ReportDate,
		})
	}

	if stored.CalendarQuarter != rebuilt.CalendarQuarter {
		divergences = append(divergences, FieldDivergence{
			Field:    "CalendarQuarter",
			Expected: stored.CalendarQuarter,
			Actual:   rebuilt.CalendarQuarter,
		})
	}

	if stored.CalendarAligned != rebuilt.CalendarAligned {
		divergences = append(divergences, FieldDivergence{
			Field:    "CalendarAligned",
			Expected: stored.CalendarAligned,
			Actual:   rebuilt.CalendarAligned,
		})
	}

	if stored.ExpectedQuarterDays != rebuilt.ExpectedQuarterDays {
		divergences = append(divergences, FieldDivergence{
			Field:    "ExpectedQuarterDays",
			Expected: stored.ExpectedQuarterDays,
			Actual:   rebuilt.ExpectedQuarterDays,
		})
	}

	if stored.QuarterEndMs != rebuilt.QuarterEndMs {
		divergences = append(divergences, FieldDivergence{
			Field:    "QuarterEndMs",
			Expected: stored.QuarterEndMs,
			Actual:   rebuilt.QuarterEndMs,
		})
	}

	if stored.QuarterEnd1Ms != rebuilt.QuarterEnd1Ms {
		divergences = append(divergences, FieldDivergence{
			Field:    "QuarterEnd1Ms",
			Expected: stored.QuarterEnd1Ms,
			Actual:   rebuilt.QuarterEnd1Ms,
		})
	}

	if stored.QuarterEnd2Ms != rebuilt.QuarterEnd2Ms {
		divergences = append(divergences, FieldDivergence{
			Field:    "QuarterEnd2Ms",
			Expected: stored.QuarterEnd2Ms,
			Actual:   rebuilt.QuarterEnd2Ms,
		})
	}

	if stored.Lag1Genuine != rebuilt.Lag1Genuine {
		divergences = append(divergences, FieldDivergence{
			Field:    "Lag1Genuine",
			Expected: stored.Lag1Genuine,
			Actual:   rebuilt.Lag1Genuine,
		})
	}

	if stored.Lag2Genuine != rebuilt.Lag2Genuine {
		divergences = append(divergences, FieldDivergence{
			Field:    "Lag2Genuine",
			Expected: stored.Lag2Genuine,
			Actual:   rebuilt.Lag2Genuine,
		})
	}

	if stored.LagUnavailable != rebuilt.LagUnavailable {
		divergences = append(divergences, FieldDivergence{
			Field:    "LagUnavailable",
			Expected: stored.LagUnavailable,
			Actual:   rebuilt.LagUnavailable,
		})
	}

	if stored.RunID != rebuilt.RunID {
		divergences = append(divergences, FieldDivergence{
			Field:    "RunID",
			Expected: stored.RunID,
			Actual:   rebuilt.RunID,
		})
	}

	if stored.RunSeq != rebuilt.RunSeq {
		divergences = append(divergences, FieldDivergence{
			Field:    "RunSeq",
			Expected: stored.RunSeq,
			Actual:   rebuilt.RunSeq,
		})
	}

	if !int64PtrEquals(stored.GapDays, rebuilt.GapDays) {
		divergences = append(divergences, FieldDivergence{
			Field:    "GapDays",
			Expected: stored.GapDays,
			Actual:   rebuilt.GapDays,
		})
	}

	return divergences
}

// ComparePanelRows compares two panel rows field by field, derived variables
// and sample attributes included. CreatedAt is not compared.
func ComparePanelRows(stored, rebuilt *domain.PanelRow) []FieldDivergence {
	divergences := CompareAlignment(stored, rebuilt)

	for _, name := range domain.AnalysisVariables {
		if !floatPtrEquals(stored.Variable(name), rebuilt.Variable(name)) {
			divergences = append(divergences, FieldDivergence{
				Field:    name,
				Expected: stored.Variable(name),
				Actual:   rebuilt.Variable(name),
			})
		}
	}

	if !int64PtrEquals(stored.PatentCount, rebuilt.PatentCount) {
		divergences = append(divergences, FieldDivergence{
			Field:    "PatentCount",
			Expected: stored.PatentCount,
			Actual:   rebuilt.PatentCount,
		})
	}

	if !int64PtrEquals(stored.ShockCount, rebuilt.ShockCount) {
		divergences = append(divergences, FieldDivergence{
			Field:    "ShockCount",
			Expected: stored.ShockCount,
			Actual:   rebuilt.ShockCount,
		})
	}

	if !floatPtrEquals(stored.ShockSum, rebuilt.ShockSum) {
		divergences = append(divergences, FieldDivergence{
			Field:    "ShockSum",
			Expected: stored.ShockSum,
			Actual:   rebuilt.ShockSum,
		})
	}

	if stored.InSample != rebuilt.InSample {
		divergences = append(divergences, FieldDivergence{
			Field:    "InSample",
			Expected: stored.InSample,
			Actual:   rebuilt.InSample,
		})
	}

	if stored.ExcludeReason != rebuilt.ExcludeReason {
		divergences = append(divergences, FieldDivergence{
			Field:    "ExcludeReason",
			Expected: stored.ExcludeReason,
			Actual:   rebuilt.ExcludeReason,
		})
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

// floatPtrEquals compares two *float64 values within FloatTolerance.
// Returns true if both are nil, or both are non-nil and equal.
func floatPtrEquals(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEquals(*a, *b)
}

// int64PtrEquals compares two *int64 values exactly.
func int64PtrEquals(a, b *int64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
