package verification

import (
	"fmt"
	"sort"
	"time"

	"firm-panel-lab/internal/calendar"
	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/sample"
)

// CheckPanel runs the invariant battery over panel rows. Rows may span many
// firms in any order; each firm is checked in report-date order.
func CheckPanel(rows []*domain.PanelRow) []Violation {
	violations := checkUniqueKeys(rows)

	byFirm := make(map[string][]*domain.PanelRow)
	var gvkeys []string
	for _, row := range rows {
		if _, seen := byFirm[row.GVKey]; !seen {
			gvkeys = append(gvkeys, row.GVKey)
		}
		byFirm[row.GVKey] = append(byFirm[row.GVKey], row)
	}
	sort.Strings(gvkeys)

	for _, gvkey := range gvkeys {
		firm := byFirm[gvkey]
		sort.Slice(firm, func(i, j int) bool {
			return firm[i].ReportDate.Before(firm[j].ReportDate)
		})
		violations = append(violations, checkRunStructure(firm)...)
	}

	for _, row := range rows {
		violations = append(violations, checkEndpoints(row)...)
		violations = append(violations, checkLabel(row)...)
		violations = append(violations, checkCensoring(row)...)
	}

	return violations
}

func violation(row *domain.PanelRow, property, detail string) Violation {
	return Violation{
		Property: property,
		GVKey:    row.GVKey,
		PeriodID: row.PeriodID,
		Detail:   detail,
	}
}

// checkUniqueKeys verifies that period ids and (gvkey, report date) keys are
// unique across the panel.
func checkUniqueKeys(rows []*domain.PanelRow) []Violation {
	var violations []Violation
	ids := make(map[string]bool, len(rows))
	keys := make(map[string]bool, len(rows))

	for _, row := range rows {
		key := row.GVKey + "|" + row.ReportDate.UTC().Format("2006-01-02")
		if ids[row.PeriodID] {
			violations = append(violations,
				violation(row, PropertyUniqueKey, "duplicate period id"))
		}
		if keys[key] {
			violations = append(violations,
				violation(row, PropertyUniqueKey, "duplicate firm-period key "+key))
		}
		ids[row.PeriodID] = true
		keys[key] = true
	}

	return violations
}

// checkRunStructure verifies run density and contiguity over one firm's rows,
// sorted by report date: ids start at 1 and grow by exactly one at each break,
// sequence numbers restart at 1 and count up inside a run, and a break happens
// exactly when the gap leaves the tolerance band.
func checkRunStructure(firm []*domain.PanelRow) []Violation {
	var violations []Violation

	for i, row := range firm {
		if i == 0 {
			if row.RunID != 1 || row.RunSeq != 1 {
				violations = append(violations, violation(row, PropertyRunDensity,
					fmt.Sprintf("first row opens run %d seq %d", row.RunID, row.RunSeq)))
			}
			if row.GapDays != nil {
				violations = append(violations, violation(row, PropertyRunContiguity,
					"first row carries a gap"))
			}
			continue
		}

		prev := firm[i-1]
		gap := calendar.GapDays(prev.ReportDate, row.ReportDate)
		if row.GapDays == nil || *row.GapDays != gap {
			violations = append(violations, violation(row, PropertyRunContiguity,
				fmt.Sprintf("stored gap %v, dates are %d days apart", row.GapDays, gap)))
		}

		expected := calendar.ExpectedQuarterDaysAt(row.ReportDate)
		if calendar.ContinuesRun(gap, expected) {
			if row.RunID != prev.RunID || row.RunSeq != prev.RunSeq+1 {
				violations = append(violations, violation(row, PropertyRunContiguity,
					fmt.Sprintf("gap %d continues run %d, row has run %d seq %d",
						gap, prev.RunID, row.RunID, row.RunSeq)))
			}
		} else {
			if row.RunID != prev.RunID+1 || row.RunSeq != 1 {
				violations = append(violations, violation(row, PropertyRunDensity,
					fmt.Sprintf("gap %d breaks run %d, row has run %d seq %d",
						gap, prev.RunID, row.RunID, row.RunSeq)))
			}
		}
	}

	return violations
}

// checkEndpoints verifies the quarter-endpoint triple: strict ordering,
// agreement with the report date, and the genuine/synthetic gap rules for the
// 1-back and 2-back offsets.
func checkEndpoints(row *domain.PanelRow) []Violation {
	var violations []Violation

	if want := calendar.ExpectedQuarterDaysAt(row.ReportDate); row.ExpectedQuarterDays != want {
		violations = append(violations, violation(row, PropertySyntheticGap,
			fmt.Sprintf("expected quarter length %d, stored %d", want, row.ExpectedQuarterDays)))
	}
	if want := calendar.QuarterEndMs(row.ReportDate); row.QuarterEndMs != want {
		violations = append(violations, violation(row, PropertyEndpointOrder,
			fmt.Sprintf("endpoint %d does not match report date (want %d)", row.QuarterEndMs, want)))
	}
	if row.QuarterEnd2Ms >= row.QuarterEnd1Ms || row.QuarterEnd1Ms >= row.QuarterEndMs {
		violations = append(violations, violation(row, PropertyEndpointOrder,
			fmt.Sprintf("endpoints not strictly ordered: %d, %d, %d",
				row.QuarterEnd2Ms, row.QuarterEnd1Ms, row.QuarterEndMs)))
		return violations
	}

	diff1 := (row.QuarterEndMs - row.QuarterEnd1Ms) / calendar.DayMs
	if row.Lag1Genuine {
		if row.LagUnavailable {
			violations = append(violations, violation(row, PropertySyntheticGap,
				"genuine 1-back with lag-unavailable flag"))
		}
		if !calendar.IsGenuineLag(diff1) {
			violations = append(violations, violation(row, PropertySyntheticGap,
				fmt.Sprintf("genuine 1-back sits %d days back", diff1)))
		}
	} else {
		if !row.LagUnavailable {
			violations = append(violations, violation(row, PropertySyntheticGap,
				"synthetic 1-back without lag-unavailable flag"))
		}
		if diff1 != int64(row.ExpectedQuarterDays) {
			violations = append(violations, violation(row, PropertySyntheticGap,
				fmt.Sprintf("synthetic 1-back sits %d days back, expected quarter length is %d",
					diff1, row.ExpectedQuarterDays)))
		}
	}

	// The 1-back report date is the day before its endpoint.
	ref1 := time.UnixMilli(row.QuarterEnd1Ms - calendar.DayMs).UTC()
	diff2 := (row.QuarterEnd1Ms - row.QuarterEnd2Ms) / calendar.DayMs
	if row.Lag2Genuine {
		if !calendar.IsGenuineLag(diff2) {
			violations = append(violations, violation(row, PropertySyntheticGap,
				fmt.Sprintf("genuine 2-back sits %d days behind the 1-back", diff2)))
		}
	} else {
		if want := int64(calendar.ExpectedQuarterDaysAt(ref1)); diff2 != want {
			violations = append(violations, violation(row, PropertySyntheticGap,
				fmt.Sprintf("synthetic 2-back sits %d days behind the 1-back, expected %d",
					diff2, want)))
		}
	}

	return violations
}

// checkLabel verifies the calendar-quarter label and the aligned flag against
// a fresh mapping of the report date.
func checkLabel(row *domain.PanelRow) []Violation {
	var violations []Violation

	label := calendar.QuarterLabel(row.ReportDate)
	if row.CalendarQuarter != label.String() {
		violations = append(violations, violation(row, PropertyLabelForm,
			fmt.Sprintf("label %q, report date maps to %q", row.CalendarQuarter, label.String())))
	}
	if want := label.Coarse() == row.ReportedQuarter; row.CalendarAligned != want {
		violations = append(violations, violation(row, PropertyLabelForm,
			fmt.Sprintf("aligned flag %v, reported label is %q", row.CalendarAligned, row.ReportedQuarter)))
	}

	return violations
}

// checkCensoring verifies that the in-sample flag, the exclusion reason and
// the censoring predicates agree.
func checkCensoring(row *domain.PanelRow) []Violation {
	var violations []Violation

	if row.InSample {
		if row.ExcludeReason != "" {
			violations = append(violations, violation(row, PropertyCensoring,
				"in-sample row carries exclusion reason "+row.ExcludeReason))
		}
		if reason := sample.ExcludeReasonFor(row); reason != "" {
			violations = append(violations, violation(row, PropertyCensoring,
				"in-sample row fails predicate "+reason))
		}
		return violations
	}

	if row.ExcludeReason == "" {
		violations = append(violations, violation(row, PropertyCensoring,
			"excluded row without exclusion reason"))
	} else if want := sample.ExcludeReasonFor(row); want != row.ExcludeReason {
		violations = append(violations, violation(row, PropertyCensoring,
			fmt.Sprintf("stored reason %s, predicates give %q", row.ExcludeReason, want)))
	}

	return violations
}
