package normalization

import (
	"time"

	"firm-panel-lab/internal/calendar"
	"firm-panel-lab/internal/domain"
)

// Alignment carries the calendar attributes of one firm-period: the computed
// quarter label, the expected quarter length and the three quarter-endpoint
// instants used for event-time matching.
type Alignment struct {
	CalendarQuarter     string
	CalendarAligned     bool
	ExpectedQuarterDays int
	QuarterEndMs        int64
	QuarterEnd1Ms       int64
	QuarterEnd2Ms       int64
	Lag1Genuine         bool
	Lag2Genuine         bool
	LagUnavailable      bool
}

// AlignAt computes the alignment for periods[i]. The slice must hold one
// firm's periods in strictly ascending report-date order.
//
// The 1-back endpoint is genuine when the previous record sits 89-92 days
// earlier; otherwise it is synthesized by subtracting the expected quarter
// length keyed on the current record's month, day and leap status. The 2-back
// endpoint applies the same rule one step earlier, anchored on the 1-back
// record's calendar attributes (the genuine previous record's date, or the
// synthetic date when the 1-back is synthetic).
func AlignAt(periods []*domain.FirmPeriod, i int) Alignment {
	cur := periods[i]
	label := calendar.QuarterLabel(cur.ReportDate)

	a := Alignment{
		CalendarQuarter:     label.String(),
		CalendarAligned:     label.Coarse() == cur.ReportedQuarter,
		ExpectedQuarterDays: calendar.ExpectedQuarterDaysAt(cur.ReportDate),
		QuarterEndMs:        calendar.QuarterEndMs(cur.ReportDate),
	}

	// 1-back: ref1 is the calendar date standing in for the prior quarter end.
	var ref1 time.Time
	if i > 0 && calendar.IsGenuineLag(calendar.GapDays(periods[i-1].ReportDate, cur.ReportDate)) {
		ref1 = periods[i-1].ReportDate
		a.Lag1Genuine = true
	} else {
		ref1, _ = calendar.SyntheticBack(cur.ReportDate)
		a.LagUnavailable = true
	}
	a.QuarterEnd1Ms = calendar.QuarterEndMs(ref1)

	// 2-back: the latest real record strictly before ref1 is the candidate
	// anchor; it is genuine only at the same 89-92 day distance from ref1.
	prevIdx := -1
	for j := i - 1; j >= 0; j-- {
		if periods[j].ReportDate.Before(ref1) {
			prevIdx = j
			break
		}
	}
	if prevIdx >= 0 && calendar.IsGenuineLag(calendar.GapDays(periods[prevIdx].ReportDate, ref1)) {
		a.QuarterEnd2Ms = calendar.QuarterEndMs(periods[prevIdx].ReportDate)
		a.Lag2Genuine = true
	} else {
		ref2, _ := calendar.SyntheticBack(ref1)
		a.QuarterEnd2Ms = calendar.QuarterEndMs(ref2)
	}

	return a
}
