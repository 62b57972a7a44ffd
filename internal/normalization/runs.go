package normalization

import (
	"fmt"

	"firm-panel-lab/internal/calendar"
	"firm-panel-lab/internal/domain"
)

// RunAssignment places one firm-period in a reporting run.
type RunAssignment struct {
	RunID   int    // dense per firm, starting at 1
	RunSeq  int    // 1-based position within the run
	GapDays *int64 // days since the previous record, nil for the first
}

// SegmentRuns assigns run ids over one firm's periods, ascending by report
// date. A gap within the tolerance band around the expected quarter length
// (keyed by the incoming record's month, day and leap status) continues the
// run; anything else starts a new one.
func SegmentRuns(periods []*domain.FirmPeriod) ([]RunAssignment, error) {
	if len(periods) == 0 {
		return nil, nil
	}

	out := make([]RunAssignment, len(periods))
	out[0] = RunAssignment{RunID: 1, RunSeq: 1}
	runID, runSeq := 1, 1

	for i := 1; i < len(periods); i++ {
		p := periods[i]
		gap := calendar.GapDays(periods[i-1].ReportDate, p.ReportDate)
		if gap <= 0 {
			return nil, fmt.Errorf("%w: %s at %s", ErrNonIncreasingDates,
				p.GVKey, p.ReportDate.Format("2006-01-02"))
		}

		expected := calendar.ExpectedQuarterDaysAt(p.ReportDate)
		if calendar.ContinuesRun(gap, expected) {
			runSeq++
		} else {
			runID++
			runSeq = 1
		}

		g := gap
		out[i] = RunAssignment{RunID: runID, RunSeq: runSeq, GapDays: &g}
	}

	return out, nil
}
