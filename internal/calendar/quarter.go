// Package calendar implements the fiscal-quarter arithmetic the panel is built
// on: expected quarter lengths, calendar-quarter labels and quarter-endpoint
// instants. All functions are pure and operate on UTC civil dates.
package calendar

import (
	"fmt"
	"time"
)

const (
	// MinLagDays and MaxLagDays bound the gap (in days) at which a previous
	// same-firm record counts as the genuine prior quarter.
	MinLagDays = 89
	MaxLagDays = 92

	// RunToleranceDays is the band around the expected quarter length within
	// which a gap still continues the current reporting run. Firms shift their
	// quarter-end date by a few days without a true discontinuity.
	RunToleranceDays = 7

	// DayMs is one civil day in milliseconds.
	DayMs = int64(24 * time.Hour / time.Millisecond)
)

// Date returns the UTC midnight instant for a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// IsLeapYear reports whether a year is a Gregorian leap year.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// ExpectedQuarterDays returns the expected length in days of a fiscal quarter
// ending in the given month, on the given day of month, with leap indicating
// whether the ending year is a leap year.
//
// The table is transcribed, not derived: the April day-of-month boundaries and
// the May entry do not follow from generic month arithmetic and must match the
// reference values exactly.
//
//	Jan 92; Feb 92; Mar 90 (91 leap);
//	Apr 89 if day <= 28 else 90 (leap: 90 if day <= 29 else 91);
//	May 91; Jun 92; Jul 91; Aug-Nov 92; Dec 91.
func ExpectedQuarterDays(month time.Month, day int, leap bool) int {
	switch month {
	case time.January, time.February, time.June,
		time.August, time.September, time.October, time.November:
		return 92
	case time.March:
		if leap {
			return 91
		}
		return 90
	case time.April:
		if leap {
			if day <= 29 {
				return 90
			}
			return 91
		}
		if day <= 28 {
			return 89
		}
		return 90
	case time.May, time.July, time.December:
		return 91
	}
	return 0
}

// ExpectedQuarterDaysAt returns the expected length of the quarter ending at
// the given report date.
func ExpectedQuarterDaysAt(date time.Time) int {
	return ExpectedQuarterDays(date.Month(), date.Day(), IsLeapYear(date.Year()))
}

// Label is a calendar-quarter label: a year, a quarter 1-4 and a sub-quarter
// letter a/b/c identifying which of the quarter's three ending months the
// report date falls in.
type Label struct {
	Year    int
	Quarter int
	Sub     byte
}

// String renders the full label, e.g. "1998Q4c".
func (l Label) String() string {
	return fmt.Sprintf("%04dQ%d%c", l.Year, l.Quarter, l.Sub)
}

// Coarse renders the label without the sub-quarter letter, e.g. "1998Q4".
// This is the form reported in the source panel.
func (l Label) Coarse() string {
	return fmt.Sprintf("%04dQ%d", l.Year, l.Quarter)
}

// QuarterLabel maps a report date to its calendar-quarter label. The mapping
// is a fixed 12-way table on the report month; quarters ending in January
// attach to the prior label-year's Q4c.
func QuarterLabel(date time.Time) Label {
	y := date.Year()
	switch date.Month() {
	case time.February:
		return Label{Year: y, Quarter: 1, Sub: 'a'}
	case time.March:
		return Label{Year: y, Quarter: 1, Sub: 'b'}
	case time.April:
		return Label{Year: y, Quarter: 1, Sub: 'c'}
	case time.May:
		return Label{Year: y, Quarter: 2, Sub: 'a'}
	case time.June:
		return Label{Year: y, Quarter: 2, Sub: 'b'}
	case time.July:
		return Label{Year: y, Quarter: 2, Sub: 'c'}
	case time.August:
		return Label{Year: y, Quarter: 3, Sub: 'a'}
	case time.September:
		return Label{Year: y, Quarter: 3, Sub: 'b'}
	case time.October:
		return Label{Year: y, Quarter: 3, Sub: 'c'}
	case time.November:
		return Label{Year: y, Quarter: 4, Sub: 'a'}
	case time.December:
		return Label{Year: y, Quarter: 4, Sub: 'b'}
	case time.January:
		return Label{Year: y - 1, Quarter: 4, Sub: 'c'}
	}
	return Label{}
}

// ParseCoarseLabel parses a "YYYYQn" label as found in the source panel.
// Returns ok=false for anything that does not match the format exactly.
func ParseCoarseLabel(s string) (year, quarter int, ok bool) {
	if len(s) != 6 || s[4] != 'Q' {
		return 0, 0, false
	}
	for i := 0; i < 4; i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, 0, false
		}
		year = year*10 + int(s[i]-'0')
	}
	if s[5] < '1' || s[5] > '4' {
		return 0, 0, false
	}
	return year, int(s[5] - '0'), true
}

// QuarterEndMs returns the end instant of the quarter whose last day is the
// report date: the start of the next UTC day, in Unix milliseconds.
func QuarterEndMs(reportDate time.Time) int64 {
	d := reportDate.UTC()
	next := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return next.UnixMilli()
}

// GapDays returns the whole-day gap between two report dates (cur - prev).
func GapDays(prev, cur time.Time) int64 {
	return int64(cur.Sub(prev) / (24 * time.Hour))
}

// IsGenuineLag reports whether a gap identifies the previous record as the
// genuine prior quarter (89-92 days inclusive).
func IsGenuineLag(gapDays int64) bool {
	return gapDays >= MinLagDays && gapDays <= MaxLagDays
}

// ContinuesRun reports whether a gap keeps a firm's reporting run alive:
// within RunToleranceDays of the expected quarter length for the transition.
func ContinuesRun(gapDays int64, expectedDays int) bool {
	return gapDays >= int64(expectedDays-RunToleranceDays) &&
		gapDays <= int64(expectedDays+RunToleranceDays)
}

// SyntheticBack returns the synthetic previous report date for a record with
// no genuine prior quarter: the report date moved back by the expected quarter
// length keyed on the record's own month, day and leap status.
func SyntheticBack(date time.Time) (time.Time, int) {
	expected := ExpectedQuarterDaysAt(date)
	return date.AddDate(0, 0, -expected), expected
}
