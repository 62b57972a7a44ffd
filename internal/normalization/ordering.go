package normalization

import (
	"errors"
	"sort"

	"firm-panel-lab/internal/domain"
)

// ErrNonIncreasingDates is returned when a firm's periods are not strictly
// ascending by report date. Exact ties cannot survive duplicate resolution, so
// hitting this means the input bypassed the resolver.
var ErrNonIncreasingDates = errors.New("firm periods are not strictly increasing by report date")

// SortPeriods orders one firm's periods by report date ASC.
func SortPeriods(periods []*domain.FirmPeriod) {
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].ReportDate.Before(periods[j].ReportDate)
	})
}

// ValidatePeriodOrdering checks that periods are strictly ascending by report
// date. Returns ErrNonIncreasingDates if not.
func ValidatePeriodOrdering(periods []*domain.FirmPeriod) error {
	for i := 1; i < len(periods); i++ {
		if !periods[i].ReportDate.After(periods[i-1].ReportDate) {
			return ErrNonIncreasingDates
		}
	}
	return nil
}
