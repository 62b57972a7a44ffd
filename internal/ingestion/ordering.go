package ingestion

import (
	"errors"
	"sort"

	"firm-panel-lab/internal/domain"
)

// ErrInvalidOrdering is returned when records are not properly ordered.
var ErrInvalidOrdering = errors.New("records are not in deterministic order")

// SortRawRecords orders records by (gvkey ASC, report date ASC, source line ASC).
// Source line keeps a duplicate pair in file order.
func SortRawRecords(records []*domain.RawAccountingRecord) {
	sort.Slice(records, func(i, j int) bool {
		return compareRawRecords(records[i], records[j]) < 0
	})
}

// SortShockEvents orders events by (announcement ASC, event id ASC).
func SortShockEvents(events []*domain.ShockEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].AnnouncedAtMs != events[j].AnnouncedAtMs {
			return events[i].AnnouncedAtMs < events[j].AnnouncedAtMs
		}
		return events[i].EventID < events[j].EventID
	})
}

// SortPatentGrants orders grants by (grant instant ASC, patent id ASC).
func SortPatentGrants(grants []*domain.PatentGrant) {
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].GrantedAtMs != grants[j].GrantedAtMs {
			return grants[i].GrantedAtMs < grants[j].GrantedAtMs
		}
		return grants[i].PatentID < grants[j].PatentID
	})
}

// ValidateRawRecordOrdering checks that records are strictly ordered.
// Returns ErrInvalidOrdering if not.
func ValidateRawRecordOrdering(records []*domain.RawAccountingRecord) error {
	for i := 1; i < len(records); i++ {
		if compareRawRecords(records[i-1], records[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareRawRecords returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (gvkey ASC, report date ASC, source line ASC)
func compareRawRecords(a, b *domain.RawAccountingRecord) int {
	if a.GVKey != b.GVKey {
		if a.GVKey < b.GVKey {
			return -1
		}
		return 1
	}
	if !a.ReportDate.Equal(b.ReportDate) {
		if a.ReportDate.Before(b.ReportDate) {
			return -1
		}
		return 1
	}
	if a.SourceLine != b.SourceLine {
		if a.SourceLine < b.SourceLine {
			return -1
		}
		return 1
	}
	return 0
}
