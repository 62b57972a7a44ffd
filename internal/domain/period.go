package domain

import "time"

// FirmPeriod is the canonical, uniquely-keyed firm-quarter record emitted by
// the duplicate resolver. Corresponds to firm_periods table in PostgreSQL.
// Immutable after creation; calendar and run attributes are attached downstream
// on PanelRow, never written back here.
type FirmPeriod struct {
	PeriodID        string           // sha256 hash of (gvkey, report date)
	GVKey           string           // firm identifier
	ReportDate      time.Time        // last day of the fiscal quarter, UTC midnight
	FiscalYear      int              // fiscal year as reported
	FiscalQuarter   int              // fiscal quarter-of-year, 1-4
	ReportedQuarter string           // reported calendar-quarter label, "YYYYQn"
	SIC             string           // four-digit industry code, may be empty
	Fields          AccountingFields // nullable numeric items after resolution
	SourceRecords   int              // raw records behind this period (1 or 2)
	Resolution      string           // how the key was resolved, see Resolution* constants
	CreatedAt       int64            // record creation timestamp (ms)
}

// Resolution methods for a firm-period key.
const (
	// ResolutionNone: the key had a single raw record.
	ResolutionNone = "none"
	// ResolutionCoalesce: a semi-identical pair was merged by taking the
	// non-null value per field.
	ResolutionCoalesce = "coalesce"
	// ResolutionCalendar: a conflicting pair was broken by keeping the record
	// whose reported quarter label matches the label computed from its date.
	ResolutionCalendar = "calendar"
	// ResolutionOverride: a conflicting pair was resolved by a manual override
	// table entry.
	ResolutionOverride = "override"
)
