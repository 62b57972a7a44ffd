package ingestion

import (
	"firm-panel-lab/internal/calendar"
	"firm-panel-lab/internal/domain"
)

// Rejection reasons recorded against the validate and resolve stages.
// A rejection drops the affected row or firm-period only; processing continues.
const (
	ReasonMissingGVKey     = "missing_gvkey"
	ReasonBadReportDate    = "bad_report_date"
	ReasonBadFiscalYear    = "bad_fiscal_year"
	ReasonBadFiscalQuarter = "bad_fiscal_quarter"
	ReasonBadQuarterLabel  = "bad_quarter_label"
	ReasonBadNumeric       = "bad_numeric"
	ReasonMissingEventID   = "missing_event_id"
	ReasonTooManyRecords   = "too_many_records"
	ReasonIrreconcilable   = "irreconcilable_conflict"
)

// RowError describes one rejected source row.
type RowError struct {
	Line   int    // 1-based data row in the source file, 0 when unknown
	Reason string // one of the Reason* constants
	Detail string // offending value, may be empty
}

// ValidateRecord checks a parsed raw record against the schema rules.
// Returns the first failing reason, or an empty string when the record is valid.
func ValidateRecord(rec *domain.RawAccountingRecord) string {
	if rec.GVKey == "" {
		return ReasonMissingGVKey
	}
	if rec.ReportDate.IsZero() {
		return ReasonBadReportDate
	}
	if rec.FiscalYear < 1900 || rec.FiscalYear > 2200 {
		return ReasonBadFiscalYear
	}
	if rec.FiscalQuarter < 1 || rec.FiscalQuarter > 4 {
		return ReasonBadFiscalQuarter
	}
	if _, _, ok := calendar.ParseCoarseLabel(rec.ReportedQuarter); !ok {
		return ReasonBadQuarterLabel
	}
	return ""
}
