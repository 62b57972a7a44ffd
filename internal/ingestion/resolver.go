package ingestion

import (
	"fmt"
	"time"

	"firm-panel-lab/internal/calendar"
	"firm-panel-lab/internal/config"
	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/idhash"
)

// Resolution is the outcome of resolving one (gvkey, report date) key.
// Exactly one of Period and Reason is set.
type Resolution struct {
	Period *domain.FirmPeriod // nil when the key is rejected
	Reason string             // reject reason, empty when resolved
}

// Resolver collapses duplicate raw records into unique firm-periods.
// Up to two raw records per (gvkey, report date) key are resolvable; more is a
// data-integrity violation and rejects the key.
type Resolver struct {
	overrides *config.OverrideTable
	nowMs     func() int64
}

// NewResolver creates a resolver consulting the given override table.
// A nil table behaves as an empty one.
func NewResolver(overrides *config.OverrideTable) *Resolver {
	if overrides == nil {
		overrides = config.NewOverrideTable(nil)
	}
	return &Resolver{
		overrides: overrides,
		nowMs:     func() int64 { return time.Now().UnixMilli() },
	}
}

// ResolveKey resolves the raw records sharing one (gvkey, report date) key.
// All records must share the key; callers group before calling.
func (r *Resolver) ResolveKey(records []*domain.RawAccountingRecord) Resolution {
	switch len(records) {
	case 0:
		return Resolution{Reason: ReasonIrreconcilable}
	case 1:
		return Resolution{Period: r.buildPeriod(records[0], records[0].Fields, 1, domain.ResolutionNone)}
	case 2:
		return r.resolvePair(records[0], records[1])
	default:
		// Never silently pick a survivor out of three or more records.
		return Resolution{Reason: ReasonTooManyRecords}
	}
}

// resolvePair applies the duplicate rules in order: semi-identical coalesce,
// calendar-label tiebreak, manual override.
func (r *Resolver) resolvePair(a, b *domain.RawAccountingRecord) Resolution {
	// Base record for merged output: file order.
	base := a
	if b.SourceLine < a.SourceLine {
		base = b
	}

	conflicting := conflictingFields(&a.Fields, &b.Fields)
	if len(conflicting) == 0 {
		// Semi-identical: the records agree wherever both are non-null.
		merged := coalesceFields(&a.Fields, &b.Fields)
		return Resolution{Period: r.buildPeriod(base, merged, 2, domain.ResolutionCoalesce)}
	}

	// Genuine conflict: keep the record whose reported label matches the label
	// computed from its date, if exactly one does.
	aMatch := labelMatches(a)
	bMatch := labelMatches(b)
	if aMatch != bMatch {
		keep := a
		if bMatch {
			keep = b
		}
		return Resolution{Period: r.buildPeriod(keep, keep.Fields, 2, domain.ResolutionCalendar)}
	}

	// Neither or both match: only a manual override can settle the pair.
	entry, ok := r.overrides.Lookup(a.GVKey, a.ReportDate, conflicting)
	if !ok {
		return Resolution{Reason: ReasonIrreconcilable}
	}

	merged := coalesceFields(&a.Fields, &b.Fields)
	for _, name := range conflicting {
		v := entry.Keep[name]
		merged.Set(name, &v)
	}
	return Resolution{Period: r.buildPeriod(base, merged, 2, domain.ResolutionOverride)}
}

func (r *Resolver) buildPeriod(base *domain.RawAccountingRecord, fields domain.AccountingFields, sources int, resolution string) *domain.FirmPeriod {
	return &domain.FirmPeriod{
		PeriodID:        idhash.ComputePeriodID(base.GVKey, base.ReportDate),
		GVKey:           base.GVKey,
		ReportDate:      base.ReportDate,
		FiscalYear:      base.FiscalYear,
		FiscalQuarter:   base.FiscalQuarter,
		ReportedQuarter: base.ReportedQuarter,
		SIC:             base.SIC,
		Fields:          fields,
		SourceRecords:   sources,
		Resolution:      resolution,
		CreatedAt:       r.nowMs(),
	}
}

// labelMatches reports whether the record's reported quarter label equals the
// coarse label computed from its report date.
func labelMatches(rec *domain.RawAccountingRecord) bool {
	return calendar.QuarterLabel(rec.ReportDate).Coarse() == rec.ReportedQuarter
}

// conflictingFields returns the mnemonics where both records carry a non-null
// value and the values differ, in canonical field order.
func conflictingFields(a, b *domain.AccountingFields) []string {
	var conflicts []string
	for _, name := range domain.FieldNames {
		av, bv := a.Get(name), b.Get(name)
		if av != nil && bv != nil && *av != *bv {
			conflicts = append(conflicts, name)
		}
	}
	return conflicts
}

// coalesceFields merges two semi-identical field sets, taking the non-null
// value per field. Where both are non-null they agree, so either serves.
func coalesceFields(a, b *domain.AccountingFields) domain.AccountingFields {
	var merged domain.AccountingFields
	for _, name := range domain.FieldNames {
		v := a.Get(name)
		if v == nil {
			v = b.Get(name)
		}
		if v != nil {
			vv := *v
			merged.Set(name, &vv)
		}
	}
	return merged
}

// ResolutionStats counts resolution outcomes across one resolve pass.
type ResolutionStats struct {
	Keys           int // distinct (gvkey, report date) keys seen
	Single         int // keys with one raw record
	Coalesced      int // semi-identical pairs merged
	CalendarTies   int // conflicts broken by the label tiebreak
	Overridden     int // conflicts settled by the override table
	Irreconcilable int // conflicting pairs with no override entry
	TooMany        int // keys with more than two raw records
}

// Rejected returns the number of keys that produced no firm-period.
func (s *ResolutionStats) Rejected() int {
	return s.Irreconcilable + s.TooMany
}

func (s *ResolutionStats) String() string {
	return fmt.Sprintf("keys=%d single=%d coalesced=%d calendar=%d overridden=%d irreconcilable=%d too_many=%d",
		s.Keys, s.Single, s.Coalesced, s.CalendarTies, s.Overridden, s.Irreconcilable, s.TooMany)
}
