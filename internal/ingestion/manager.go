package ingestion

import (
	"context"
	"fmt"
	"log"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/observability"
	"firm-panel-lab/internal/storage"
)

// IngestStats summarizes one source load.
type IngestStats struct {
	Loaded  int            // rows stored
	Rejects map[string]int // schema rejections by reason
}

// Rejected returns the total number of rejected rows.
func (s *IngestStats) Rejected() int {
	n := 0
	for _, c := range s.Rejects {
		n += c
	}
	return n
}

// Manager orchestrates ingestion from sources to storage and duplicate
// resolution from raw records to firm-periods. It enforces deterministic
// ordering and uses the storage layer for duplicate rejection.
type Manager struct {
	accountingSource AccountingSource
	shockSource      ShockSource
	patentSource     PatentSource

	rawStore    storage.RawRecordStore
	periodStore storage.FirmPeriodStore
	shockStore  storage.ShockEventStore
	patentStore storage.PatentGrantStore

	resolver *Resolver
	logger   *log.Logger
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	AccountingSource AccountingSource
	ShockSource      ShockSource
	PatentSource     PatentSource

	RawStore    storage.RawRecordStore
	PeriodStore storage.FirmPeriodStore
	ShockStore  storage.ShockEventStore
	PatentStore storage.PatentGrantStore

	Resolver *Resolver
	Logger   *log.Logger
}

// NewManager creates a new ingestion manager with the provided sources and stores.
func NewManager(opts ManagerOptions) *Manager {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		accountingSource: opts.AccountingSource,
		shockSource:      opts.ShockSource,
		patentSource:     opts.PatentSource,
		rawStore:         opts.RawStore,
		periodStore:      opts.PeriodStore,
		shockStore:       opts.ShockStore,
		patentStore:      opts.PatentStore,
		resolver:         resolver,
		logger:           logger,
	}
}

// IngestAccounting fetches the accounting panel and stores schema-valid raw
// records. Enforces deterministic ordering by (gvkey, report date, source line).
// Rejected rows are counted per reason, never stored.
func (m *Manager) IngestAccounting(ctx context.Context) (*IngestStats, error) {
	stats := &IngestStats{Rejects: make(map[string]int)}
	if m.accountingSource == nil || m.rawStore == nil {
		return stats, nil
	}

	records, rejects, err := m.accountingSource.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	countRejects(stats, rejects, "accounting")

	if len(records) == 0 {
		return stats, nil
	}

	// Enforce deterministic ordering
	SortRawRecords(records)

	// Store via bulk insert - storage layer handles duplicates
	if err := m.rawStore.InsertBulk(ctx, records); err != nil {
		return nil, err
	}

	stats.Loaded = len(records)
	return stats, nil
}

// IngestShocks fetches the shock series and stores it.
func (m *Manager) IngestShocks(ctx context.Context) (*IngestStats, error) {
	stats := &IngestStats{Rejects: make(map[string]int)}
	if m.shockSource == nil || m.shockStore == nil {
		return stats, nil
	}

	events, rejects, err := m.shockSource.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	countRejects(stats, rejects, "shocks")

	if len(events) == 0 {
		return stats, nil
	}

	SortShockEvents(events)

	if err := m.shockStore.InsertBulk(ctx, events); err != nil {
		return nil, err
	}

	stats.Loaded = len(events)
	return stats, nil
}

// IngestPatents fetches the patent grant series and stores it.
func (m *Manager) IngestPatents(ctx context.Context) (*IngestStats, error) {
	stats := &IngestStats{Rejects: make(map[string]int)}
	if m.patentSource == nil || m.patentStore == nil {
		return stats, nil
	}

	grants, rejects, err := m.patentSource.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	countRejects(stats, rejects, "patents")

	if len(grants) == 0 {
		return stats, nil
	}

	SortPatentGrants(grants)

	if err := m.patentStore.InsertBulk(ctx, grants); err != nil {
		return nil, err
	}

	stats.Loaded = len(grants)
	return stats, nil
}

// ResolveDuplicates groups stored raw records by (gvkey, report date),
// resolves every key and stores the resulting firm-periods. Rejected keys are
// counted and logged; they never stop the pass.
func (m *Manager) ResolveDuplicates(ctx context.Context) (*ResolutionStats, error) {
	if m.rawStore == nil || m.periodStore == nil {
		return &ResolutionStats{}, nil
	}

	gvkeys, err := m.rawStore.ListGVKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list gvkeys: %w", err)
	}

	stats := &ResolutionStats{}
	var periods []*domain.FirmPeriod

	for _, gvkey := range gvkeys {
		records, err := m.rawStore.GetByGVKey(ctx, gvkey)
		if err != nil {
			return nil, fmt.Errorf("load raw records for %s: %w", gvkey, err)
		}

		for _, group := range groupByReportDate(records) {
			stats.Keys++
			res := m.resolver.ResolveKey(group)
			if res.Period != nil {
				periods = append(periods, res.Period)
				observability.RecordResolvedPeriod(res.Period.Resolution)
				switch res.Period.Resolution {
				case domain.ResolutionNone:
					stats.Single++
				case domain.ResolutionCoalesce:
					stats.Coalesced++
				case domain.ResolutionCalendar:
					stats.CalendarTies++
				case domain.ResolutionOverride:
					stats.Overridden++
				}
				continue
			}

			switch res.Reason {
			case ReasonTooManyRecords:
				stats.TooMany++
				m.logger.Printf("Rejecting %s %s: %d raw records for one key",
					gvkey, group[0].ReportDate.Format("2006-01-02"), len(group))
			default:
				stats.Irreconcilable++
				m.logger.Printf("Rejecting %s %s: irreconcilable duplicate pair",
					gvkey, group[0].ReportDate.Format("2006-01-02"))
			}
		}
	}

	if len(periods) > 0 {
		if err := m.periodStore.InsertBulk(ctx, periods); err != nil {
			return nil, fmt.Errorf("store firm periods: %w", err)
		}
	}

	return stats, nil
}

// groupByReportDate splits a firm's records into per-date groups. Records
// arrive ordered by (report date, source line) from the store.
func groupByReportDate(records []*domain.RawAccountingRecord) [][]*domain.RawAccountingRecord {
	var groups [][]*domain.RawAccountingRecord
	for i := 0; i < len(records); {
		j := i + 1
		for j < len(records) && records[j].ReportDate.Equal(records[i].ReportDate) {
			j++
		}
		groups = append(groups, records[i:j])
		i = j
	}
	return groups
}

func countRejects(stats *IngestStats, rejects []RowError, source string) {
	for _, r := range rejects {
		stats.Rejects[r.Reason]++
		observability.RecordRejectedRow(source, r.Reason)
	}
}
