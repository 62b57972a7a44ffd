package stub

import (
	"context"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/ingestion"
)

// StubAccountingSource returns fixed in-memory raw records for testing.
// Records can be intentionally unordered to test sorting.
// Implements ingestion.AccountingSource.
type StubAccountingSource struct {
	records []*domain.RawAccountingRecord
	rejects []ingestion.RowError
}

// NewStubAccountingSource creates a new stub accounting source.
func NewStubAccountingSource(records []*domain.RawAccountingRecord, rejects []ingestion.RowError) *StubAccountingSource {
	return &StubAccountingSource{records: records, rejects: rejects}
}

// Fetch returns copies of the configured records plus the configured rejects.
func (s *StubAccountingSource) Fetch(_ context.Context) ([]*domain.RawAccountingRecord, []ingestion.RowError, error) {
	var result []*domain.RawAccountingRecord
	for _, rec := range s.records {
		copy := *rec
		result = append(result, &copy)
	}
	return result, s.rejects, nil
}

// StubShockSource returns fixed in-memory shock events for testing.
// Implements ingestion.ShockSource.
type StubShockSource struct {
	events []*domain.ShockEvent
}

// NewStubShockSource creates a new stub shock source.
func NewStubShockSource(events []*domain.ShockEvent) *StubShockSource {
	return &StubShockSource{events: events}
}

// Fetch returns copies of the configured events and no rejects.
func (s *StubShockSource) Fetch(_ context.Context) ([]*domain.ShockEvent, []ingestion.RowError, error) {
	var result []*domain.ShockEvent
	for _, e := range s.events {
		copy := *e
		result = append(result, &copy)
	}
	return result, nil, nil
}

// StubPatentSource returns fixed in-memory patent grants for testing.
// Implements ingestion.PatentSource.
type StubPatentSource struct {
	grants []*domain.PatentGrant
}

// NewStubPatentSource creates a new stub patent source.
func NewStubPatentSource(grants []*domain.PatentGrant) *StubPatentSource {
	return &StubPatentSource{grants: grants}
}

// Fetch returns copies of the configured grants and no rejects.
func (s *StubPatentSource) Fetch(_ context.Context) ([]*domain.PatentGrant, []ingestion.RowError, error) {
	var result []*domain.PatentGrant
	for _, g := range s.grants {
		copy := *g
		result = append(result, &copy)
	}
	return result, nil, nil
}
