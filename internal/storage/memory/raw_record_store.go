package memory

import (
	"context"
	"sort"
	"sync"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// RawRecordStore is an in-memory implementation of storage.RawRecordStore.
type RawRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RawAccountingRecord // keyed by record_id
}

// NewRawRecordStore creates a new in-memory raw record store.
func NewRawRecordStore() *RawRecordStore {
	return &RawRecordStore{
		data: make(map[string]*domain.RawAccountingRecord),
	}
}

// Insert adds a raw record. Returns ErrDuplicateKey if record_id exists.
func (s *RawRecordStore) Insert(_ context.Context, r *domain.RawAccountingRecord) error {
	if r == nil || r.RecordID == "" || r.GVKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RecordID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.RecordID] = &copy
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *RawRecordStore) InsertBulk(_ context.Context, records []*domain.RawAccountingRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.RecordID == "" || r.GVKey == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.RecordID] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range records {
		copy := *r
		s.data[r.RecordID] = &copy
	}

	return nil
}

// GetByGVKey retrieves all raw records for a firm, ordered by report date ASC
// then source line ASC.
func (s *RawRecordStore) GetByGVKey(_ context.Context, gvkey string) ([]*domain.RawAccountingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RawAccountingRecord
	for _, r := range s.data {
		if r.GVKey == gvkey {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReportDate.Equal(result[j].ReportDate) {
			return result[i].ReportDate.Before(result[j].ReportDate)
		}
		return result[i].SourceLine < result[j].SourceLine
	})

	return result, nil
}

// ListGVKeys returns the distinct firm identifiers present, sorted ASC.
func (s *RawRecordStore) ListGVKeys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range s.data {
		seen[r.GVKey] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys, nil
}

// Count returns the total number of raw records.
func (s *RawRecordStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.data)), nil
}

var _ storage.RawRecordStore = (*RawRecordStore)(nil)
