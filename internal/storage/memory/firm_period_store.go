package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// FirmPeriodStore is an in-memory implementation of storage.FirmPeriodStore.
type FirmPeriodStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FirmPeriod // keyed by period_id
	keys map[string]string             // (gvkey|date) -> period_id
}

// NewFirmPeriodStore creates a new in-memory firm period store.
func NewFirmPeriodStore() *FirmPeriodStore {
	return &FirmPeriodStore{
		data: make(map[string]*domain.FirmPeriod),
		keys: make(map[string]string),
	}
}

// periodKey generates the natural key for a firm period.
func periodKey(gvkey string, reportDate time.Time) string {
	return gvkey + "|" + reportDate.UTC().Format("2006-01-02")
}

// Insert adds a firm period. Returns ErrDuplicateKey if the period_id or the
// (gvkey, report date) key exists.
func (s *FirmPeriodStore) Insert(_ context.Context, p *domain.FirmPeriod) error {
	if p == nil || p.PeriodID == "" || p.GVKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(p)
}

// InsertBulk adds multiple periods atomically. Fails entire batch on any duplicate.
func (s *FirmPeriodStore) InsertBulk(_ context.Context, periods []*domain.FirmPeriod) error {
	if len(periods) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchIDs := make(map[string]struct{}, len(periods))
	batchKeys := make(map[string]struct{}, len(periods))
	for _, p := range periods {
		if p == nil || p.PeriodID == "" || p.GVKey == "" {
			return storage.ErrInvalidInput
		}
		key := periodKey(p.GVKey, p.ReportDate)
		if _, exists := s.data[p.PeriodID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := s.keys[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchIDs[p.PeriodID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchIDs[p.PeriodID] = struct{}{}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range periods {
		if err := s.insertLocked(p); err != nil {
			return err
		}
	}

	return nil
}

func (s *FirmPeriodStore) insertLocked(p *domain.FirmPeriod) error {
	key := periodKey(p.GVKey, p.ReportDate)
	if _, exists := s.data[p.PeriodID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.keys[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *p
	s.data[p.PeriodID] = &copy
	s.keys[key] = p.PeriodID
	return nil
}

// GetByID retrieves a period by its ID. Returns ErrNotFound if not exists.
func (s *FirmPeriodStore) GetByID(_ context.Context, periodID string) (*domain.FirmPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[periodID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *p
	return &copy, nil
}

// GetByKey retrieves the period for (gvkey, report date). Returns ErrNotFound
// if not exists.
func (s *FirmPeriodStore) GetByKey(_ context.Context, gvkey string, reportDate time.Time) (*domain.FirmPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.keys[periodKey(gvkey, reportDate)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *s.data[id]
	return &copy, nil
}

// GetByGVKey retrieves all periods for a firm, ordered by report date ASC.
func (s *FirmPeriodStore) GetByGVKey(_ context.Context, gvkey string) ([]*domain.FirmPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FirmPeriod
	for _, p := range s.data {
		if p.GVKey == gvkey {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ReportDate.Before(result[j].ReportDate)
	})

	return result, nil
}

// ListGVKeys returns the distinct firm identifiers present, sorted ASC.
func (s *FirmPeriodStore) ListGVKeys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range s.data {
		seen[p.GVKey] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys, nil
}

var _ storage.FirmPeriodStore = (*FirmPeriodStore)(nil)
