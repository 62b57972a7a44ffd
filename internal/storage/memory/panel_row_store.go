package memory

import (
	"context"
	"sort"
	"sync"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// PanelRowStore is an in-memory implementation of storage.PanelRowStore.
type PanelRowStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PanelRow // keyed by period_id
}

// NewPanelRowStore creates a new in-memory panel row store.
func NewPanelRowStore() *PanelRowStore {
	return &PanelRowStore{
		data: make(map[string]*domain.PanelRow),
	}
}

// InsertBulk adds multiple panel rows atomically. Fails entire batch on any duplicate.
func (s *PanelRowStore) InsertBulk(_ context.Context, rows []*domain.PanelRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchIDs := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.PeriodID == "" || r.GVKey == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.PeriodID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchIDs[r.PeriodID]; exists {
			return storage.ErrDuplicateKey
		}
		batchIDs[r.PeriodID] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range rows {
		copy := *r
		s.data[r.PeriodID] = &copy
	}

	return nil
}

// GetByGVKey retrieves all panel rows for a firm, ordered by quarter end ASC.
func (s *PanelRowStore) GetByGVKey(_ context.Context, gvkey string) ([]*domain.PanelRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PanelRow
	for _, r := range s.data {
		if r.GVKey == gvkey {
			copy := *r
			result = append(result, &copy)
		}
	}

	sortPanelRows(result)
	return result, nil
}

// GetByTimeRange retrieves a firm's panel rows with quarter end in
// [startMs, endMs], ordered by quarter end ASC.
func (s *PanelRowStore) GetByTimeRange(_ context.Context, gvkey string, startMs, endMs int64) ([]*domain.PanelRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PanelRow
	for _, r := range s.data {
		if r.GVKey == gvkey && r.QuarterEndMs >= startMs && r.QuarterEndMs <= endMs {
			copy := *r
			result = append(result, &copy)
		}
	}

	sortPanelRows(result)
	return result, nil
}

// GetAll retrieves every panel row, ordered by (gvkey, quarter end) ASC.
func (s *PanelRowStore) GetAll(_ context.Context) ([]*domain.PanelRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PanelRow, 0, len(s.data))
	for _, r := range s.data {
		copy := *r
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].GVKey != result[j].GVKey {
			return result[i].GVKey < result[j].GVKey
		}
		return result[i].QuarterEndMs < result[j].QuarterEndMs
	})

	return result, nil
}

func sortPanelRows(rows []*domain.PanelRow) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].QuarterEndMs < rows[j].QuarterEndMs
	})
}

var _ storage.PanelRowStore = (*PanelRowStore)(nil)
