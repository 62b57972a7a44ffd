package memory

import (
	"context"
	"sort"
	"sync"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// SampleStatStore is an in-memory implementation of storage.SampleStatStore.
type SampleStatStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SampleStat // keyed by (run_id|variable)
}

// NewSampleStatStore creates a new in-memory sample stat store.
func NewSampleStatStore() *SampleStatStore {
	return &SampleStatStore{
		data: make(map[string]*domain.SampleStat),
	}
}

// sampleStatKey generates the natural key for a sample stat row.
func sampleStatKey(st *domain.SampleStat) string {
	return st.PipelineRunID + "|" + st.Variable
}

// InsertBulk adds multiple sample stat rows atomically. Fails entire batch on any duplicate.
func (s *SampleStatStore) InsertBulk(_ context.Context, stats []*domain.SampleStat) error {
	if len(stats) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(stats))
	for _, st := range stats {
		if st == nil || st.PipelineRunID == "" || st.Variable == "" {
			return storage.ErrInvalidInput
		}
		key := sampleStatKey(st)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, st := range stats {
		copy := *st
		s.data[sampleStatKey(st)] = &copy
	}

	return nil
}

// GetByPipelineRun retrieves all sample stats for a pipeline run, ordered by
// variable ASC.
func (s *SampleStatStore) GetByPipelineRun(_ context.Context, pipelineRunID string) ([]*domain.SampleStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SampleStat
	for _, st := range s.data {
		if st.PipelineRunID == pipelineRunID {
			copy := *st
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Variable < result[j].Variable
	})

	return result, nil
}

var _ storage.SampleStatStore = (*SampleStatStore)(nil)
