package memory

import (
	"context"
	"sort"
	"sync"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// AttritionStore is an in-memory implementation of storage.AttritionStore.
type AttritionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StageAttrition // keyed by (run_id|stage|reason)
}

// NewAttritionStore creates a new in-memory attrition store.
func NewAttritionStore() *AttritionStore {
	return &AttritionStore{
		data: make(map[string]*domain.StageAttrition),
	}
}

// attritionKey generates the natural key for an attrition row.
func attritionKey(a *domain.StageAttrition) string {
	return a.PipelineRunID + "|" + a.Stage + "|" + a.Reason
}

// InsertBulk adds multiple attrition rows atomically. Fails entire batch on any duplicate.
func (s *AttritionStore) InsertBulk(_ context.Context, rows []*domain.StageAttrition) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(rows))
	for _, a := range rows {
		if a == nil || a.PipelineRunID == "" || a.Stage == "" || a.Reason == "" {
			return storage.ErrInvalidInput
		}
		key := attritionKey(a)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, a := range rows {
		copy := *a
		s.data[attritionKey(a)] = &copy
	}

	return nil
}

// GetByPipelineRun retrieves all attrition rows for a pipeline run, ordered
// by (stage, reason) ASC.
func (s *AttritionStore) GetByPipelineRun(_ context.Context, pipelineRunID string) ([]*domain.StageAttrition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StageAttrition
	for _, a := range s.data {
		if a.PipelineRunID == pipelineRunID {
			copy := *a
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Stage != result[j].Stage {
			return result[i].Stage < result[j].Stage
		}
		return result[i].Reason < result[j].Reason
	})

	return result, nil
}

var _ storage.AttritionStore = (*AttritionStore)(nil)
