package memory

import (
	"context"
	"sync"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// PipelineRunStore is an in-memory implementation of storage.PipelineRunStore.
type PipelineRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PipelineRun // keyed by run_id
}

// NewPipelineRunStore creates a new in-memory pipeline run store.
func NewPipelineRunStore() *PipelineRunStore {
	return &PipelineRunStore{
		data: make(map[string]*domain.PipelineRun),
	}
}

// Create adds a new run in its initial state. Returns ErrDuplicateKey if
// run_id exists.
func (s *PipelineRunStore) Create(_ context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *run
	s.data[run.RunID] = &copy
	return nil
}

// Finish updates a run's status, finish time and counters. Returns
// ErrNotFound if the run does not exist.
func (s *PipelineRunStore) Finish(_ context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; !exists {
		return storage.ErrNotFound
	}

	copy := *run
	s.data[run.RunID] = &copy
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *PipelineRunStore) GetByID(_ context.Context, runID string) (*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *run
	return &copy, nil
}

// GetLatest retrieves the most recently started run. Returns ErrNotFound
// when no runs exist.
func (s *PipelineRunStore) GetLatest(_ context.Context) (*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.PipelineRun
	for _, run := range s.data {
		if latest == nil || run.StartedAtMs > latest.StartedAtMs {
			latest = run
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *latest
	return &copy, nil
}

var _ storage.PipelineRunStore = (*PipelineRunStore)(nil)
