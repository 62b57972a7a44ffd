package memory

import (
	"context"
	"sort"
	"sync"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// ShockEventStore is an in-memory implementation of storage.ShockEventStore.
type ShockEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ShockEvent // keyed by event_id
}

// NewShockEventStore creates a new in-memory shock event store.
func NewShockEventStore() *ShockEventStore {
	return &ShockEventStore{
		data: make(map[string]*domain.ShockEvent),
	}
}

// InsertBulk adds multiple shock events atomically. Fails entire batch on any duplicate.
func (s *ShockEventStore) InsertBulk(_ context.Context, events []*domain.ShockEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchIDs := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchIDs[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batchIDs[e.EventID] = struct{}{}
	}

	// Second pass: insert all
	for _, e := range events {
		copy := *e
		s.data[e.EventID] = &copy
	}

	return nil
}

// GetAll retrieves every shock event, ordered by announcement time ASC.
func (s *ShockEventStore) GetAll(_ context.Context) ([]*domain.ShockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ShockEvent, 0, len(s.data))
	for _, e := range s.data {
		copy := *e
		result = append(result, &copy)
	}

	sortShockEvents(result)
	return result, nil
}

// GetByTimeRange retrieves shock events announced in [startMs, endMs],
// ordered by announcement time ASC.
func (s *ShockEventStore) GetByTimeRange(_ context.Context, startMs, endMs int64) ([]*domain.ShockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ShockEvent
	for _, e := range s.data {
		if e.AnnouncedAtMs >= startMs && e.AnnouncedAtMs <= endMs {
			copy := *e
			result = append(result, &copy)
		}
	}

	sortShockEvents(result)
	return result, nil
}

func sortShockEvents(events []*domain.ShockEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].AnnouncedAtMs != events[j].AnnouncedAtMs {
			return events[i].AnnouncedAtMs < events[j].AnnouncedAtMs
		}
		return events[i].EventID < events[j].EventID
	})
}

var _ storage.ShockEventStore = (*ShockEventStore)(nil)
