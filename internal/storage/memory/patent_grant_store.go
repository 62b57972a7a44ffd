package memory

import (
	"context"
	"sort"
	"sync"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// PatentGrantStore is an in-memory implementation of storage.PatentGrantStore.
type PatentGrantStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PatentGrant // keyed by patent_id
}

// NewPatentGrantStore creates a new in-memory patent grant store.
func NewPatentGrantStore() *PatentGrantStore {
	return &PatentGrantStore{
		data: make(map[string]*domain.PatentGrant),
	}
}

// InsertBulk adds multiple patent grants atomically. Fails entire batch on any duplicate.
func (s *PatentGrantStore) InsertBulk(_ context.Context, grants []*domain.PatentGrant) error {
	if len(grants) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchIDs := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		if g == nil || g.PatentID == "" || g.GVKey == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[g.PatentID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchIDs[g.PatentID]; exists {
			return storage.ErrDuplicateKey
		}
		batchIDs[g.PatentID] = struct{}{}
	}

	// Second pass: insert all
	for _, g := range grants {
		copy := *g
		s.data[g.PatentID] = &copy
	}

	return nil
}

// GetByGVKey retrieves all patent grants for a firm, ordered by grant time ASC.
func (s *PatentGrantStore) GetByGVKey(_ context.Context, gvkey string) ([]*domain.PatentGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PatentGrant
	for _, g := range s.data {
		if g.GVKey == gvkey {
			copy := *g
			result = append(result, &copy)
		}
	}

	sortPatentGrants(result)
	return result, nil
}

// GetByTimeRange retrieves a firm's patent grants with grant time in
// [startMs, endMs], ordered by grant time ASC.
func (s *PatentGrantStore) GetByTimeRange(_ context.Context, gvkey string, startMs, endMs int64) ([]*domain.PatentGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PatentGrant
	for _, g := range s.data {
		if g.GVKey == gvkey && g.GrantedAtMs >= startMs && g.GrantedAtMs <= endMs {
			copy := *g
			result = append(result, &copy)
		}
	}

	sortPatentGrants(result)
	return result, nil
}

func sortPatentGrants(grants []*domain.PatentGrant) {
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].GrantedAtMs != grants[j].GrantedAtMs {
			return grants[i].GrantedAtMs < grants[j].GrantedAtMs
		}
		return grants[i].PatentID < grants[j].PatentID
	})
}

var _ storage.PatentGrantStore = (*PatentGrantStore)(nil)
