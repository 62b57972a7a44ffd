// Package lookup answers event-window queries against the shock and patent
// series: how many events, and with what summed surprise, fall into one
// quarter window. Windows are half-open (start, end] so that back-to-back
// quarters partition the timeline without double counting.
package lookup

import (
	"sort"

	"firm-panel-lab/internal/domain"
)

// ShockIndex is a shock series prepared for window queries.
type ShockIndex struct {
	events []*domain.ShockEvent // sorted by announcement instant
}

// NewShockIndex builds an index over a copy of the series.
func NewShockIndex(events []*domain.ShockEvent) *ShockIndex {
	sorted := make([]*domain.ShockEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AnnouncedAtMs < sorted[j].AnnouncedAtMs
	})
	return &ShockIndex{events: sorted}
}

// Len returns the number of indexed events.
func (idx *ShockIndex) Len() int {
	return len(idx.events)
}

// Window returns the number of shock announcements in (startMs, endMs] and
// the sum of their surprises.
func (idx *ShockIndex) Window(startMs, endMs int64) (count int64, sum float64) {
	lo := sort.Search(len(idx.events), func(i int) bool {
		return idx.events[i].AnnouncedAtMs > startMs
	})
	for i := lo; i < len(idx.events) && idx.events[i].AnnouncedAtMs <= endMs; i++ {
		count++
		sum += idx.events[i].Surprise
	}
	return count, sum
}

// PatentIndex is a patent grant series prepared for per-firm window queries.
type PatentIndex struct {
	byFirm map[string][]*domain.PatentGrant // each slice sorted by grant instant
}

// NewPatentIndex builds an index over a copy of the grants.
func NewPatentIndex(grants []*domain.PatentGrant) *PatentIndex {
	byFirm := make(map[string][]*domain.PatentGrant)
	for _, g := range grants {
		byFirm[g.GVKey] = append(byFirm[g.GVKey], g)
	}
	for _, list := range byFirm {
		sort.Slice(list, func(i, j int) bool {
			return list[i].GrantedAtMs < list[j].GrantedAtMs
		})
	}
	return &PatentIndex{byFirm: byFirm}
}

// Len returns the number of indexed grants.
func (idx *PatentIndex) Len() int {
	n := 0
	for _, list := range idx.byFirm {
		n += len(list)
	}
	return n
}

// CountInWindow returns the number of the firm's patent grants with grant
// instant in (startMs, endMs].
func (idx *PatentIndex) CountInWindow(gvkey string, startMs, endMs int64) int64 {
	list := idx.byFirm[gvkey]
	lo := sort.Search(len(list), func(i int) bool {
		return list[i].GrantedAtMs > startMs
	})
	var count int64
	for i := lo; i < len(list) && list[i].GrantedAtMs <= endMs; i++ {
		count++
	}
	return count
}
