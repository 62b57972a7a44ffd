package normalization

import (
	"context"
	"log"
	"time"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// NormalizationEngine defines the main normalization interface.
type NormalizationEngine interface {
	// NormalizeFirm builds the enriched panel rows for a single firm.
	NormalizeFirm(ctx context.Context, gvkey string) ([]*domain.PanelRow, error)
}

// Runner implements NormalizationEngine.
type Runner struct {
	periodStore storage.FirmPeriodStore
	shockStore  storage.ShockEventStore
	patentStore storage.PatentGrantStore

	logger *log.Logger
	nowMs  func() int64
}

// NewRunner creates a new normalization runner. The shock and patent stores
// may be nil; the matching window controls are then left null.
func NewRunner(
	periodStore storage.FirmPeriodStore,
	shockStore storage.ShockEventStore,
	patentStore storage.PatentGrantStore,
	logger *log.Logger,
) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		periodStore: periodStore,
		shockStore:  shockStore,
		patentStore: patentStore,
		logger:      logger,
		nowMs:       func() int64 { return time.Now().UnixMilli() },
	}
}

var _ NormalizationEngine = (*Runner)(nil)
