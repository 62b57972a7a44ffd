package storage

import (
	"context"
	"time"

	"firm-panel-lab/internal/domain"
)

// RawRecordStore provides access to raw_records storage: the append-only
// pre-resolution accounting observations.
type RawRecordStore interface {
	// Insert adds a raw record. Returns ErrDuplicateKey if record_id exists.
	Insert(ctx context.Context, r *domain.RawAccountingRecord) error

	// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.RawAccountingRecord) error

	// GetByGVKey retrieves all raw records for a firm, ordered by report date
	// ASC then source line ASC. Duplicate (gvkey, report date) keys appear
	// adjacent in this ordering.
	GetByGVKey(ctx context.Context, gvkey string) ([]*domain.RawAccountingRecord, error)

	// ListGVKeys returns the distinct firm identifiers present, sorted ASC.
	ListGVKeys(ctx context.Context) ([]string, error)

	// Count returns the total number of raw records.
	Count(ctx context.Context) (int64, error)
}

// FirmPeriodStore provides access to firm_periods storage: the canonical
// deduplicated panel keyed uniquely by (gvkey, report date).
type FirmPeriodStore interface {
	// Insert adds a firm period. Returns ErrDuplicateKey if the period_id or
	// the (gvkey, report date) key exists.
	Insert(ctx context.Context, p *domain.FirmPeriod) error

	// InsertBulk adds multiple periods atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, periods []*domain.FirmPeriod) error

	// GetByID retrieves a period by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, periodID string) (*domain.FirmPeriod, error)

	// GetByKey retrieves the period for (gvkey, report date). Returns
	// ErrNotFound if not exists.
	GetByKey(ctx context.Context, gvkey string, reportDate time.Time) (*domain.FirmPeriod, error)

	// GetByGVKey retrieves all periods for a firm, ordered by report date ASC.
	GetByGVKey(ctx context.Context, gvkey string) ([]*domain.FirmPeriod, error)

	// ListGVKeys returns the distinct firm identifiers present, sorted ASC.
	ListGVKeys(ctx context.Context) ([]string, error)
}

// PanelRowStore provides access to panel_rows storage: the enriched analysis
// panel with calendar, run, derived-variable and sample attributes.
type PanelRowStore interface {
	// InsertBulk adds multiple rows. Fails entire batch on duplicate period_id.
	InsertBulk(ctx context.Context, rows []*domain.PanelRow) error

	// GetByGVKey retrieves all rows for a firm, ordered by report date ASC.
	GetByGVKey(ctx context.Context, gvkey string) ([]*domain.PanelRow, error)

	// GetByTimeRange retrieves rows for a firm whose quarter endpoint falls
	// within [start, end] (inclusive, ms).
	GetByTimeRange(ctx context.Context, gvkey string, start, end int64) ([]*domain.PanelRow, error)

	// GetAll retrieves the full panel, ordered by gvkey ASC, report date ASC.
	GetAll(ctx context.Context) ([]*domain.PanelRow, error)
}

// ShockEventStore provides access to shock_events storage.
type ShockEventStore interface {
	// InsertBulk adds multiple events. Fails entire batch on duplicate event_id.
	InsertBulk(ctx context.Context, events []*domain.ShockEvent) error

	// GetAll retrieves all events, ordered by announcement instant ASC.
	GetAll(ctx context.Context) ([]*domain.ShockEvent, error)

	// GetByTimeRange retrieves events announced within [start, end] (inclusive, ms).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ShockEvent, error)
}

// PatentGrantStore provides access to patent_grants storage.
type PatentGrantStore interface {
	// InsertBulk adds multiple grants. Fails entire batch on duplicate
	// (patent_id, gvkey).
	InsertBulk(ctx context.Context, grants []*domain.PatentGrant) error

	// GetByGVKey retrieves all grants for a firm, ordered by grant instant ASC.
	GetByGVKey(ctx context.Context, gvkey string) ([]*domain.PatentGrant, error)

	// GetByTimeRange retrieves grants for a firm within [start, end] (inclusive, ms).
	GetByTimeRange(ctx context.Context, gvkey string, start, end int64) ([]*domain.PatentGrant, error)
}

// AttritionStore provides access to attrition_stages storage: per-stage
// rejection counts for each pipeline run.
type AttritionStore interface {
	// InsertBulk adds multiple attrition rows. Fails entire batch on duplicate
	// (pipeline_run_id, stage, reason).
	InsertBulk(ctx context.Context, rows []*domain.StageAttrition) error

	// GetByPipelineRun retrieves attrition rows for a run, ordered by stage
	// then reason ASC.
	GetByPipelineRun(ctx context.Context, runID string) ([]*domain.StageAttrition, error)
}

// SampleStatStore provides access to sample_stats storage: per-variable
// winsorization outcomes for each pipeline run.
type SampleStatStore interface {
	// InsertBulk adds multiple stats. Fails entire batch on duplicate
	// (pipeline_run_id, variable).
	InsertBulk(ctx context.Context, stats []*domain.SampleStat) error

	// GetByPipelineRun retrieves stats for a run, ordered by variable ASC.
	GetByPipelineRun(ctx context.Context, runID string) ([]*domain.SampleStat, error)
}

// PipelineRunStore provides persistence for pipeline run records. This gives
// sample-size accounting a durable anchor: every attrition row and sample stat
// is keyed by a run recorded here.
type PipelineRunStore interface {
	// Create adds a new run in its initial state. Returns ErrDuplicateKey if
	// run_id exists.
	Create(ctx context.Context, run *domain.PipelineRun) error

	// Finish updates a run's status, finish time and counters. Returns
	// ErrNotFound if the run does not exist.
	Finish(ctx context.Context, run *domain.PipelineRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.PipelineRun, error)

	// GetLatest retrieves the most recently started run. Returns ErrNotFound
	// when no runs exist.
	GetLatest(ctx context.Context) (*domain.PipelineRun, error)
}
