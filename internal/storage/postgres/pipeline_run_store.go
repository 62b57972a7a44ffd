package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// PipelineRunStore implements storage.PipelineRunStore using PostgreSQL.
type PipelineRunStore struct {
	pool *Pool
}

// NewPipelineRunStore creates a new PipelineRunStore.
func NewPipelineRunStore(pool *Pool) *PipelineRunStore {
	return &PipelineRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PipelineRunStore = (*PipelineRunStore)(nil)

// Create adds a new run in its initial state. Returns ErrDuplicateKey if
// run_id exists.
func (s *PipelineRunStore) Create(ctx context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pipeline_runs (
			run_id, started_at_ms, finished_at_ms, status,
			raw_records, firm_periods, panel_rows, sample_rows, rejected, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		run.RunID,
		run.StartedAtMs,
		run.FinishedAtMs,
		run.Status,
		run.RawRecords,
		run.FirmPeriods,
		run.PanelRows,
		run.SampleRows,
		run.Rejected,
		run.Note,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("create pipeline run: %w", err)
	}
	return nil
}

// Finish updates a run's status, finish time and counters. Returns ErrNotFound
// if the run does not exist.
func (s *PipelineRunStore) Finish(ctx context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE pipeline_runs
		SET finished_at_ms = $2,
		    status = $3,
		    raw_records = $4,
		    firm_periods = $5,
		    panel_rows = $6,
		    sample_rows = $7,
		    rejected = $8,
		    note = $9
		WHERE run_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		run.RunID,
		run.FinishedAtMs,
		run.Status,
		run.RawRecords,
		run.FirmPeriods,
		run.PanelRows,
		run.SampleRows,
		run.Rejected,
		run.Note,
	)
	if err != nil {
		return fmt.Errorf("finish pipeline run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *PipelineRunStore) GetByID(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	if runID == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT run_id, started_at_ms, finished_at_ms, status,
		       raw_records, firm_periods, panel_rows, sample_rows, rejected, note
		FROM pipeline_runs
		WHERE run_id = $1
	`

	run, err := scanPipelineRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pipeline run by id: %w", err)
	}
	return run, nil
}

// GetLatest retrieves the most recently started run. Returns ErrNotFound when
// no runs exist.
func (s *PipelineRunStore) GetLatest(ctx context.Context) (*domain.PipelineRun, error) {
	query := `
		SELECT run_id, started_at_ms, finished_at_ms, status,
		       raw_records, firm_periods, panel_rows, sample_rows, rejected, note
		FROM pipeline_runs
		ORDER BY started_at_ms DESC, run_id ASC
		LIMIT 1
	`

	run, err := scanPipelineRun(s.pool.QueryRow(ctx, query))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest pipeline run: %w", err)
	}
	return run, nil
}

// scanPipelineRun scans a single row into a PipelineRun.
func scanPipelineRun(row pgx.Row) (*domain.PipelineRun, error) {
	var run domain.PipelineRun

	err := row.Scan(
		&run.RunID,
		&run.StartedAtMs,
		&run.FinishedAtMs,
		&run.Status,
		&run.RawRecords,
		&run.FirmPeriods,
		&run.PanelRows,
		&run.SampleRows,
		&run.Rejected,
		&run.Note,
	)
	if err != nil {
		return nil, err
	}

	return &run, nil
}
