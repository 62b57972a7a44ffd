package clickhouse

import (
	"context"
	"fmt"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// AttritionStore implements storage.AttritionStore using ClickHouse.
type AttritionStore struct {
	conn *Conn
}

// NewAttritionStore creates a new AttritionStore.
func NewAttritionStore(conn *Conn) *AttritionStore {
	return &AttritionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AttritionStore = (*AttritionStore)(nil)

// InsertBulk adds multiple attrition rows. Fails entire batch on duplicate
// (pipeline_run_id, stage, reason).
func (s *AttritionStore) InsertBulk(ctx context.Context, rows []*domain.StageAttrition) error {
	if len(rows) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		runID  string
		stage  string
		reason string
	}
	seen := make(map[key]struct{}, len(rows))
	for _, a := range rows {
		if a == nil || a.PipelineRunID == "" || a.Stage == "" {
			return storage.ErrInvalidInput
		}
		k := key{a.PipelineRunID, a.Stage, a.Reason}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, a := range rows {
		exists, err := s.exists(ctx, a.PipelineRunID, a.Stage, a.Reason)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO attrition_stages (
			pipeline_run_id, stage, reason, count, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range rows {
		err = batch.Append(
			a.PipelineRunID, a.Stage, a.Reason, a.Count, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPipelineRun retrieves attrition rows for a run, ordered by stage then
// reason ASC.
func (s *AttritionStore) GetByPipelineRun(ctx context.Context, runID string) ([]*domain.StageAttrition, error) {
	query := `
		SELECT pipeline_run_id, stage, reason, count, created_at
		FROM attrition_stages
		WHERE pipeline_run_id = ?
		ORDER BY stage ASC, reason ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by pipeline run: %w", err)
	}
	defer rows.Close()

	return scanStageAttritions(rows)
}

// exists checks if an attrition row with the given key exists.
func (s *AttritionStore) exists(ctx context.Context, runID, stage, reason string) (bool, error) {
	query := `
		SELECT count(*) FROM attrition_stages
		WHERE pipeline_run_id = ? AND stage = ? AND reason = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, runID, stage, reason).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanStageAttritions scans multiple rows into a slice of StageAttrition.
func scanStageAttritions(rows chRows) ([]*domain.StageAttrition, error) {
	var out []*domain.StageAttrition

	for rows.Next() {
		var a domain.StageAttrition

		err := rows.Scan(
			&a.PipelineRunID, &a.Stage, &a.Reason, &a.Count, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attrition row: %w", err)
		}

		out = append(out, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attrition rows: %w", err)
	}

	return out, nil
}
