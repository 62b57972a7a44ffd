package clickhouse

import (
	"context"
	"fmt"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// SampleStatStore implements storage.SampleStatStore using ClickHouse.
type SampleStatStore struct {
	conn *Conn
}

// NewSampleStatStore creates a new SampleStatStore.
func NewSampleStatStore(conn *Conn) *SampleStatStore {
	return &SampleStatStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SampleStatStore = (*SampleStatStore)(nil)

// InsertBulk adds multiple stats. Fails entire batch on duplicate
// (pipeline_run_id, variable).
func (s *SampleStatStore) InsertBulk(ctx context.Context, stats []*domain.SampleStat) error {
	if len(stats) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		runID    string
		variable string
	}
	seen := make(map[key]struct{}, len(stats))
	for _, st := range stats {
		if st == nil || st.PipelineRunID == "" || st.Variable == "" {
			return storage.ErrInvalidInput
		}
		k := key{st.PipelineRunID, st.Variable}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, st := range stats {
		exists, err := s.exists(ctx, st.PipelineRunID, st.Variable)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sample_stats (
			pipeline_run_id, variable, pct_low, pct_high,
			lower_bound, upper_bound, clamped_low, clamped_high,
			observations, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, st := range stats {
		err = batch.Append(
			st.PipelineRunID, st.Variable, st.PctLow, st.PctHigh,
			st.LowerBound, st.UpperBound, st.ClampedLow, st.ClampedHigh,
			st.Observations, st.CreatedAt,
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

// GetByPipelineRun retrieves stats for a run, ordered by variable ASC.
func (s *SampleStatStore) GetByPipelineRun(ctx context.Context, runID string) ([]*domain.SampleStat, error) {
	query := `
		SELECT pipeline_run_id, variable, pct_low, pct_high,
		       lower_bound, upper_bound, clamped_low, clamped_high,
		       observations, created_at
		FROM sample_stats
		WHERE pipeline_run_id = ?
		ORDER BY variable ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by pipeline run: %w", err)
	}
	defer rows.Close()

	return scanSampleStats(rows)
}

// exists checks if a stat with the given key exists.
func (s *SampleStatStore) exists(ctx context.Context, runID, variable string) (bool, error) {
	query := `
		SELECT count(*) FROM sample_stats
		WHERE pipeline_run_id = ? AND variable = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, runID, variable).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanSampleStats scans multiple rows into a slice of SampleStat.
func scanSampleStats(rows chRows) ([]*domain.SampleStat, error) {
	var out []*domain.SampleStat

	for rows.Next() {
		var st domain.SampleStat

		err := rows.Scan(
			&st.PipelineRunID, &st.Variable, &st.PctLow, &st.PctHigh,
			&st.LowerBound, &st.UpperBound, &st.ClampedLow, &st.ClampedHigh,
			&st.Observations, &st.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sample stat row: %w", err)
		}

		out = append(out, &st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample stat rows: %w", err)
	}

	return out, nil
}
