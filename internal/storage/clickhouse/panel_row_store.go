package clickhouse

import (
	"context"
	"fmt"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// PanelRowStore implements storage.PanelRowStore using ClickHouse.
// MergeTree does not enforce uniqueness, so duplicate period_ids are rejected
// by explicit checks before the batch is sent.
type PanelRowStore struct {
	conn *Conn
}

// NewPanelRowStore creates a new PanelRowStore.
func NewPanelRowStore(conn *Conn) *PanelRowStore {
	return &PanelRowStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PanelRowStore = (*PanelRowStore)(nil)

// InsertBulk adds multiple rows. Fails entire batch on duplicate period_id.
func (s *PanelRowStore) InsertBulk(ctx context.Context, rows []*domain.PanelRow) error {
	if len(rows) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row == nil || row.PeriodID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[row.PeriodID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[row.PeriodID] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, row := range rows {
		exists, err := s.exists(ctx, row.PeriodID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO panel_rows (
			period_id, gvkey, report_date, fiscal_year, fiscal_quarter, reported_quarter, sic,
			atq, cheq, dlcq, dlttq, saleq, ibq, dpq, ppentq, xrdq,
			calendar_quarter, calendar_aligned, expected_quarter_days,
			quarter_end_ms, quarter_end1_ms, quarter_end2_ms,
			lag1_genuine, lag2_genuine, lag_unavailable,
			run_id, run_seq, gap_days,
			leverage, liquidity, investment, cash_flow, sales_growth, size, rd_intensity,
			patent_count, shock_count, shock_sum,
			in_sample, exclude_reason, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, row := range rows {
		err = batch.Append(
			row.PeriodID, row.GVKey, row.ReportDate,
			int32(row.FiscalYear), int32(row.FiscalQuarter), row.ReportedQuarter, row.SIC,
			row.Fields.ATQ, row.Fields.CHEQ, row.Fields.DLCQ, row.Fields.DLTTQ,
			row.Fields.SALEQ, row.Fields.IBQ, row.Fields.DPQ, row.Fields.PPENTQ, row.Fields.XRDQ,
			row.CalendarQuarter, row.CalendarAligned, int32(row.ExpectedQuarterDays),
			row.QuarterEndMs, row.QuarterEnd1Ms, row.QuarterEnd2Ms,
			row.Lag1Genuine, row.Lag2Genuine, row.LagUnavailable,
			int32(row.RunID), int32(row.RunSeq), row.GapDays,
			row.Leverage, row.Liquidity, row.Investment, row.CashFlow,
			row.SalesGrowth, row.Size, row.RDIntensity,
			row.PatentCount, row.ShockCount, row.ShockSum,
			row.InSample, row.ExcludeReason, row.CreatedAt,
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

// GetByGVKey retrieves all rows for a firm, ordered by report date ASC.
func (s *PanelRowStore) GetByGVKey(ctx context.Context, gvkey string) ([]*domain.PanelRow, error) {
	query := selectPanelRows + `
		WHERE gvkey = ?
		ORDER BY report_date ASC
	`

	rows, err := s.conn.Query(ctx, query, gvkey)
	if err != nil {
		return nil, fmt.Errorf("query by gvkey: %w", err)
	}
	defer rows.Close()

	return scanPanelRows(rows)
}

// GetByTimeRange retrieves rows for a firm whose quarter endpoint falls within
// [start, end] (inclusive, ms).
func (s *PanelRowStore) GetByTimeRange(ctx context.Context, gvkey string, start, end int64) ([]*domain.PanelRow, error) {
	query := selectPanelRows + `
		WHERE gvkey = ? AND quarter_end_ms >= ? AND quarter_end_ms <= ?
		ORDER BY quarter_end_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, gvkey, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPanelRows(rows)
}

// GetAll retrieves the full panel, ordered by gvkey ASC, report date ASC.
func (s *PanelRowStore) GetAll(ctx context.Context) ([]*domain.PanelRow, error) {
	query := selectPanelRows + `
		ORDER BY gvkey ASC, report_date ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	defer rows.Close()

	return scanPanelRows(rows)
}

// exists checks if a row with the given period_id exists.
func (s *PanelRowStore) exists(ctx context.Context, periodID string) (bool, error) {
	query := `
		SELECT count(*) FROM panel_rows
		WHERE period_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, periodID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

const selectPanelRows = `
	SELECT period_id, gvkey, report_date, fiscal_year, fiscal_quarter, reported_quarter, sic,
	       atq, cheq, dlcq, dlttq, saleq, ibq, dpq, ppentq, xrdq,
	       calendar_quarter, calendar_aligned, expected_quarter_days,
	       quarter_end_ms, quarter_end1_ms, quarter_end2_ms,
	       lag1_genuine, lag2_genuine, lag_unavailable,
	       run_id, run_seq, gap_days,
	       leverage, liquidity, investment, cash_flow, sales_growth, size, rd_intensity,
	       patent_count, shock_count, shock_sum,
	       in_sample, exclude_reason, created_at
	FROM panel_rows
`

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanPanelRows scans multiple rows into a slice of PanelRow.
func scanPanelRows(rows chRows) ([]*domain.PanelRow, error) {
	var out []*domain.PanelRow

	for rows.Next() {
		var row domain.PanelRow
		var fiscalYear, fiscalQuarter, expectedDays, runID, runSeq int32

		err := rows.Scan(
			&row.PeriodID, &row.GVKey, &row.ReportDate,
			&fiscalYear, &fiscalQuarter, &row.ReportedQuarter, &row.SIC,
			&row.Fields.ATQ, &row.Fields.CHEQ, &row.Fields.DLCQ, &row.Fields.DLTTQ,
			&row.Fields.SALEQ, &row.Fields.IBQ, &row.Fields.DPQ, &row.Fields.PPENTQ, &row.Fields.XRDQ,
			&row.CalendarQuarter, &row.CalendarAligned, &expectedDays,
			&row.QuarterEndMs, &row.QuarterEnd1Ms, &row.QuarterEnd2Ms,
			&row.Lag1Genuine, &row.Lag2Genuine, &row.LagUnavailable,
			&runID, &runSeq, &row.GapDays,
			&row.Leverage, &row.Liquidity, &row.Investment, &row.CashFlow,
			&row.SalesGrowth, &row.Size, &row.RDIntensity,
			&row.PatentCount, &row.ShockCount, &row.ShockSum,
			&row.InSample, &row.ExcludeReason, &row.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan panel row: %w", err)
		}

		row.FiscalYear = int(fiscalYear)
		row.FiscalQuarter = int(fiscalQuarter)
		row.ExpectedQuarterDays = int(expectedDays)
		row.RunID = int(runID)
		row.RunSeq = int(runSeq)
		row.ReportDate = row.ReportDate.UTC()

		out = append(out, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate panel rows: %w", err)
	}

	return out, nil
}
