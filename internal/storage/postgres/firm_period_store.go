package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// FirmPeriodStore implements storage.FirmPeriodStore using PostgreSQL.
// The (gvkey, report_date) unique constraint enforces the one-record-per-key
// contract at the database level.
type FirmPeriodStore struct {
	pool *Pool
}

// NewFirmPeriodStore creates a new FirmPeriodStore.
func NewFirmPeriodStore(pool *Pool) *FirmPeriodStore {
	return &FirmPeriodStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FirmPeriodStore = (*FirmPeriodStore)(nil)

// Insert adds a firm period. Returns ErrDuplicateKey if the period_id or the
// (gvkey, report date) key exists.
func (s *FirmPeriodStore) Insert(ctx context.Context, p *domain.FirmPeriod) error {
	if p == nil || p.PeriodID == "" || p.GVKey == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO firm_periods (
			period_id, gvkey, report_date, fiscal_year, fiscal_quarter, reported_quarter, sic,
			atq, cheq, dlcq, dlttq, saleq, ibq, dpq, ppentq, xrdq,
			source_records, resolution, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PeriodID,
		p.GVKey,
		p.ReportDate,
		p.FiscalYear,
		p.FiscalQuarter,
		p.ReportedQuarter,
		p.SIC,
		p.Fields.ATQ,
		p.Fields.CHEQ,
		p.Fields.DLCQ,
		p.Fields.DLTTQ,
		p.Fields.SALEQ,
		p.Fields.IBQ,
		p.Fields.DPQ,
		p.Fields.PPENTQ,
		p.Fields.XRDQ,
		p.SourceRecords,
		p.Resolution,
		p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert firm period: %w", err)
	}
	return nil
}

// InsertBulk adds multiple periods atomically. Fails entire batch on any duplicate.
func (s *FirmPeriodStore) InsertBulk(ctx context.Context, periods []*domain.FirmPeriod) error {
	if len(periods) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO firm_periods (
			period_id, gvkey, report_date, fiscal_year, fiscal_quarter, reported_quarter, sic,
			atq, cheq, dlcq, dlttq, saleq, ibq, dpq, ppentq, xrdq,
			source_records, resolution, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	for _, p := range periods {
		if p == nil || p.PeriodID == "" || p.GVKey == "" {
			return storage.ErrInvalidInput
		}

		_, err := tx.Exec(ctx, query,
			p.PeriodID,
			p.GVKey,
			p.ReportDate,
			p.FiscalYear,
			p.FiscalQuarter,
			p.ReportedQuarter,
			p.SIC,
			p.Fields.ATQ,
			p.Fields.CHEQ,
			p.Fields.DLCQ,
			p.Fields.DLTTQ,
			p.Fields.SALEQ,
			p.Fields.IBQ,
			p.Fields.DPQ,
			p.Fields.PPENTQ,
			p.Fields.XRDQ,
			p.SourceRecords,
			p.Resolution,
			p.CreatedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert firm period in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a period by its ID. Returns ErrNotFound if not exists.
func (s *FirmPeriodStore) GetByID(ctx context.Context, periodID string) (*domain.FirmPeriod, error) {
	if periodID == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT period_id, gvkey, report_date, fiscal_year, fiscal_quarter, reported_quarter, sic,
		       atq, cheq, dlcq, dlttq, saleq, ibq, dpq, ppentq, xrdq,
		       source_records, resolution, created_at
		FROM firm_periods
		WHERE period_id = $1
	`

	p, err := scanFirmPeriod(s.pool.QueryRow(ctx, query, periodID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get firm period by id: %w", err)
	}
	return p, nil
}

// GetByKey retrieves the period for (gvkey, report date). Returns ErrNotFound
// if not exists.
func (s *FirmPeriodStore) GetByKey(ctx context.Context, gvkey string, reportDate time.Time) (*domain.FirmPeriod, error) {
	if gvkey == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT period_id, gvkey, report_date, fiscal_year, fiscal_quarter, reported_quarter, sic,
		       atq, cheq, dlcq, dlttq, saleq, ibq, dpq, ppentq, xrdq,
		       source_records, resolution, created_at
		FROM firm_periods
		WHERE gvkey = $1 AND report_date = $2
	`

	p, err := scanFirmPeriod(s.pool.QueryRow(ctx, query, gvkey, reportDate))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get firm period by key: %w", err)
	}
	return p, nil
}

// GetByGVKey retrieves all periods for a firm, ordered by report date ASC.
func (s *FirmPeriodStore) GetByGVKey(ctx context.Context, gvkey string) ([]*domain.FirmPeriod, error) {
	query := `
		SELECT period_id, gvkey, report_date, fiscal_year, fiscal_quarter, reported_quarter, sic,
		       atq, cheq, dlcq, dlttq, saleq, ibq, dpq, ppentq, xrdq,
		       source_records, resolution, created_at
		FROM firm_periods
		WHERE gvkey = $1
		ORDER BY report_date ASC
	`

	rows, err := s.pool.Query(ctx, query, gvkey)
	if err != nil {
		return nil, fmt.Errorf("get firm periods by gvkey: %w", err)
	}
	defer rows.Close()

	return scanFirmPeriods(rows)
}

// ListGVKeys returns the distinct firm identifiers present, sorted ASC.
func (s *FirmPeriodStore) ListGVKeys(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT gvkey
		FROM firm_periods
		ORDER BY gvkey ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list gvkeys: %w", err)
	}
	defer rows.Close()

	var gvkeys []string
	for rows.Next() {
		var gvkey string
		if err := rows.Scan(&gvkey); err != nil {
			return nil, fmt.Errorf("scan gvkey: %w", err)
		}
		gvkeys = append(gvkeys, gvkey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gvkeys: %w", err)
	}

	return gvkeys, nil
}

// scanFirmPeriod scans a single row into a FirmPeriod.
func scanFirmPeriod(row pgx.Row) (*domain.FirmPeriod, error) {
	var p domain.FirmPeriod

	err := row.Scan(
		&p.PeriodID,
		&p.GVKey,
		&p.ReportDate,
		&p.FiscalYear,
		&p.FiscalQuarter,
		&p.ReportedQuarter,
		&p.SIC,
		&p.Fields.ATQ,
		&p.Fields.CHEQ,
		&p.Fields.DLCQ,
		&p.Fields.DLTTQ,
		&p.Fields.SALEQ,
		&p.Fields.IBQ,
		&p.Fields.DPQ,
		&p.Fields.PPENTQ,
		&p.Fields.XRDQ,
		&p.SourceRecords,
		&p.Resolution,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ReportDate = p.ReportDate.UTC()
	return &p, nil
}

// scanFirmPeriods scans multiple rows into a slice of FirmPeriod.
func scanFirmPeriods(rows pgx.Rows) ([]*domain.FirmPeriod, error) {
	var periods []*domain.FirmPeriod

	for rows.Next() {
		p, err := scanFirmPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan firm period row: %w", err)
		}
		periods = append(periods, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firm period rows: %w", err)
	}

	return periods, nil
}
