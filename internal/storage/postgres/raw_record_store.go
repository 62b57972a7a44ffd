package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// RawRecordStore implements storage.RawRecordStore using PostgreSQL.
type RawRecordStore struct {
	pool *Pool
}

// NewRawRecordStore creates a new RawRecordStore.
func NewRawRecordStore(pool *Pool) *RawRecordStore {
	return &RawRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RawRecordStore = (*RawRecordStore)(nil)

// Insert adds a raw record. Returns ErrDuplicateKey if record_id exists.
func (s *RawRecordStore) Insert(ctx context.Context, r *domain.RawAccountingRecord) error {
	if r == nil || r.RecordID == "" || r.GVKey == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO raw_records (
			record_id, gvkey, report_date, fiscal_year, fiscal_quarter, reported_quarter, sic,
			atq, cheq, dlcq, dlttq, saleq, ibq, dpq, ppentq, xrdq,
			source_line, loaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RecordID,
		r.GVKey,
		r.ReportDate,
		r.FiscalYear,
		r.FiscalQuarter,
		r.ReportedQuarter,
		r.SIC,
		r.Fields.ATQ,
		r.Fields.CHEQ,
		r.Fields.DLCQ,
		r.Fields.DLTTQ,
		r.Fields.SALEQ,
		r.Fields.IBQ,
		r.Fields.DPQ,
		r.Fields.PPENTQ,
		r.Fields.XRDQ,
		r.SourceLine,
		r.LoadedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert raw record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *RawRecordStore) InsertBulk(ctx context.Context, records []*domain.RawAccountingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO raw_records (
			record_id, gvkey, report_date, fiscal_year, fiscal_quarter, reported_quarter, sic,
			atq, cheq, dlcq, dlttq, saleq, ibq, dpq, ppentq, xrdq,
			source_line, loaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	for _, r := range records {
		if r == nil || r.RecordID == "" || r.GVKey == "" {
			return storage.ErrInvalidInput
		}

		_, err := tx.Exec(ctx, query,
			r.RecordID,
			r.GVKey,
			r.ReportDate,
			r.FiscalYear,
			r.FiscalQuarter,
			r.ReportedQuarter,
			r.SIC,
			r.Fields.ATQ,
			r.Fields.CHEQ,
			r.Fields.DLCQ,
			r.Fields.DLTTQ,
			r.Fields.SALEQ,
			r.Fields.IBQ,
			r.Fields.DPQ,
			r.Fields.PPENTQ,
			r.Fields.XRDQ,
			r.SourceLine,
			r.LoadedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert raw record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByGVKey retrieves all raw records for a firm, ordered by report date ASC
// then source line ASC. Duplicate (gvkey, report date) keys come out adjacent.
func (s *RawRecordStore) GetByGVKey(ctx context.Context, gvkey string) ([]*domain.RawAccountingRecord, error) {
	query := `
		SELECT record_id, gvkey, report_date, fiscal_year, fiscal_quarter, reported_quarter, sic,
		       atq, cheq, dlcq, dlttq, saleq, ibq, dpq, ppentq, xrdq,
		       source_line, loaded_at
		FROM raw_records
		WHERE gvkey = $1
		ORDER BY report_date ASC, source_line ASC
	`

	rows, err := s.pool.Query(ctx, query, gvkey)
	if err != nil {
		return nil, fmt.Errorf("get raw records by gvkey: %w", err)
	}
	defer rows.Close()

	return scanRawRecords(rows)
}

// ListGVKeys returns the distinct firm identifiers present, sorted ASC.
func (s *RawRecordStore) ListGVKeys(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT gvkey
		FROM raw_records
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

// Count returns the total number of raw records.
func (s *RawRecordStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM raw_records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count raw records: %w", err)
	}
	return count, nil
}

// scanRawRecords scans multiple rows into a slice of RawAccountingRecord.
func scanRawRecords(rows pgx.Rows) ([]*domain.RawAccountingRecord, error) {
	var records []*domain.RawAccountingRecord

	for rows.Next() {
		var r domain.RawAccountingRecord

		err := rows.Scan(
			&r.RecordID,
			&r.GVKey,
			&r.ReportDate,
			&r.FiscalYear,
			&r.FiscalQuarter,
			&r.ReportedQuarter,
			&r.SIC,
			&r.Fields.ATQ,
			&r.Fields.CHEQ,
			&r.Fields.DLCQ,
			&r.Fields.DLTTQ,
			&r.Fields.SALEQ,
			&r.Fields.IBQ,
			&r.Fields.DPQ,
			&r.Fields.PPENTQ,
			&r.Fields.XRDQ,
			&r.SourceLine,
			&r.LoadedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan raw record row: %w", err)
		}

		// Report dates compare against calendar.Date values, which are UTC.
		r.ReportDate = r.ReportDate.UTC()

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw record rows: %w", err)
	}

	return records, nil
}
