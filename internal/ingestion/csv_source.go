package ingestion

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/idhash"
)

// accountingRow mirrors one line of the quarterly accounting export. All
// columns are read as strings so a malformed cell rejects its row instead of
// failing the whole file.
type accountingRow struct {
	GVKey    string `csv:"gvkey"`
	DataDate string `csv:"datadate"`
	FYearQ   string `csv:"fyearq"`
	FQtr     string `csv:"fqtr"`
	DataCQtr string `csv:"datacqtr"`
	SIC      string `csv:"sic"`
	ATQ      string `csv:"atq"`
	CHEQ     string `csv:"cheq"`
	DLCQ     string `csv:"dlcq"`
	DLTTQ    string `csv:"dlttq"`
	SALEQ    string `csv:"saleq"`
	IBQ      string `csv:"ibq"`
	DPQ      string `csv:"dpq"`
	PPENTQ   string `csv:"ppentq"`
	XRDQ     string `csv:"xrdq"`
}

// CSVAccountingSource reads the accounting panel from a CSV export.
type CSVAccountingSource struct {
	path string
}

// NewCSVAccountingSource creates a source reading the given CSV file.
func NewCSVAccountingSource(path string) *CSVAccountingSource {
	return &CSVAccountingSource{path: path}
}

// Fetch parses the file and returns schema-valid records plus per-row rejects.
func (s *CSVAccountingSource) Fetch(_ context.Context) ([]*domain.RawAccountingRecord, []RowError, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open accounting csv: %w", err)
	}
	defer f.Close()

	var rows []*accountingRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, nil, fmt.Errorf("parse accounting csv: %w", err)
	}

	loadedAt := time.Now().UnixMilli()
	var records []*domain.RawAccountingRecord
	var rejects []RowError

	for i, row := range rows {
		line := i + 1 // 1-based data row, header excluded
		rec, rowErr := convertAccountingRow(row, line)
		if rowErr != nil {
			rejects = append(rejects, *rowErr)
			continue
		}
		rec.LoadedAt = loadedAt
		records = append(records, rec)
	}

	return records, rejects, nil
}

// convertAccountingRow parses the string cells into a raw record and runs
// schema validation. Returns a RowError for the first failing cell or rule.
func convertAccountingRow(row *accountingRow, line int) (*domain.RawAccountingRecord, *RowError) {
	gvkey := strings.TrimSpace(row.GVKey)
	if gvkey == "" {
		return nil, &RowError{Line: line, Reason: ReasonMissingGVKey}
	}

	reportDate, err := time.Parse("2006-01-02", strings.TrimSpace(row.DataDate))
	if err != nil {
		return nil, &RowError{Line: line, Reason: ReasonBadReportDate, Detail: row.DataDate}
	}

	fiscalYear, err := strconv.Atoi(strings.TrimSpace(row.FYearQ))
	if err != nil {
		return nil, &RowError{Line: line, Reason: ReasonBadFiscalYear, Detail: row.FYearQ}
	}

	fiscalQuarter, err := strconv.Atoi(strings.TrimSpace(row.FQtr))
	if err != nil {
		return nil, &RowError{Line: line, Reason: ReasonBadFiscalQuarter, Detail: row.FQtr}
	}

	rec := &domain.RawAccountingRecord{
		RecordID:        idhash.ComputeRecordID(gvkey, reportDate, line),
		GVKey:           gvkey,
		ReportDate:      reportDate,
		FiscalYear:      fiscalYear,
		FiscalQuarter:   fiscalQuarter,
		ReportedQuarter: strings.TrimSpace(row.DataCQtr),
		SIC:             strings.TrimSpace(row.SIC),
		SourceLine:      line,
	}

	cells := map[string]string{
		"atq": row.ATQ, "cheq": row.CHEQ, "dlcq": row.DLCQ, "dlttq": row.DLTTQ,
		"saleq": row.SALEQ, "ibq": row.IBQ, "dpq": row.DPQ, "ppentq": row.PPENTQ,
		"xrdq": row.XRDQ,
	}
	for _, name := range domain.FieldNames {
		v, rowErr := parseNullableFloat(cells[name], line)
		if rowErr != nil {
			return nil, rowErr
		}
		rec.Fields.Set(name, v)
	}

	if reason := ValidateRecord(rec); reason != "" {
		return nil, &RowError{Line: line, Reason: reason}
	}

	return rec, nil
}

// parseNullableFloat converts a cell to a float pointer. Empty cells mean a
// missing value, not zero.
func parseNullableFloat(cell string, line int) (*float64, *RowError) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil, &RowError{Line: line, Reason: ReasonBadNumeric, Detail: cell}
	}
	return &v, nil
}
