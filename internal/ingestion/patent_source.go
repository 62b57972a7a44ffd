package ingestion

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"firm-panel-lab/internal/domain"
)

// patentRow mirrors one line of the patent grant export.
type patentRow struct {
	PatentID string `csv:"patent_id"`
	GVKey    string `csv:"gvkey"`
	Granted  string `csv:"granted"`
	Value    string `csv:"value"`
}

// CSVPatentSource reads firm patent grants from a CSV export.
type CSVPatentSource struct {
	path string
}

// NewCSVPatentSource creates a source reading the given CSV file.
func NewCSVPatentSource(path string) *CSVPatentSource {
	return &CSVPatentSource{path: path}
}

// Fetch parses the file and returns patent grants plus per-row rejects.
func (s *CSVPatentSource) Fetch(_ context.Context) ([]*domain.PatentGrant, []RowError, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open patent csv: %w", err)
	}
	defer f.Close()

	var rows []*patentRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, nil, fmt.Errorf("parse patent csv: %w", err)
	}

	createdAt := time.Now().UnixMilli()
	var grants []*domain.PatentGrant
	var rejects []RowError

	for i, row := range rows {
		line := i + 1
		patentID := strings.TrimSpace(row.PatentID)
		if patentID == "" {
			rejects = append(rejects, RowError{Line: line, Reason: ReasonMissingEventID})
			continue
		}

		gvkey := strings.TrimSpace(row.GVKey)
		if gvkey == "" {
			rejects = append(rejects, RowError{Line: line, Reason: ReasonMissingGVKey})
			continue
		}

		granted, err := time.Parse("2006-01-02", strings.TrimSpace(row.Granted))
		if err != nil {
			rejects = append(rejects, RowError{Line: line, Reason: ReasonBadReportDate, Detail: row.Granted})
			continue
		}

		value, rowErr := parseNullableFloat(row.Value, line)
		if rowErr != nil {
			rejects = append(rejects, *rowErr)
			continue
		}

		grants = append(grants, &domain.PatentGrant{
			PatentID:    patentID,
			GVKey:       gvkey,
			GrantedAtMs: granted.UTC().UnixMilli(),
			Value:       value,
			CreatedAt:   createdAt,
		})
	}

	return grants, rejects, nil
}
