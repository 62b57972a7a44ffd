package ingestion

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/idhash"
)

// shockDateLayouts are the date formats accepted in the announcement column.
// Spreadsheet exports render date cells inconsistently.
var shockDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
}

// XLSXShockSource reads a monetary-policy shock series from an Excel workbook.
// The sheet must carry a header row with "series", "date" and "surprise"
// columns; rows above the header are ignored.
type XLSXShockSource struct {
	path  string
	sheet string // empty selects the first sheet
}

// NewXLSXShockSource creates a source reading the given workbook. Pass an
// empty sheet name to use the workbook's first sheet.
func NewXLSXShockSource(path, sheet string) *XLSXShockSource {
	return &XLSXShockSource{path: path, sheet: sheet}
}

// Fetch parses the workbook and returns shock events plus per-row rejects.
func (s *XLSXShockSource) Fetch(_ context.Context) ([]*domain.ShockEvent, []RowError, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open shock workbook: %w", err)
	}
	defer f.Close()

	sheet := s.sheet
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, nil, fmt.Errorf("shock workbook has no sheets")
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	headerIdx, cols := findShockHeader(rows)
	if headerIdx < 0 {
		return nil, nil, fmt.Errorf("sheet %q has no series/date/surprise header", sheet)
	}

	createdAt := time.Now().UnixMilli()
	var events []*domain.ShockEvent
	var rejects []RowError

	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		line := i + 1 // 1-based worksheet row
		if rowEmpty(row) {
			continue
		}

		series := strings.TrimSpace(cell(row, cols["series"]))
		if series == "" {
			rejects = append(rejects, RowError{Line: line, Reason: ReasonMissingEventID})
			continue
		}

		announced, ok := parseShockDate(cell(row, cols["date"]))
		if !ok {
			rejects = append(rejects, RowError{Line: line, Reason: ReasonBadReportDate, Detail: cell(row, cols["date"])})
			continue
		}

		surprise, err := strconv.ParseFloat(strings.TrimSpace(cell(row, cols["surprise"])), 64)
		if err != nil {
			rejects = append(rejects, RowError{Line: line, Reason: ReasonBadNumeric, Detail: cell(row, cols["surprise"])})
			continue
		}

		ms := announced.UnixMilli()
		events = append(events, &domain.ShockEvent{
			EventID:       idhash.ComputeShockID(series, ms),
			Series:        series,
			AnnouncedAtMs: ms,
			Surprise:      surprise,
			CreatedAt:     createdAt,
		})
	}

	return events, rejects, nil
}

// findShockHeader locates the header row and maps column names to indices.
// Returns -1 when no row carries all three required columns.
func findShockHeader(rows [][]string) (int, map[string]int) {
	for i, row := range rows {
		cols := make(map[string]int)
		for j, c := range row {
			switch strings.ToLower(strings.TrimSpace(c)) {
			case "series":
				cols["series"] = j
			case "date", "announced", "announcement":
				cols["date"] = j
			case "surprise", "shock":
				cols["surprise"] = j
			}
		}
		if len(cols) == 3 {
			return i, cols
		}
	}
	return -1, nil
}

func parseShockDate(cell string) (time.Time, bool) {
	cell = strings.TrimSpace(cell)
	for _, layout := range shockDateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
