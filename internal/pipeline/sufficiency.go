package pipeline

import (
	"context"
	"fmt"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/storage"
)

// Sufficiency thresholds for an analysis-ready panel.
const (
	MinFirms         = 20
	MinMeanQuarters  = 4.0
	MinAlignedShare  = 0.70
	MinInSampleShare = 0.50
)

// SufficiencyCheck represents one sample sufficiency criterion.
type SufficiencyCheck struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// SufficiencyResult contains all checks plus any integrity errors.
type SufficiencyResult struct {
	Checks  []SufficiencyCheck
	AllPass bool
	Errors  []string // data integrity errors
}

// SufficiencyChecker validates that the built panel is large and clean
// enough to support the analysis.
type SufficiencyChecker struct {
	panelStore storage.PanelRowStore
}

// NewSufficiencyChecker creates a new sufficiency checker.
func NewSufficiencyChecker(panelStore storage.PanelRowStore) *SufficiencyChecker {
	return &SufficiencyChecker{panelStore: panelStore}
}

// Check performs all five sufficiency checks over the stored panel.
func (c *SufficiencyChecker) Check(ctx context.Context) (*SufficiencyResult, error) {
	rows, err := c.panelStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load panel: %w", err)
	}

	result := &SufficiencyResult{
		Checks:  make([]SufficiencyCheck, 0, 5),
		AllPass: true,
		Errors:  []string{},
	}

	firms := make(map[string]struct{})
	aligned := 0
	inSample := 0
	for _, row := range rows {
		firms[row.GVKey] = struct{}{}
		if row.CalendarAligned {
			aligned++
		}
		if row.InSample {
			inSample++
		}
	}

	// Check 1: Distinct firms >= MinFirms
	check1 := checkFirmCount(len(firms))
	result.Checks = append(result.Checks, check1)
	if !check1.Pass {
		result.AllPass = false
	}

	// Check 2: Mean quarters per firm >= MinMeanQuarters
	check2 := checkMeanQuarters(len(rows), len(firms))
	result.Checks = append(result.Checks, check2)
	if !check2.Pass {
		result.AllPass = false
	}

	// Check 3: Calendar-aligned share >= MinAlignedShare
	check3 := checkShare("Calendar-aligned share", aligned, len(rows), MinAlignedShare)
	result.Checks = append(result.Checks, check3)
	if !check3.Pass {
		result.AllPass = false
	}

	// Check 4: In-sample share >= MinInSampleShare
	check4 := checkShare("In-sample share", inSample, len(rows), MinInSampleShare)
	result.Checks = append(result.Checks, check4)
	if !check4.Pass {
		result.AllPass = false
	}

	// Check 5: Duplicate panel keys == 0
	check5, duplicateErrors := checkDuplicateKeys(rows)
	result.Checks = append(result.Checks, check5)
	if !check5.Pass {
		result.AllPass = false
		result.Errors = append(result.Errors, duplicateErrors...)
	}

	return result, nil
}

// checkFirmCount: distinct firms >= MinFirms.
func checkFirmCount(firms int) SufficiencyCheck {
	return SufficiencyCheck{
		Name:      "Distinct firms",
		Threshold: fmt.Sprintf(">= %d", MinFirms),
		Actual:    fmt.Sprintf("%d", firms),
		Pass:      firms >= MinFirms,
	}
}

// checkMeanQuarters: mean panel rows per firm >= MinMeanQuarters.
func checkMeanQuarters(rows, firms int) SufficiencyCheck {
	mean := 0.0
	if firms > 0 {
		mean = float64(rows) / float64(firms)
	}
	return SufficiencyCheck{
		Name:      "Mean quarters per firm",
		Threshold: fmt.Sprintf(">= %.1f", MinMeanQuarters),
		Actual:    fmt.Sprintf("%.2f", mean),
		Pass:      mean >= MinMeanQuarters,
	}
}

// checkShare: count/total >= threshold. An empty panel fails.
func checkShare(name string, count, total int, threshold float64) SufficiencyCheck {
	share := 0.0
	if total > 0 {
		share = float64(count) / float64(total)
	}
	return SufficiencyCheck{
		Name:      name,
		Threshold: fmt.Sprintf(">= %.2f", threshold),
		Actual:    fmt.Sprintf("%.4f", share),
		Pass:      share >= threshold,
	}
}

// checkDuplicateKeys: (gvkey, report date) keys appearing more than once.
func checkDuplicateKeys(rows []*domain.PanelRow) (SufficiencyCheck, []string) {
	type key struct {
		GVKey string
		Date  string
	}
	seen := make(map[key]int)
	for _, row := range rows {
		seen[key{GVKey: row.GVKey, Date: row.ReportDate.Format("2006-01-02")}]++
	}

	var errors []string
	for k, n := range seen {
		if n > 1 {
			errors = append(errors, fmt.Sprintf(
				"duplicate panel key: gvkey=%s report_date=%s rows=%d", k.GVKey, k.Date, n))
		}
	}

	return SufficiencyCheck{
		Name:      "Duplicate panel keys",
		Threshold: "== 0",
		Actual:    fmt.Sprintf("%d", len(errors)),
		Pass:      len(errors) == 0,
	}, errors
}
