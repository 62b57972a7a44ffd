package pipeline

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/idhash"
	"firm-panel-lab/internal/ingestion"
	"firm-panel-lab/internal/normalization"
	"firm-panel-lab/internal/sample"
	"firm-panel-lab/internal/storage/memory"
	"firm-panel-lab/internal/verification"
)

type fixtureStores struct {
	panel     *memory.PanelRowStore
	periods   *memory.FirmPeriodStore
	shocks    *memory.ShockEventStore
	patents   *memory.PatentGrantStore
	runs      *memory.PipelineRunStore
	attrition *memory.AttritionStore
	stats     *memory.SampleStatStore
}

// buildFixturePanel runs the fixtures through resolution, normalization and
// the sample filter, and stores the panel with run accounting.
func buildFixturePanel(t *testing.T) *fixtureStores {
	t.Helper()
	ctx := context.Background()

	s := &fixtureStores{
		panel:     memory.NewPanelRowStore(),
		periods:   memory.NewFirmPeriodStore(),
		shocks:    memory.NewShockEventStore(),
		patents:   memory.NewPatentGrantStore(),
		runs:      memory.NewPipelineRunStore(),
		attrition: memory.NewAttritionStore(),
		stats:     memory.NewSampleStatStore(),
	}

	rawStore := memory.NewRawRecordStore()
	if err := LoadFixtures(ctx, rawStore, s.shocks, s.patents); err != nil {
		t.Fatalf("Failed to load fixtures: %v", err)
	}

	mgr := ingestion.NewManager(ingestion.ManagerOptions{
		RawStore:    rawStore,
		PeriodStore: s.periods,
		Logger:      log.New(io.Discard, "", 0),
	})
	if _, err := mgr.ResolveDuplicates(ctx); err != nil {
		t.Fatalf("Failed to resolve duplicates: %v", err)
	}

	runner := normalization.NewRunner(s.periods, s.shocks, s.patents, log.New(io.Discard, "", 0))
	rows, _, err := runner.NormalizeAll(ctx)
	if err != nil {
		t.Fatalf("Failed to normalize: %v", err)
	}

	runID := idhash.ComputePipelineRunID(fixtureLoadedAt, "fixture")
	censored := sample.Censor(rows)
	stats := sample.Winsorize(rows, runID, 0.01, 0.99, fixtureLoadedAt)

	if err := s.panel.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("Failed to store panel rows: %v", err)
	}
	if err := s.stats.InsertBulk(ctx, stats); err != nil {
		t.Fatalf("Failed to store sample stats: %v", err)
	}

	inSample := int64(0)
	for _, row := range rows {
		if row.InSample {
			inSample++
		}
	}
	if len(censored) != 0 {
		t.Fatalf("Fixture panel unexpectedly censored rows: %v", censored)
	}

	finished := int64(fixtureLoadedAt + 60000)
	run := &domain.PipelineRun{
		RunID:        runID,
		StartedAtMs:  fixtureLoadedAt,
		FinishedAtMs: &finished,
		Status:       domain.RunStatusCompleted,
		RawRecords:   18,
		FirmPeriods:  int64(len(rows)),
		PanelRows:    int64(len(rows)),
		SampleRows:   inSample,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}

	return s
}

func newFixturePipeline(s *fixtureStores, outputDir string) *ReportPipeline {
	fixedTime := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	return NewReportPipeline(s.panel, s.runs, s.attrition, s.stats, outputDir).
		WithSufficiencyChecker(NewSufficiencyChecker(s.panel)).
		WithVerifier(verification.NewPanelVerifier(verification.PanelVerifierOptions{
			PanelStore:  s.panel,
			PeriodStore: s.periods,
			ShockStore:  s.shocks,
			PatentStore: s.patents,
		})).
		WithDataSource("fixtures").
		WithClock(func() time.Time { return fixedTime })
}

func TestReportPipeline_Run(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	s := buildFixturePanel(t)
	p := newFixturePipeline(s, tempDir)

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	files := []string{"PANEL_REPORT.md", "panel_rows.csv", "attrition.csv", "sample_stats.csv"}
	for _, f := range files {
		path := filepath.Join(tempDir, f)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("Expected file %s does not exist", f)
		}
	}
}

func TestReportPipeline_OutputFormat(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	s := buildFixturePanel(t)
	p := newFixturePipeline(s, tempDir)

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	reportData, err := os.ReadFile(filepath.Join(tempDir, "PANEL_REPORT.md"))
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	report := string(reportData)

	if !strings.Contains(report, "# Firm-Quarter Panel Report") {
		t.Error("Report should contain header")
	}
	if !strings.Contains(report, "Generated: 2026-01-15T12:00:00Z") {
		t.Error("Report should contain the fixed timestamp")
	}
	if !strings.Contains(report, "| Firms | 3 |") {
		t.Error("Report should count 3 firms")
	}
	if !strings.Contains(report, "| Panel Rows | 16 |") {
		t.Error("Report should count 16 panel rows")
	}
	if !strings.Contains(report, "| Aligned Share | 1.0000 |") {
		t.Error("Report should show a fully aligned panel")
	}

	// Three fixture firms sit far below the firm-count threshold.
	if !strings.Contains(report, "| Distinct firms | >= 20 | 3 | FAIL |") {
		t.Error("Report should fail the firm-count check")
	}
	if !strings.Contains(report, "**Some checks failed.**") {
		t.Error("Report should flag the failed checks")
	}

	// The built panel satisfies the invariant battery.
	if !strings.Contains(report, "| Panel invariants | 0 violations | 0 violations | PASS |") {
		t.Error("Report should pass the invariant battery")
	}

	if !strings.Contains(report, "## Reproducibility") {
		t.Error("Report should contain reproducibility section")
	}
	if !strings.Contains(report, "| Generator Version | 1.0.0 |") {
		t.Error("Report should carry the generator version")
	}
	if !strings.Contains(report, "go run cmd/report/main.go --use-fixtures") {
		t.Error("Report should carry the fixture source command")
	}

	rowsData, err := os.ReadFile(filepath.Join(tempDir, "panel_rows.csv"))
	if err != nil {
		t.Fatalf("Failed to read panel_rows.csv: %v", err)
	}
	rowsCSV := string(rowsData)
	if !strings.HasPrefix(rowsCSV, "period_id,gvkey,report_date,") {
		t.Error("panel_rows.csv should have proper header")
	}
	lines := strings.Split(strings.TrimSpace(rowsCSV), "\n")
	if len(lines) != 17 {
		t.Errorf("panel_rows.csv should have header + 16 rows, got %d lines", len(lines))
	}

	attritionData, err := os.ReadFile(filepath.Join(tempDir, "attrition.csv"))
	if err != nil {
		t.Fatalf("Failed to read attrition.csv: %v", err)
	}
	// The fixture panel loses no rows, so the export is header-only.
	if strings.TrimSpace(string(attritionData)) != "stage,reason,count" {
		t.Errorf("attrition.csv should be header-only, got %q", string(attritionData))
	}

	statsData, err := os.ReadFile(filepath.Join(tempDir, "sample_stats.csv"))
	if err != nil {
		t.Fatalf("Failed to read sample_stats.csv: %v", err)
	}
	statsCSV := string(statsData)
	if !strings.Contains(statsCSV, "leverage,0.01,0.99,") {
		t.Error("sample_stats.csv should carry the leverage winsorization row")
	}
	statLines := strings.Split(strings.TrimSpace(statsCSV), "\n")
	if len(statLines) != 1+len(domain.AnalysisVariables) {
		t.Errorf("sample_stats.csv should have header + %d rows, got %d lines",
			len(domain.AnalysisVariables), len(statLines))
	}
}

func TestReportPipeline_Deterministic(t *testing.T) {
	ctx := context.Background()

	var outputs []map[string]string
	files := []string{"PANEL_REPORT.md", "panel_rows.csv", "attrition.csv", "sample_stats.csv"}

	for run := 0; run < 2; run++ {
		tempDir := t.TempDir()
		s := buildFixturePanel(t)
		p := newFixturePipeline(s, tempDir)

		if err := p.Run(ctx); err != nil {
			t.Fatalf("Run %d failed: %v", run, err)
		}

		runOutput := make(map[string]string)
		for _, f := range files {
			data, err := os.ReadFile(filepath.Join(tempDir, f))
			if err != nil {
				t.Fatalf("Run %d: failed to read %s: %v", run, f, err)
			}
			runOutput[f] = string(data)
		}
		outputs = append(outputs, runOutput)
	}

	for _, f := range files {
		if outputs[0][f] != outputs[1][f] {
			t.Errorf("File %s is not deterministic between runs", f)
		}
	}
}

func TestReportPipeline_NoChecksConfigured(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	s := buildFixturePanel(t)
	fixedTime := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	p := NewReportPipeline(s.panel, s.runs, s.attrition, s.stats, tempDir).
		WithClock(func() time.Time { return fixedTime })

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	reportData, err := os.ReadFile(filepath.Join(tempDir, "PANEL_REPORT.md"))
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	if !strings.Contains(string(reportData), "No sample quality checks performed.") {
		t.Error("Report without checks should say so")
	}
}

func TestReportPipeline_InvariantViolationSurfaces(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	// Two rows under the same (gvkey, report date) key. The store only keys
	// on period_id, so the battery has to catch it.
	panelStore := memory.NewPanelRowStore()
	rows := []*domain.PanelRow{
		testPanelRow("p-first", "001000", 0, true, true),
		testPanelRow("p-second", "001000", 0, true, true),
	}
	if err := panelStore.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("Failed to seed panel: %v", err)
	}

	runStore := memory.NewPipelineRunStore()
	attritionStore := memory.NewAttritionStore()
	statStore := memory.NewSampleStatStore()

	fixedTime := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	p := NewReportPipeline(panelStore, runStore, attritionStore, statStore, tempDir).
		WithVerifier(verification.NewPanelVerifier(verification.PanelVerifierOptions{
			PanelStore:  panelStore,
			PeriodStore: memory.NewFirmPeriodStore(),
			ShockStore:  memory.NewShockEventStore(),
			PatentStore: memory.NewPatentGrantStore(),
		})).
		WithClock(func() time.Time { return fixedTime })

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	reportData, err := os.ReadFile(filepath.Join(tempDir, "PANEL_REPORT.md"))
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	report := string(reportData)

	if !strings.Contains(report, "### Invariant Violations") {
		t.Error("Report should list invariant violations")
	}
	if !strings.Contains(report, "unique_key: gvkey=001000") {
		t.Error("Report should name the duplicate-key violation")
	}
	if !strings.Contains(report, "**Some checks failed.**") {
		t.Error("Violations should fail the sample quality section")
	}
}

func TestReportPipeline_DBSourceCommand(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	s := buildFixturePanel(t)
	fixedTime := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	p := NewReportPipeline(s.panel, s.runs, s.attrition, s.stats, tempDir).
		WithDBSource("postgres://panel@localhost/panel", "clickhouse://localhost:9000/panel").
		WithClock(func() time.Time { return fixedTime })

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	reportData, err := os.ReadFile(filepath.Join(tempDir, "PANEL_REPORT.md"))
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	report := string(reportData)

	if !strings.Contains(report, `--postgres-dsn "postgres://panel@localhost/panel"`) {
		t.Error("Report should carry the postgres DSN in the source command")
	}
	if !strings.Contains(report, `--clickhouse-dsn "clickhouse://localhost:9000/panel"`) {
		t.Error("Report should carry the clickhouse DSN in the source command")
	}
}
