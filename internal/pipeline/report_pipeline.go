package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/reporting"
	"firm-panel-lab/internal/storage"
	"firm-panel-lab/internal/verification"
)

// GeneratorVersion identifies the report generator for reproducibility.
const GeneratorVersion = "1.0.0"

// ReportPipeline orchestrates report generation: sufficiency checks, the
// invariant battery, the markdown report and the CSV exports.
type ReportPipeline struct {
	reportGen     *reporting.Generator
	panelStore    storage.PanelRowStore
	checker       *SufficiencyChecker
	verifier      verification.Verifier
	outputDir     string
	clock         func() time.Time
	dataSource    string // "fixtures" or "db" for the source command
	postgresDSN   string
	clickhouseDSN string
}

// NewReportPipeline creates a new report pipeline.
func NewReportPipeline(
	panelStore storage.PanelRowStore,
	runStore storage.PipelineRunStore,
	attritionStore storage.AttritionStore,
	statStore storage.SampleStatStore,
	outputDir string,
) *ReportPipeline {
	return &ReportPipeline{
		reportGen:  reporting.NewGenerator(panelStore, runStore, attritionStore, statStore),
		panelStore: panelStore,
		outputDir:  outputDir,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// WithSufficiencyChecker adds sample sufficiency checks to the pipeline.
func (p *ReportPipeline) WithSufficiencyChecker(checker *SufficiencyChecker) *ReportPipeline {
	p.checker = checker
	return p
}

// WithVerifier adds the panel invariant battery to the pipeline.
func (p *ReportPipeline) WithVerifier(v verification.Verifier) *ReportPipeline {
	p.verifier = v
	return p
}

// WithClock sets a custom clock function for deterministic output.
func (p *ReportPipeline) WithClock(clock func() time.Time) *ReportPipeline {
	p.clock = clock
	p.reportGen = p.reportGen.WithClock(clock)
	return p
}

// WithDataSource sets the data source for reproducibility metadata.
// Use "fixtures" for fixture mode. For DB mode, use WithDBSource instead.
func (p *ReportPipeline) WithDataSource(source string) *ReportPipeline {
	p.dataSource = source
	return p
}

// WithDBSource sets the data source to DB mode with the DSNs that appear in
// the source command.
func (p *ReportPipeline) WithDBSource(postgresDSN, clickhouseDSN string) *ReportPipeline {
	p.dataSource = "db"
	p.postgresDSN = postgresDSN
	p.clickhouseDSN = clickhouseDSN
	return p
}

// Run executes the report pipeline and writes output files:
// - PANEL_REPORT.md
// - panel_rows.csv
// - attrition.csv
// - sample_stats.csv
func (p *ReportPipeline) Run(ctx context.Context) error {
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return err
	}

	// 1. Run sufficiency checks first (if configured)
	var sampleQuality reporting.SampleQualitySection
	if p.checker != nil {
		suffResult, err := p.checker.Check(ctx)
		if err != nil {
			return err
		}
		sampleQuality = convertToSampleQuality(suffResult)
	}

	// 2. Run the invariant battery (if configured). Violations fold into the
	// sample quality section alongside the sufficiency outcome.
	if p.verifier != nil {
		panelReport, err := p.verifier.VerifyPanel(ctx)
		if err != nil {
			return err
		}
		sampleQuality.SufficiencyChecks = append(sampleQuality.SufficiencyChecks,
			reporting.SufficiencyCheckRow{
				Name:      "Panel invariants",
				Threshold: "0 violations",
				Actual:    fmt.Sprintf("%d violations", len(panelReport.Violations)),
				Pass:      len(panelReport.Violations) == 0,
			})
		if len(panelReport.Violations) > 0 {
			for _, v := range panelReport.Violations {
				sampleQuality.InvariantViolations = append(sampleQuality.InvariantViolations,
					fmt.Sprintf("%s: gvkey=%s period=%s %s", v.Property, v.GVKey, v.PeriodID, v.Detail))
			}
			sampleQuality.AllChecksPassed = false
		} else if p.checker == nil {
			// Only the battery ran, and it passed.
			sampleQuality.AllChecksPassed = true
		}
	}

	// 3. Generate the report
	report, err := p.reportGen.Generate(ctx)
	if err != nil {
		return err
	}
	report.SampleQuality = sampleQuality

	// 4. Load panel rows (needed for the data version hash and CSV export)
	rows, err := p.panelStore.GetAll(ctx)
	if err != nil {
		return err
	}

	// 5. Populate reproducibility metadata
	report.Reproducibility = reporting.ReproducibilityMetadata{
		ReportTimestamp:  p.clock(),
		GeneratorVersion: GeneratorVersion,
		DataVersion:      computeDataVersion(rows),
		CommitHash:       getGitCommitHash(),
		SourceCommand:    p.buildSourceCommand(),
	}

	// 6. Write PANEL_REPORT.md
	reportMD := reporting.RenderMarkdown(report)
	reportPath := filepath.Join(p.outputDir, "PANEL_REPORT.md")
	if err := os.WriteFile(reportPath, []byte(reportMD), 0644); err != nil {
		return err
	}

	// 7. Write panel_rows.csv
	rowsCSV, err := reporting.RenderPanelRowsCSV(rows)
	if err != nil {
		return err
	}
	rowsPath := filepath.Join(p.outputDir, "panel_rows.csv")
	if err := os.WriteFile(rowsPath, []byte(rowsCSV), 0644); err != nil {
		return err
	}

	// 8. Write attrition.csv
	attritionCSV, err := reporting.RenderAttritionCSV(report.Attrition)
	if err != nil {
		return err
	}
	attritionPath := filepath.Join(p.outputDir, "attrition.csv")
	if err := os.WriteFile(attritionPath, []byte(attritionCSV), 0644); err != nil {
		return err
	}

	// 9. Write sample_stats.csv
	statsCSV, err := reporting.RenderSampleStatsCSV(report.WinsorBounds)
	if err != nil {
		return err
	}
	statsPath := filepath.Join(p.outputDir, "sample_stats.csv")
	return os.WriteFile(statsPath, []byte(statsCSV), 0644)
}

// buildSourceCommand returns the command that reproduces this report.
func (p *ReportPipeline) buildSourceCommand() string {
	switch p.dataSource {
	case "fixtures":
		return "go run cmd/report/main.go --use-fixtures"
	case "db":
		return fmt.Sprintf("go run cmd/report/main.go --postgres-dsn %q --clickhouse-dsn %q",
			p.postgresDSN, p.clickhouseDSN)
	default:
		return "go run cmd/report/main.go --use-fixtures"
	}
}

// computeDataVersion computes a short SHA256 hash over the panel contents.
// The hash covers the row keys and the sample outcome, so any rebuild that
// changes membership or censoring changes the version.
func computeDataVersion(rows []*domain.PanelRow) string {
	h := sha256.New()

	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, fmt.Sprintf("%s|%d|%t", row.PeriodID, row.QuarterEndMs, row.InSample))
	}
	sort.Strings(parts)
	h.Write([]byte("PANEL\n"))
	h.Write([]byte(strings.Join(parts, "\n")))

	return hex.EncodeToString(h.Sum(nil))[:12] // short hash
}

// getGitCommitHash returns the current git commit hash, "unknown" outside a
// git repository.
func getGitCommitHash() string {
	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "unknown"
	}
	return strings.TrimSpace(out.String())
}

// convertToSampleQuality converts a SufficiencyResult to the report section.
func convertToSampleQuality(result *SufficiencyResult) reporting.SampleQualitySection {
	checks := make([]reporting.SufficiencyCheckRow, len(result.Checks))
	for i, c := range result.Checks {
		checks[i] = reporting.SufficiencyCheckRow{
			Name:      c.Name,
			Threshold: c.Threshold,
			Actual:    c.Actual,
			Pass:      c.Pass,
		}
	}
	return reporting.SampleQualitySection{
		SufficiencyChecks:   checks,
		InvariantViolations: result.Errors,
		AllChecksPassed:     result.AllPass,
	}
}
