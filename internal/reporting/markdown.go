package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Firm-Quarter Panel Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.PipelineRunID != "" {
		sb.WriteString(fmt.Sprintf("Pipeline run: %s\n\n", r.PipelineRunID))
	} else {
		sb.WriteString("Pipeline run: none recorded\n\n")
	}

	// Panel Summary
	sb.WriteString("## Panel Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Firms | %d |\n", r.PanelSummary.Firms))
	sb.WriteString(fmt.Sprintf("| Panel Rows | %d |\n", r.PanelSummary.PanelRows))
	sb.WriteString(fmt.Sprintf("| In-Sample Rows | %d |\n", r.PanelSummary.InSampleRows))
	sb.WriteString(fmt.Sprintf("| Censored Rows | %d |\n", r.PanelSummary.CensoredRows))
	sb.WriteString(fmt.Sprintf("| Calendar-Aligned Rows | %d |\n", r.PanelSummary.AlignedRows))
	sb.WriteString(fmt.Sprintf("| Aligned Share | %.4f |\n", r.PanelSummary.AlignedShare))
	sb.WriteString(fmt.Sprintf("| Runs | %d |\n", r.PanelSummary.Runs))
	sb.WriteString(fmt.Sprintf("| Mean Run Length | %.2f |\n", r.PanelSummary.MeanRunLength))
	sb.WriteString(fmt.Sprintf("| Max Run Length | %d |\n", r.PanelSummary.MaxRunLength))
	sb.WriteString(fmt.Sprintf("| Singleton Runs | %d |\n", r.PanelSummary.SingletonRuns))
	sb.WriteString(fmt.Sprintf("| Date Range Start (ms) | %d |\n", r.PanelSummary.DateRangeStart))
	sb.WriteString(fmt.Sprintf("| Date Range End (ms) | %d |\n", r.PanelSummary.DateRangeEnd))
	sb.WriteString("\n")

	// Run-Length Distribution
	sb.WriteString("## Run-Length Distribution\n\n")
	if len(r.RunLengths) > 0 {
		sb.WriteString("| Quarters | Runs |\n")
		sb.WriteString("|----------|------|\n")
		for _, row := range r.RunLengths {
			sb.WriteString(fmt.Sprintf("| %d | %d |\n", row.Length, row.Count))
		}
	} else {
		sb.WriteString("No runs recorded.\n")
	}
	sb.WriteString("\n")

	// Sample Quality
	sb.WriteString("## Sample Quality\n\n")
	if len(r.SampleQuality.SufficiencyChecks) > 0 {
		sb.WriteString("### Sufficiency Checks\n\n")
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, check := range r.SampleQuality.SufficiencyChecks {
			status := "FAIL"
			if check.Pass {
				status = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				check.Name, check.Threshold, check.Actual, status))
		}
		sb.WriteString("\n")

		// Overall status
		if r.SampleQuality.AllChecksPassed {
			sb.WriteString("**All checks passed.** The sample is analysis-ready.\n\n")
		} else {
			sb.WriteString("**Some checks failed.** The sample is not analysis-ready.\n\n")
		}
	} else if len(r.SampleQuality.InvariantViolations) == 0 {
		sb.WriteString("No sample quality checks performed.\n\n")
	}

	// Invariant violations (always shown if present, even without sufficiency checks)
	if len(r.SampleQuality.InvariantViolations) > 0 {
		sb.WriteString("### Invariant Violations\n\n")
		for _, v := range r.SampleQuality.InvariantViolations {
			sb.WriteString(fmt.Sprintf("- %s\n", v))
		}
		sb.WriteString("\n")
	}

	// Attrition
	sb.WriteString("## Attrition\n\n")
	if len(r.Attrition) > 0 {
		sb.WriteString("| Stage | Reason | Rows |\n")
		sb.WriteString("|-------|--------|------|\n")
		for _, row := range r.Attrition {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d |\n", row.Stage, row.Reason, row.Count))
		}
	} else {
		sb.WriteString("No attrition recorded.\n")
	}
	sb.WriteString("\n")

	// Winsorization
	sb.WriteString("## Winsorization\n\n")
	if len(r.WinsorBounds) > 0 {
		sb.WriteString("| Variable | Pct Low | Pct High | Lower Bound | Upper Bound | Clamped Low | Clamped High | Observations |\n")
		sb.WriteString("|----------|---------|----------|-------------|-------------|-------------|--------------|-------------|\n")
		for _, row := range r.WinsorBounds {
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %.6f | %.6f | %d | %d | %d |\n",
				row.Variable, row.PctLow, row.PctHigh,
				row.LowerBound, row.UpperBound,
				row.ClampedLow, row.ClampedHigh, row.Observations))
		}
	} else {
		sb.WriteString("No winsorization stats recorded.\n")
	}
	sb.WriteString("\n")

	// Reproducibility
	if r.Reproducibility.GeneratorVersion != "" {
		sb.WriteString("## Reproducibility\n\n")
		sb.WriteString("| Field | Value |\n")
		sb.WriteString("|-------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Report Timestamp | %s |\n",
			r.Reproducibility.ReportTimestamp.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("| Generator Version | %s |\n", r.Reproducibility.GeneratorVersion))
		sb.WriteString(fmt.Sprintf("| Data Version | %s |\n", r.Reproducibility.DataVersion))
		sb.WriteString(fmt.Sprintf("| Commit | %s |\n", r.Reproducibility.CommitHash))
		sb.WriteString(fmt.Sprintf("| Source Command | `%s` |\n", r.Reproducibility.SourceCommand))
		sb.WriteString("\n")
	}

	return sb.String()
}
