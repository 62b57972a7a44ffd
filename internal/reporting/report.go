package reporting

import "time"

// Report represents the generated panel report structure.
type Report struct {
	// Metadata
	GeneratedAt   time.Time
	PipelineRunID string // empty when no pipeline run has been recorded

	// Panel Summary
	PanelSummary PanelSummary

	// Sample Quality (sufficiency checks and invariant outcome)
	SampleQuality SampleQualitySection

	// Run-length distribution (sorted by length)
	RunLengths []RunLengthRow

	// Attrition accounting for the reported run (sorted by stage, reason)
	Attrition []AttritionRow

	// Winsorization outcomes for the reported run (sorted by variable)
	WinsorBounds []WinsorBoundRow

	// Reproducibility metadata. Filled in by the report pipeline.
	Reproducibility ReproducibilityMetadata
}

// ReproducibilityMetadata records what produced the report and how to
// regenerate it.
type ReproducibilityMetadata struct {
	ReportTimestamp  time.Time
	GeneratorVersion string
	DataVersion      string // short hash of the panel contents
	CommitHash       string // git commit of the generating tree, "unknown" outside git
	SourceCommand    string // command line that reproduces the report
}

// SampleQualitySection contains sample sufficiency checks and invariant
// violations. Filled in by the report pipeline, not the generator.
type SampleQualitySection struct {
	SufficiencyChecks   []SufficiencyCheckRow
	InvariantViolations []string
	AllChecksPassed     bool
}

// SufficiencyCheckRow represents one sufficiency criterion.
type SufficiencyCheckRow struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// PanelSummary describes the built panel.
type PanelSummary struct {
	Firms          int
	PanelRows      int
	InSampleRows   int
	CensoredRows   int
	AlignedRows    int
	AlignedShare   float64 // AlignedRows / PanelRows, 0 for an empty panel
	Runs           int
	MeanRunLength  float64
	MaxRunLength   int
	SingletonRuns  int   // runs spanning a single quarter
	DateRangeStart int64 // Unix ms, earliest quarter endpoint
	DateRangeEnd   int64 // Unix ms, latest quarter endpoint
}

// RunLengthRow is one bucket of the run-length distribution.
type RunLengthRow struct {
	Length int // run length in quarters
	Count  int // number of runs of that length
}

// AttritionRow is one line of the attrition table.
type AttritionRow struct {
	Stage  string
	Reason string
	Count  int64
}

// WinsorBoundRow reports the winsorization outcome for one variable.
type WinsorBoundRow struct {
	Variable     string
	PctLow       float64
	PctHigh      float64
	LowerBound   float64
	UpperBound   float64
	ClampedLow   int64
	ClampedHigh  int64
	Observations int64
}
