package domain

// PipelineRun tracks one end-to-end pipeline execution and its stage counters.
// Corresponds to pipeline_runs table in PostgreSQL. Created when the
// orchestrator starts and updated once on completion or failure.
type PipelineRun struct {
	RunID        string // sha256 hash of (started_at, nonce)
	StartedAtMs  int64
	FinishedAtMs *int64 // nil while running
	Status       string // see RunStatus* constants
	RawRecords   int64  // raw observations considered
	FirmPeriods  int64  // canonical periods after resolution
	PanelRows    int64  // enriched rows built
	SampleRows   int64  // rows surviving the censoring battery
	Rejected     int64  // firm-periods rejected across all stages
	Note         string // free-form failure detail, empty on success
}

// Pipeline run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)
