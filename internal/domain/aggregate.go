package domain

// Pipeline stage names used for attrition accounting and metrics labels.
const (
	StageValidate  = "validate"
	StageResolve   = "resolve"
	StageNormalize = "normalize"
	StageCensor    = "censor"
)

// StageAttrition is one row of the sample-attrition accounting: how many
// firm-periods a stage rejected for a specific reason during a pipeline run.
// Corresponds to attrition_stages table in ClickHouse.
type StageAttrition struct {
	PipelineRunID string
	Stage         string // one of the Stage* constants
	Reason        string // stage-specific rejection reason
	Count         int64
	CreatedAt     int64
}

// SampleStat records the winsorization outcome for one analysis variable in
// one pipeline run. Corresponds to sample_stats table in ClickHouse.
type SampleStat struct {
	PipelineRunID string
	Variable      string  // one of the Var* constants
	PctLow        float64 // lower percentile, e.g. 0.01
	PctHigh       float64 // upper percentile, e.g. 0.99
	LowerBound    float64 // value at PctLow over in-sample non-null observations
	UpperBound    float64 // value at PctHigh
	ClampedLow    int64   // observations raised to LowerBound
	ClampedHigh   int64   // observations lowered to UpperBound
	Observations  int64   // non-null in-sample observations
	CreatedAt     int64
}
