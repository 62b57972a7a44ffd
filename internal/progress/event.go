// Package progress broadcasts pipeline stage events to WebSocket subscribers.
package progress

// Stage statuses carried by StageEvent.
const (
	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// StageEvent describes one pipeline stage transition. RowsIn and RowsOut
// are zero while a stage is running and filled in on the finished event.
type StageEvent struct {
	PipelineRunID string `json:"pipeline_run_id"`
	Stage         string `json:"stage"`
	Status        string `json:"status"`
	RowsIn        int    `json:"rows_in,omitempty"`
	RowsOut       int    `json:"rows_out,omitempty"`
	Detail        string `json:"detail,omitempty"`
	AtMs          int64  `json:"at_ms"`
}
