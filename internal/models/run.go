package models

import "time"

// Pipeline run statuses
const (
	RunStatusRunning            = "running"
	RunStatusCompleted          = "completed"
	RunStatusCompletedWithError = "completed_with_errors"
	RunStatusFailed             = "failed"
)

// PipelineRun records one invocation of a pipeline mode for audit and
// the REST API's recent-runs view
type PipelineRun struct {
	ID         int        `json:"id"`
	Mode       string     `json:"mode"`
	Status     string     `json:"status"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	APICalls   int        `json:"api_calls"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
