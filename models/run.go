package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is the audit row kept for each pipeline run.
type RunRecord struct {
	ID               int64      `json:"id" db:"id"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at" db:"finished_at"`
	Status           RunStatus  `json:"status" db:"status"`
	TargetsTotal     int        `json:"targets_total" db:"targets_total"`
	TargetsFailed    int        `json:"targets_failed" db:"targets_failed"`
	VehiclesFound    int        `json:"vehicles_found" db:"vehicles_found"`
	VehiclesAccepted int        `json:"vehicles_accepted" db:"vehicles_accepted"`
	VehiclesNew      int        `json:"vehicles_new" db:"vehicles_new"`
	ErrorsCount      int        `json:"errors_count" db:"errors_count"`
}

// TargetResult records what one search target produced within a run.
type TargetResult struct {
	RunID      int64     `json:"run_id" db:"run_id"`
	LocationID string    `json:"location_id" db:"location_id"`
	Kind       string    `json:"kind" db:"kind"`
	Model      string    `json:"model" db:"model"`
	URL        string    `json:"url" db:"url"`
	Strategy   string    `json:"strategy" db:"strategy"`
	Candidates int       `json:"candidates" db:"candidates"`
	Error      string    `json:"error" db:"error"`
	FetchedAt  time.Time `json:"fetched_at" db:"fetched_at"`
}
