package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFallback  RunStatus = "fallback"
	RunStatusFailed    RunStatus = "failed"
)

// AcquisitionRun records one pass of the acquisition service.
type AcquisitionRun struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	SellerID     string     `json:"seller_id" db:"seller_id"`
	Provider     string     `json:"provider" db:"provider"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" db:"finished_at"`
	Status       RunStatus  `json:"status" db:"status"`
	ItemsFound   int        `json:"items_found" db:"items_found"`
	ItemsWritten int        `json:"items_written" db:"items_written"`
	ErrorsCount  int        `json:"errors_count" db:"errors_count"`
	ErrorMessage string     `json:"error_message" db:"error_message"`
	OutputPath   string     `json:"output_path" db:"output_path"`
}

// ProviderStats summarizes acquisition history for one provider.
type ProviderStats struct {
	Provider     string     `json:"provider" db:"provider"`
	LastRunAt    *time.Time `json:"last_run_at" db:"last_run_at"`
	LastStatus   string     `json:"last_status" db:"last_status"`
	TotalRuns    int        `json:"total_runs" db:"total_runs"`
	FallbackRuns int        `json:"fallback_runs" db:"fallback_runs"`
	SuccessRate  float64    `json:"success_rate" db:"success_rate"`
}
