// Package models defines the core domain models for campaign delivery.
package models

import "time"

// ExecutionStatus represents the lifecycle state of a campaign execution.
type ExecutionStatus string

const (
	ExecutionStatusQueued    ExecutionStatus = "queued"    // Created, waiting for a worker pickup
	ExecutionStatusRunning   ExecutionStatus = "running"   // A worker owns the run
	ExecutionStatusCompleted ExecutionStatus = "completed" // Terminal, all rows processed
	ExecutionStatusFailed    ExecutionStatus = "failed"    // Terminal, aborted with a reason
	ExecutionStatusCancelled ExecutionStatus = "cancelled" // Terminal, stopped at a row boundary
)

// IsTerminal reports whether no further status transition is allowed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// Execution represents one run of a published template over an uploaded
// row set through one channel integration. The counters are owned
// exclusively by the worker driving the run; everything else only reads.
type Execution struct {
	ID              string          `json:"id"`
	OrganizationID  string          `json:"organization_id"  validate:"required"`
	TemplateID      string          `json:"template_id"      validate:"required"`
	IntegrationID   string          `json:"integration_id"   validate:"required"`
	ChannelType     ChannelType     `json:"channel_type"     validate:"required"`
	RecipientColumn string          `json:"recipient_column" validate:"required"`
	FilePath        string          `json:"file_path"`
	Status          ExecutionStatus `json:"status"`

	TotalCount     int `json:"total_count"`
	ProcessedCount int `json:"processed_count"`
	SuccessCount   int `json:"success_count"`
	FailureCount   int `json:"failure_count"`

	FailureReason string `json:"failure_reason,omitempty"`

	TriggeredBy string     `json:"triggered_by,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationSec int        `json:"execution_duration_seconds"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Snapshot derives the progress view broadcast to observers.
func (e *Execution) Snapshot() ProgressSnapshot {
	percent := 0.0
	if e.TotalCount > 0 {
		percent = float64(e.ProcessedCount) / float64(e.TotalCount) * 100
	}

	return ProgressSnapshot{
		Status:          e.Status,
		Processed:       e.ProcessedCount,
		Total:           e.TotalCount,
		Success:         e.SuccessCount,
		Failed:          e.FailureCount,
		ProgressPercent: percent,
	}
}

// ProgressSnapshot is the wire shape pushed to progress observers and
// cached for status polling.
type ProgressSnapshot struct {
	Status          ExecutionStatus `json:"status"`
	Processed       int             `json:"processed"`
	Total           int             `json:"total"`
	Success         int             `json:"success"`
	Failed          int             `json:"failed"`
	ProgressPercent float64         `json:"progress_percent"`
	Error           string          `json:"error,omitempty"`
}
