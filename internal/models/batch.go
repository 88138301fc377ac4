package models

import (
	"time"
)

// BatchJob status values persisted in Postgres. A job moves
// queued -> processing -> completed|failed and never leaves a terminal state.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// BatchJob tracks one submitted EPCIS document through the pipeline.
type BatchJob struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	FileName        string     `json:"file_name"`
	FileSize        int64      `json:"file_size"`
	Status          string     `json:"status"`
	TotalEvents     int        `json:"total_events"`
	ProcessedEvents int        `json:"processed_events"`
	FailedEvents    int        `json:"failed_events"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Terminal reports whether the job can no longer change state.
func (j BatchJob) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Progress returns completion percent, rounded, over total events.
func (j BatchJob) Progress() int {
	if j.TotalEvents == 0 {
		return 0
	}
	return int(float64(j.ProcessedEvents)/float64(j.TotalEvents)*100 + 0.5)
}
