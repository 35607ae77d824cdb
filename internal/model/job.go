package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a bulk refresh job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobAborted   JobStatus = "aborted"
)

// RefreshJob is the ledger row for one bulk refresh operation.
// Invariant: CompletedCases + FailedCases <= TotalCases; the job becomes
// completed exactly when the sum reaches TotalCases.
type RefreshJob struct {
	ID             uuid.UUID `json:"id"`
	WorkspaceID    uuid.UUID `json:"workspace_id"`
	TotalCases     int       `json:"total_cases"`
	CompletedCases int       `json:"completed_cases"`
	FailedCases    int       `json:"failed_cases"`
	Status         JobStatus `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Remaining returns the number of cases not yet accounted for.
func (j *RefreshJob) Remaining() int {
	return j.TotalCases - j.CompletedCases - j.FailedCases
}

// Done reports whether every case has been accounted for.
func (j *RefreshJob) Done() bool {
	return j.CompletedCases+j.FailedCases >= j.TotalCases
}
