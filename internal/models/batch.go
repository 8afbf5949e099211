// -----------------------------------------------------------------------
// Batch - Extraction batch entity and its embedded submission attempt log
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// BatchStatus represents the lifecycle state of an extraction batch
type BatchStatus string

const (
	// BatchStatusPending indicates the batch is recorded but not yet accepted
	// by the automation engine. Only pending batches are eligible for retry.
	BatchStatusPending BatchStatus = "pending"
	// BatchStatusRunning indicates the engine accepted the batch and is processing it.
	BatchStatusRunning BatchStatus = "running"
	// BatchStatusCompleted indicates every file in the batch reached a terminal state.
	BatchStatusCompleted BatchStatus = "completed"
	// BatchStatusFailed indicates the last submission attempt failed.
	// A manual retry moves the batch back to pending.
	BatchStatusFailed BatchStatus = "failed"
)

// AttemptStatus represents the state of a single submission attempt
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSuccess    AttemptStatus = "success"
	AttemptStatusFailed     AttemptStatus = "failed"
)

// SubmissionAttempt is one recorded try at handing a batch to the automation
// engine. Attempts are embedded in the Batch record and append-only: the list
// is never rewritten or truncated.
type SubmissionAttempt struct {
	Timestamp time.Time     `json:"timestamp"`
	Status    AttemptStatus `json:"status"`
	Reference string        `json:"reference,omitempty"` // Correlation token, set on success
	Error     string        `json:"error,omitempty"`     // Failure detail, set on failure
}

// Region is a rectangular extraction region on a drawing sheet, in page units.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Batch is a user-submitted group of files queued together for external
// processing under one destination/region configuration.
//
// Status transitions: pending -> running -> {completed, failed} or
// pending -> failed. There is no automatic path out of completed or failed;
// a manual retry re-enters pending.
type Batch struct {
	ID     string `json:"id"`
	Tender string `json:"tender"` // Owning tender (tenant) identifier
	Name   string `json:"name"`

	// FilePaths is the ordered list of member files, set once at creation.
	FilePaths   []string `json:"file_paths"`
	Destination string   `json:"destination"` // Target category / engine project name
	Region      *Region  `json:"region,omitempty"`

	Status      BatchStatus `json:"status"`
	SubmittedAt time.Time   `json:"submitted_at"`
	SubmittedBy string      `json:"submitted_by"`
	FileCount   int         `json:"file_count"` // Always len(FilePaths), cached for list views

	// SubmissionAttempts is the append-only attempt history.
	SubmissionAttempts []SubmissionAttempt `json:"submission_attempts"`
	LastError          *string             `json:"last_error,omitempty"`

	// External correlation, set once the engine accepts the batch.
	ExternalReference    *string `json:"external_reference,omitempty"`
	ExternalSubmissionID *string `json:"external_submission_id,omitempty"`
	ExternalProjectID    *string `json:"external_project_id,omitempty"`
}

// NewBatch creates a pending batch with an empty attempt history
func NewBatch(id, tender, name string, filePaths []string, destination string, region *Region, submittedBy string) *Batch {
	return &Batch{
		ID:                 id,
		Tender:             tender,
		Name:               name,
		FilePaths:          filePaths,
		Destination:        destination,
		Region:             region,
		Status:             BatchStatusPending,
		SubmittedAt:        time.Now().UTC(),
		SubmittedBy:        submittedBy,
		FileCount:          len(filePaths),
		SubmissionAttempts: []SubmissionAttempt{},
	}
}

// LatestAttempt returns the most recent submission attempt, or nil when the
// batch has never been attempted
func (b *Batch) LatestAttempt() *SubmissionAttempt {
	if len(b.SubmissionAttempts) == 0 {
		return nil
	}
	return &b.SubmissionAttempts[len(b.SubmissionAttempts)-1]
}

// HasInProgressAttempt reports whether the latest attempt is still in progress.
// This is the soft concurrency guard: at most one in-progress attempt exists
// per batch within a process.
func (b *Batch) HasInProgressAttempt() bool {
	latest := b.LatestAttempt()
	return latest != nil && latest.Status == AttemptStatusInProgress
}

// LastAttemptAt returns the timestamp of the most recent attempt, falling back
// to the batch submission time when no attempt has been made yet. The sweeper
// uses this to decide staleness.
func (b *Batch) LastAttemptAt() time.Time {
	if latest := b.LatestAttempt(); latest != nil {
		return latest.Timestamp
	}
	return b.SubmittedAt
}
