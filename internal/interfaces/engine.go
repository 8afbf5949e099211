package interfaces

import (
	"context"
	"time"
)

// QueueItem is one engine queue entry, one per file in a batch. Every item of
// a batch carries the same correlation reference so the engine can report
// per-file outcomes against the batch.
type QueueItem struct {
	ProjectID      string    `json:"project_id"`
	SubmittedBy    string    `json:"submitted_by"`
	FilePath       string    `json:"file_path"`
	Reference      string    `json:"reference"`
	TotalFiles     int       `json:"total_files"`
	SubmissionDate time.Time `json:"submission_date"`
}

// SubmitResult is the engine's acceptance of a bulk submission
type SubmitResult struct {
	Reference    string `json:"reference"`
	SubmissionID string `json:"submission_id"`
}

// EngineClient talks to the downstream automation engine. Submission is
// all-or-nothing: if any item is rejected the whole call fails and no partial
// acceptance occurs. Authentication, validation and transport failures are all
// surfaced as *models.SubmissionError; the caller's recovery action is the
// same for each.
type EngineClient interface {
	SubmitBatch(ctx context.Context, items []QueueItem) (*SubmitResult, error)
}
