// -----------------------------------------------------------------------
// Submission records - structured audit trail written before the engine call
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// ProjectRecord is the downstream project/container record for a tender,
// resolved or created idempotently (lookup-by-tender before create) on each
// submission attempt.
type ProjectRecord struct {
	ID             string    `json:"id"`
	Tender         string    `json:"tender"`
	Name           string    `json:"name"`
	EngineFolderID string    `json:"engine_folder_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SubmissionRecord is the structured submission header written before any
// external call is made. It is deliberately never rolled back on failure:
// failed attempts keep their submission record as forensic context.
type SubmissionRecord struct {
	ID          string    `json:"id"`
	Tender      string    `json:"tender"`
	BatchID     string    `json:"batch_id"`
	ProjectID   string    `json:"project_id"`
	Reference   string    `json:"reference"` // Correlation token shared by all queue items
	SubmittedBy string    `json:"submitted_by"`
	FileCount   int       `json:"file_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// FileTrackingRecord tracks one file of one submission, created in status
// queued before the engine call. On a failed submission these records are
// compensated (deleted) so no orphaned tracking state survives.
type FileTrackingRecord struct {
	SubmissionID string     `json:"submission_id"`
	Tender       string     `json:"tender"`
	Path         string     `json:"path"`
	Status       FileStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ReferenceEntry maps an engine correlation token back to its batch. It is a
// secondary lookup used only for inbound callback resolution; the Batch record
// stays the source of truth.
type ReferenceEntry struct {
	Reference string    `json:"reference"`
	Tender    string    `json:"tender"`
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidationUser is the authorization record for a submitting user. Absence of
// this record is a configuration problem, not a transient fault: submissions
// fail immediately and are not retried.
type ValidationUser struct {
	Identity    string    `json:"identity" toml:"identity"`
	DisplayName string    `json:"display_name" toml:"display_name"`
	Email       string    `json:"email" toml:"email"`
	Role        string    `json:"role" toml:"role"`
	CreatedAt   time.Time `json:"created_at" toml:"-"`
}
