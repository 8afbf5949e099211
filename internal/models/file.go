// -----------------------------------------------------------------------
// FileRecord - Per-file metadata within a tender namespace
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// FileStatus represents per-file processing progress reported by the
// automation engine once a batch has an external reference
type FileStatus string

const (
	FileStatusQueued    FileStatus = "queued"
	FileStatusExtracted FileStatus = "extracted"
	FileStatusFailed    FileStatus = "failed"
	FileStatusExported  FileStatus = "exported"
)

// CategoryUncategorized is the category files carry until they join a batch
const CategoryUncategorized = "uncategorized"

// FileRecord is a tender document. It is identified by its path within the
// owning tender's namespace.
//
// Category and BatchID change together in a single record write: a file is
// never observably "categorized but unbatched" or "batched but uncategorized".
type FileRecord struct {
	Tender string `json:"tender"`
	Path   string `json:"path"`

	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`

	// Category defaults to "uncategorized" and is overwritten with the batch
	// destination at submission time.
	Category string  `json:"category"`
	BatchID  *string `json:"batch_id,omitempty"` // nil means unbatched/active

	ProcessingStatus FileStatus `json:"processing_status,omitempty"`

	// Fields extracted by the engine, populated via callback.
	DrawingNumber *string `json:"drawing_number,omitempty"`
	Revision      *string `json:"revision,omitempty"`
	Title         *string `json:"title,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFileRecord creates an unbatched, uncategorized file record
func NewFileRecord(tender, path, name string, size int64, contentType string) *FileRecord {
	now := time.Now().UTC()
	return &FileRecord{
		Tender:      tender,
		Path:        path,
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Category:    CategoryUncategorized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsBatched reports whether the file currently belongs to a batch
func (f *FileRecord) IsBatched() bool {
	return f.BatchID != nil
}

// IsTerminal reports whether the file reached a final processing state
func (f FileStatus) IsTerminal() bool {
	return f == FileStatusExtracted || f == FileStatusFailed || f == FileStatusExported
}
