package interfaces

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist under the requested
// kind and key in the active backend(s)
var ErrNotFound = errors.New("record not found")

// RecordKind partitions the metadata store namespace. The store itself has no
// knowledge of the record payloads; kinds are opaque partition names.
type RecordKind string

const (
	KindBatch        RecordKind = "batch"
	KindFile         RecordKind = "file"
	KindProject      RecordKind = "project"
	KindSubmission   RecordKind = "submission"
	KindFileTracking RecordKind = "file_tracking"
	KindReference    RecordKind = "reference"
	KindUser         RecordKind = "user"
)

// RecordStore is a generic typed key/record store facade. Implementations are
// the Badger backend, the SQLite backend and the mode-switching metadata store
// that fronts both during migration.
//
// Records are JSON-serializable structs. Get unmarshals into out, which must
// be a non-nil pointer. Concurrent access to different keys is safe; writes to
// the same key are last-write-wins.
type RecordStore interface {
	// Get retrieves the record stored under kind/key into out.
	// Returns ErrNotFound when no record exists.
	Get(ctx context.Context, kind RecordKind, key string, out any) error

	// Put stores rec under kind/key, replacing any existing record.
	Put(ctx context.Context, kind RecordKind, key string, rec any) error

	// Delete removes the record under kind/key. Deleting a missing record is
	// not an error.
	Delete(ctx context.Context, kind RecordKind, key string) error

	// Keys lists all keys of the given kind with the given prefix,
	// lexicographically ordered.
	Keys(ctx context.Context, kind RecordKind, prefix string) ([]string, error)

	// Name identifies the backend for logging ("badger", "sqlite", "metadata")
	Name() string

	// Close releases backend resources
	Close() error
}

// StoreHealth describes the active migration state of the metadata store,
// exposed on the status endpoint so operators can confirm when the migration
// window is safe to finalize.
type StoreHealth struct {
	Mode             string `json:"mode"`
	ReadFallback     bool   `json:"read_fallback"`
	RepairOnFallback bool   `json:"repair_on_fallback"`
	Primary          string `json:"primary"`
	Secondary        string `json:"secondary"`
}
