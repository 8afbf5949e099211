package interfaces

import (
	"context"

	"github.com/ternarybob/tenderdock/internal/models"
)

// UserDirectory resolves a submitting user's identity to their validation-user
// record. Returns models.ErrUserNotRegistered when the user has no record.
type UserDirectory interface {
	Resolve(ctx context.Context, identity string) (*models.ValidationUser, error)
}

// SubmissionRunner executes one submission attempt for a batch. Both the HTTP
// boundary (manual retry, fire-and-forget on creation) and the retry sweeper
// drive batches through this interface.
type SubmissionRunner interface {
	// Run executes the attempt synchronously. A concurrent in-progress attempt
	// short-circuits to nil.
	Run(ctx context.Context, tender, batchID string) error

	// RunDetached spawns Run in a panic-protected goroutine so the triggering
	// request can return immediately.
	RunDetached(tender, batchID string)
}

// ReferenceResolver resolves an engine correlation token back to its batch.
// Used by the inbound callback handler.
type ReferenceResolver interface {
	Resolve(ctx context.Context, reference string) (*models.ReferenceEntry, error)
}
