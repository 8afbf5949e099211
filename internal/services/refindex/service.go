// -----------------------------------------------------------------------
// Reference index - callback token to batch lookup
// -----------------------------------------------------------------------

package refindex

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
)

// Service maintains the secondary lookup from an engine correlation token to
// its batch. Entries are written once at successful submission and read by
// the inbound callback handler; the Batch record stays the source of truth.
type Service struct {
	store  interfaces.RecordStore
	logger arbor.ILogger
}

// NewService creates a new reference index service
func NewService(store interfaces.RecordStore, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Put records the mapping for a freshly accepted submission
func (s *Service) Put(ctx context.Context, reference, tender, batchID string) error {
	entry := models.ReferenceEntry{
		Reference: reference,
		Tender:    tender,
		BatchID:   batchID,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.Put(ctx, interfaces.KindReference, reference, &entry); err != nil {
		return fmt.Errorf("failed to store reference entry: %w", err)
	}

	s.logger.Debug().
		Str("reference", reference).
		Str("batch_id", batchID).
		Msg("Reference index entry written")
	return nil
}

// Resolve maps a correlation token back to its tender and batch.
// Returns interfaces.ErrNotFound for unknown references.
func (s *Service) Resolve(ctx context.Context, reference string) (*models.ReferenceEntry, error) {
	var entry models.ReferenceEntry
	if err := s.store.Get(ctx, interfaces.KindReference, reference, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete prunes a stale entry, typically during batch deletion
func (s *Service) Delete(ctx context.Context, reference string) error {
	return s.store.Delete(ctx, interfaces.KindReference, reference)
}
