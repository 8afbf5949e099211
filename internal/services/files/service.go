// -----------------------------------------------------------------------
// Files service - per-file metadata within a tender namespace
// -----------------------------------------------------------------------

package files

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
)

// Service provides file record operations over the metadata store
type Service struct {
	store  interfaces.RecordStore
	logger arbor.ILogger
}

// NewService creates a new files service
func NewService(store interfaces.RecordStore, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// fileKey builds the store key for a file within its tender namespace
func fileKey(tender, path string) string {
	return tender + "/" + path
}

// Register creates a file record at upload time
func (s *Service) Register(ctx context.Context, record *models.FileRecord) error {
	if record.Category == "" {
		record.Category = models.CategoryUncategorized
	}

	if err := s.store.Put(ctx, interfaces.KindFile, fileKey(record.Tender, record.Path), record); err != nil {
		return fmt.Errorf("failed to register file %s: %w", record.Path, err)
	}

	s.logger.Debug().
		Str("tender", record.Tender).
		Str("path", record.Path).
		Msg("File registered")
	return nil
}

// Get retrieves a file record by tender and path
func (s *Service) Get(ctx context.Context, tender, path string) (*models.FileRecord, error) {
	var record models.FileRecord
	if err := s.store.Get(ctx, interfaces.KindFile, fileKey(tender, path), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns all file records for a tender
func (s *Service) List(ctx context.Context, tender string) ([]*models.FileRecord, error) {
	keys, err := s.store.Keys(ctx, interfaces.KindFile, tender+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list files for tender %s: %w", tender, err)
	}

	records := make([]*models.FileRecord, 0, len(keys))
	for _, key := range keys {
		var record models.FileRecord
		if err := s.store.Get(ctx, interfaces.KindFile, key, &record); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Skipping unreadable file record")
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

// AssignBatch sets the category and batch id of every file in one record
// write per file. Category and batch id always change together so a file is
// never observably half-assigned.
func (s *Service) AssignBatch(ctx context.Context, tender string, paths []string, batchID, category string) error {
	for _, path := range paths {
		record, err := s.Get(ctx, tender, path)
		if err != nil {
			return fmt.Errorf("failed to load file %s: %w", path, err)
		}

		record.Category = category
		record.BatchID = &batchID
		record.UpdatedAt = time.Now().UTC()

		if err := s.store.Put(ctx, interfaces.KindFile, fileKey(tender, path), record); err != nil {
			return fmt.Errorf("failed to assign file %s to batch: %w", path, err)
		}
	}

	s.logger.Info().
		Str("tender", tender).
		Str("batch_id", batchID).
		Int("files", len(paths)).
		Msg("Files assigned to batch")
	return nil
}

// Release reverts files to the unbatched, uncategorized state. This is the
// compensating action of batch deletion; a failure here aborts the deletion
// so the ownership link is never silently lost.
func (s *Service) Release(ctx context.Context, tender string, paths []string) error {
	for _, path := range paths {
		record, err := s.Get(ctx, tender, path)
		if err != nil {
			if err == interfaces.ErrNotFound {
				continue
			}
			return fmt.Errorf("failed to load file %s: %w", path, err)
		}

		record.Category = models.CategoryUncategorized
		record.BatchID = nil
		record.ProcessingStatus = ""
		record.UpdatedAt = time.Now().UTC()

		if err := s.store.Put(ctx, interfaces.KindFile, fileKey(tender, path), record); err != nil {
			return fmt.Errorf("failed to release file %s: %w", path, err)
		}
	}

	s.logger.Info().
		Str("tender", tender).
		Int("files", len(paths)).
		Msg("Files released from batch")
	return nil
}

// ApplyExtractionResult updates a file's processing status and extracted
// fields as reported by the engine callback
func (s *Service) ApplyExtractionResult(ctx context.Context, tender, path string, status models.FileStatus, drawingNumber, revision, title *string) error {
	record, err := s.Get(ctx, tender, path)
	if err != nil {
		return fmt.Errorf("failed to load file %s: %w", path, err)
	}

	record.ProcessingStatus = status
	if drawingNumber != nil {
		record.DrawingNumber = drawingNumber
	}
	if revision != nil {
		record.Revision = revision
	}
	if title != nil {
		record.Title = title
	}
	record.UpdatedAt = time.Now().UTC()

	if err := s.store.Put(ctx, interfaces.KindFile, fileKey(tender, path), record); err != nil {
		return fmt.Errorf("failed to update file %s: %w", path, err)
	}

	s.logger.Debug().
		Str("tender", tender).
		Str("path", path).
		Str("status", string(status)).
		Msg("File extraction result applied")
	return nil
}
