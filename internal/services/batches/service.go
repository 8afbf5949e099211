// -----------------------------------------------------------------------
// Batches service - CRUD and status transitions for extraction batches
// -----------------------------------------------------------------------

package batches

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
	"github.com/ternarybob/tenderdock/internal/services/files"
	"github.com/ternarybob/tenderdock/internal/services/refindex"
)

// CreateRequest carries the validated input for batch creation
type CreateRequest struct {
	Tender      string         `json:"tender" validate:"required"`
	Name        string         `json:"name" validate:"required"`
	FilePaths   []string       `json:"file_paths" validate:"required,min=1,dive,required"`
	Destination string         `json:"destination" validate:"required"`
	Region      *models.Region `json:"region,omitempty"`
	SubmittedBy string         `json:"submitted_by" validate:"required"`
}

// Service is the batch record manager: a pure data layer with no external
// calls. Status transitions and the attempt log live here; the submission
// worker and sweeper drive them.
type Service struct {
	store    interfaces.RecordStore
	files    *files.Service
	refindex *refindex.Service
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates a new batches service
func NewService(store interfaces.RecordStore, filesService *files.Service, refindexService *refindex.Service, logger arbor.ILogger) *Service {
	return &Service{
		store:    store,
		files:    filesService,
		refindex: refindexService,
		validate: validator.New(),
		logger:   logger,
	}
}

// batchKey builds the store key for a batch within its tender namespace
func batchKey(tender, id string) string {
	return tender + "/" + id
}

// Create validates the request and records a pending batch with an empty
// attempt history. Every referenced file must exist and be unbatched.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*models.Batch, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, models.NewValidationError(strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return nil, models.NewValidationError("", err.Error())
	}

	for _, path := range req.FilePaths {
		record, err := s.files.Get(ctx, req.Tender, path)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return nil, models.NewValidationError("file_paths", fmt.Sprintf("file %s does not exist", path))
			}
			return nil, fmt.Errorf("failed to check file %s: %w", path, err)
		}
		if record.IsBatched() {
			return nil, models.NewValidationError("file_paths", fmt.Sprintf("file %s already belongs to batch %s", path, *record.BatchID))
		}
	}

	batch := models.NewBatch(common.NewBatchID(), req.Tender, req.Name, req.FilePaths, req.Destination, req.Region, req.SubmittedBy)

	if err := s.store.Put(ctx, interfaces.KindBatch, batchKey(batch.Tender, batch.ID), batch); err != nil {
		return nil, fmt.Errorf("failed to store batch: %w", err)
	}

	// Category and batch id change together per file.
	if err := s.files.AssignBatch(ctx, batch.Tender, batch.FilePaths, batch.ID, batch.Destination); err != nil {
		return nil, fmt.Errorf("failed to assign files to batch %s: %w", batch.ID, err)
	}

	s.logger.Info().
		Str("tender", batch.Tender).
		Str("batch_id", batch.ID).
		Int("files", batch.FileCount).
		Msg("Batch created")

	return batch, nil
}

// Get retrieves a batch by tender and id
func (s *Service) Get(ctx context.Context, tender, id string) (*models.Batch, error) {
	var batch models.Batch
	if err := s.store.Get(ctx, interfaces.KindBatch, batchKey(tender, id), &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// List returns all batches for a tender, most recently submitted first
func (s *Service) List(ctx context.Context, tender string) ([]*models.Batch, error) {
	keys, err := s.store.Keys(ctx, interfaces.KindBatch, tender+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list batches for tender %s: %w", tender, err)
	}

	batches := make([]*models.Batch, 0, len(keys))
	for _, key := range keys {
		var batch models.Batch
		if err := s.store.Get(ctx, interfaces.KindBatch, key, &batch); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Skipping unreadable batch record")
			continue
		}
		batches = append(batches, &batch)
	}

	sort.Slice(batches, func(i, j int) bool {
		return batches[i].SubmittedAt.After(batches[j].SubmittedAt)
	})
	return batches, nil
}

// Tenants enumerates all tenders that own at least one batch. Used by the
// retry sweeper.
func (s *Service) Tenants(ctx context.Context) ([]string, error) {
	keys, err := s.store.Keys(ctx, interfaces.KindBatch, "")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate tenants: %w", err)
	}

	seen := make(map[string]struct{})
	var tenants []string
	for _, key := range keys {
		tender, _, ok := strings.Cut(key, "/")
		if !ok {
			continue
		}
		if _, dup := seen[tender]; !dup {
			seen[tender] = struct{}{}
			tenants = append(tenants, tender)
		}
	}
	sort.Strings(tenants)
	return tenants, nil
}

// UpdateStatus sets the batch status
func (s *Service) UpdateStatus(ctx context.Context, tender, id string, status models.BatchStatus) error {
	batch, err := s.Get(ctx, tender, id)
	if err != nil {
		return err
	}

	batch.Status = status
	if err := s.store.Put(ctx, interfaces.KindBatch, batchKey(tender, id), batch); err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}

	s.logger.Debug().
		Str("batch_id", id).
		Str("status", string(status)).
		Msg("Batch status updated")
	return nil
}

// AppendAttempt appends a submission attempt in a read-modify-write cycle.
// The attempt list is append-only and never rewritten or truncated. The
// single-in-progress invariant is enforced by the submission worker, not here.
func (s *Service) AppendAttempt(ctx context.Context, tender, id string, attempt models.SubmissionAttempt) (*models.Batch, error) {
	batch, err := s.Get(ctx, tender, id)
	if err != nil {
		return nil, err
	}

	batch.SubmissionAttempts = append(batch.SubmissionAttempts, attempt)
	if err := s.store.Put(ctx, interfaces.KindBatch, batchKey(tender, id), batch); err != nil {
		return nil, fmt.Errorf("failed to append submission attempt: %w", err)
	}
	return batch, nil
}

// RecordSuccess closes the in-progress attempt as successful and moves the
// batch to running with its external correlation set and last_error cleared.
func (s *Service) RecordSuccess(ctx context.Context, tender, id, reference, submissionID, projectID string) (*models.Batch, error) {
	batch, err := s.Get(ctx, tender, id)
	if err != nil {
		return nil, err
	}

	batch.SubmissionAttempts = append(batch.SubmissionAttempts, models.SubmissionAttempt{
		Timestamp: time.Now().UTC(),
		Status:    models.AttemptStatusSuccess,
		Reference: reference,
	})
	batch.Status = models.BatchStatusRunning
	batch.LastError = nil
	batch.ExternalReference = &reference
	batch.ExternalSubmissionID = &submissionID
	batch.ExternalProjectID = &projectID

	if err := s.store.Put(ctx, interfaces.KindBatch, batchKey(tender, id), batch); err != nil {
		return nil, fmt.Errorf("failed to record successful submission: %w", err)
	}

	s.logger.Info().
		Str("batch_id", id).
		Str("reference", reference).
		Msg("Batch submission recorded as successful")
	return batch, nil
}

// RecordFailure closes the in-progress attempt as failed and moves the batch
// to failed with last_error set
func (s *Service) RecordFailure(ctx context.Context, tender, id, errText string) (*models.Batch, error) {
	batch, err := s.Get(ctx, tender, id)
	if err != nil {
		return nil, err
	}

	batch.SubmissionAttempts = append(batch.SubmissionAttempts, models.SubmissionAttempt{
		Timestamp: time.Now().UTC(),
		Status:    models.AttemptStatusFailed,
		Error:     errText,
	})
	batch.Status = models.BatchStatusFailed
	batch.LastError = &errText

	if err := s.store.Put(ctx, interfaces.KindBatch, batchKey(tender, id), batch); err != nil {
		return nil, fmt.Errorf("failed to record failed submission: %w", err)
	}

	s.logger.Warn().
		Str("batch_id", id).
		Str("error", errText).
		Msg("Batch submission recorded as failed")
	return batch, nil
}

// MarkPending re-enters a batch into the pending state for a manual retry
func (s *Service) MarkPending(ctx context.Context, tender, id string) error {
	return s.UpdateStatus(ctx, tender, id, models.BatchStatusPending)
}

// Delete removes a batch. File records are released first; if releasing
// fails the batch record is kept so the operation stays retryable and the
// file-ownership link is never silently lost. The reference index entry is
// pruned best-effort.
func (s *Service) Delete(ctx context.Context, tender, id string) error {
	batch, err := s.Get(ctx, tender, id)
	if err != nil {
		return err
	}

	if err := s.files.Release(ctx, tender, batch.FilePaths); err != nil {
		return fmt.Errorf("failed to release batch files, batch retained: %w", err)
	}

	if batch.ExternalReference != nil {
		if err := s.refindex.Delete(ctx, *batch.ExternalReference); err != nil {
			s.logger.Warn().Err(err).
				Str("reference", *batch.ExternalReference).
				Msg("Failed to prune reference index entry")
		}
	}

	if err := s.store.Delete(ctx, interfaces.KindBatch, batchKey(tender, id)); err != nil {
		return fmt.Errorf("failed to delete batch record: %w", err)
	}

	s.logger.Info().
		Str("tender", tender).
		Str("batch_id", id).
		Msg("Batch deleted")
	return nil
}
