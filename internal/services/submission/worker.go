// -----------------------------------------------------------------------
// Submission worker - the per-attempt state machine for handing a batch
// to the automation engine
// -----------------------------------------------------------------------

package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
	"github.com/ternarybob/tenderdock/internal/services/batches"
	"github.com/ternarybob/tenderdock/internal/services/refindex"
	"github.com/ternarybob/tenderdock/internal/services/users"
)

// Worker runs one submission attempt for one batch, either synchronously
// (manual retry) or detached (fire-and-forget on creation). The same worker
// is driven by the HTTP boundary and by the retry sweeper.
type Worker struct {
	store    interfaces.RecordStore
	batches  *batches.Service
	users    *users.Service
	engine   interfaces.EngineClient
	refindex *refindex.Service
	folderID string

	// staleAfter bounds the in-progress guard: an in-progress attempt older
	// than this is treated as abandoned by a dead process and superseded.
	staleAfter time.Duration

	logger arbor.ILogger
}

// NewWorker creates a submission worker
func NewWorker(store interfaces.RecordStore, batchesService *batches.Service, usersService *users.Service, engineClient interfaces.EngineClient, refindexService *refindex.Service, folderID string, staleAfter time.Duration, logger arbor.ILogger) *Worker {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Worker{
		store:      store,
		batches:    batchesService,
		users:      usersService,
		engine:     engineClient,
		refindex:   refindexService,
		folderID:   folderID,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// RunDetached spawns Run in a panic-protected goroutine so the triggering
// request can return immediately. Failures surface in batch state only.
func (w *Worker) RunDetached(tender, batchID string) {
	common.SafeGo(w.logger, "submission:"+batchID, func() {
		if err := w.Run(context.Background(), tender, batchID); err != nil {
			w.logger.Warn().Err(err).
				Str("tender", tender).
				Str("batch_id", batchID).
				Msg("Detached submission attempt failed")
		}
	})
}

// Run executes one submission attempt:
//
//  1. append an in-progress attempt (refusing a live concurrent one)
//  2. resolve or create the project record for the tender
//  3. resolve the submitting user (non-retryable failure when absent)
//  4. generate a fresh correlation token
//  5. write the submission record and per-file tracking records
//  6. build queue items and call the engine
//  7. on success: record success, persist external ids, index the reference
//  8. on failure: record failure and compensate the tracking records
//
// A concurrent in-progress attempt short-circuits to nil: the racing caller
// treats the batch as already being handled.
func (w *Worker) Run(ctx context.Context, tender, batchID string) error {
	batch, err := w.batches.Get(ctx, tender, batchID)
	if err != nil {
		return fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}

	if w.refuseConcurrent(batch) {
		w.logger.Info().
			Str("batch_id", batchID).
			Msg("Submission attempt already in progress, skipping")
		return nil
	}

	batch, err = w.batches.AppendAttempt(ctx, tender, batchID, models.SubmissionAttempt{
		Timestamp: time.Now().UTC(),
		Status:    models.AttemptStatusInProgress,
	})
	if err != nil {
		return fmt.Errorf("failed to open submission attempt: %w", err)
	}

	project, err := w.resolveProject(ctx, tender, batch.Destination)
	if err != nil {
		return w.fail(ctx, tender, batchID, "", nil, err)
	}

	user, err := w.users.Resolve(ctx, batch.SubmittedBy)
	if err != nil {
		if errors.Is(err, models.ErrUserNotRegistered) {
			// Configuration problem, not a transient fault. The batch goes to
			// failed, which the sweeper never selects, so no retry cycles are
			// consumed. No structured submission records are created.
			if _, recErr := w.batches.RecordFailure(ctx, tender, batchID, err.Error()); recErr != nil {
				w.logger.Error().Err(recErr).Str("batch_id", batchID).Msg("Failed to record user-not-registered failure")
			}
			return models.ErrUserNotRegistered
		}
		return w.fail(ctx, tender, batchID, "", nil, err)
	}

	reference := common.NewSubmissionReference()

	// Structured records are written before the external call so a failed or
	// interrupted submission still leaves an audit trail.
	sub := &models.SubmissionRecord{
		ID:          common.NewSubmissionID(),
		Tender:      tender,
		BatchID:     batch.ID,
		ProjectID:   project.ID,
		Reference:   reference,
		SubmittedBy: user.Identity,
		FileCount:   batch.FileCount,
		CreatedAt:   time.Now().UTC(),
	}
	if err := w.store.Put(ctx, interfaces.KindSubmission, submissionKey(tender, sub.ID), sub); err != nil {
		return w.fail(ctx, tender, batchID, "", nil, fmt.Errorf("failed to store submission record: %w", err))
	}

	tracked := make([]string, 0, len(batch.FilePaths))
	for _, path := range batch.FilePaths {
		tracking := &models.FileTrackingRecord{
			SubmissionID: sub.ID,
			Tender:       tender,
			Path:         path,
			Status:       models.FileStatusQueued,
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		}
		key := trackingKey(tender, sub.ID, path)
		if err := w.store.Put(ctx, interfaces.KindFileTracking, key, tracking); err != nil {
			return w.fail(ctx, tender, batchID, sub.ID, tracked, fmt.Errorf("failed to store tracking record for %s: %w", path, err))
		}
		tracked = append(tracked, key)
	}

	items := make([]interfaces.QueueItem, 0, len(batch.FilePaths))
	submissionDate := time.Now().UTC()
	for _, path := range batch.FilePaths {
		items = append(items, interfaces.QueueItem{
			ProjectID:      project.ID,
			SubmittedBy:    user.Identity,
			FilePath:       path,
			Reference:      reference,
			TotalFiles:     batch.FileCount,
			SubmissionDate: submissionDate,
		})
	}

	result, err := w.engine.SubmitBatch(ctx, items)
	if err != nil {
		return w.fail(ctx, tender, batchID, sub.ID, tracked, err)
	}

	// The engine may return its own reference; the generated correlation token
	// is authoritative when it does not.
	acceptedRef := result.Reference
	if acceptedRef == "" {
		acceptedRef = reference
	}

	if _, err := w.batches.RecordSuccess(ctx, tender, batchID, acceptedRef, result.SubmissionID, project.ID); err != nil {
		return fmt.Errorf("engine accepted batch %s but recording success failed: %w", batchID, err)
	}

	// The batch record is the source of truth; the index is best-effort.
	if err := w.refindex.Put(ctx, acceptedRef, tender, batchID); err != nil {
		w.logger.Error().Err(err).
			Str("batch_id", batchID).
			Str("reference", acceptedRef).
			Msg("Failed to write reference index entry")
	}

	w.logger.Info().
		Str("tender", tender).
		Str("batch_id", batchID).
		Str("reference", acceptedRef).
		Int("files", batch.FileCount).
		Msg("Batch submitted")
	return nil
}

// refuseConcurrent reports whether a live in-progress attempt blocks this run.
// An in-progress attempt older than staleAfter belongs to a dead process and
// is superseded rather than honored.
func (w *Worker) refuseConcurrent(batch *models.Batch) bool {
	latest := batch.LatestAttempt()
	if latest == nil || latest.Status != models.AttemptStatusInProgress {
		return false
	}
	return time.Since(latest.Timestamp) < w.staleAfter
}

// resolveProject looks up the tender's project record, creating it on first
// submission. Lookup-before-create keeps retries idempotent.
func (w *Worker) resolveProject(ctx context.Context, tender, destination string) (*models.ProjectRecord, error) {
	var project models.ProjectRecord
	err := w.store.Get(ctx, interfaces.KindProject, tender, &project)
	if err == nil {
		return &project, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up project for tender %s: %w", tender, err)
	}

	project = models.ProjectRecord{
		ID:             "proj_" + tender,
		Tender:         tender,
		Name:           destination,
		EngineFolderID: w.folderID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := w.store.Put(ctx, interfaces.KindProject, tender, &project); err != nil {
		return nil, fmt.Errorf("failed to create project for tender %s: %w", tender, err)
	}

	w.logger.Info().
		Str("tender", tender).
		Str("project_id", project.ID).
		Msg("Project record created")
	return &project, nil
}

// fail records the failed attempt and compensates the per-file tracking
// records created earlier in the run. The project and submission records are
// deliberately kept as forensic context. A compensation failure is logged but
// never masks the original error.
func (w *Worker) fail(ctx context.Context, tender, batchID, submissionID string, trackingKeys []string, cause error) error {
	if _, err := w.batches.RecordFailure(ctx, tender, batchID, cause.Error()); err != nil {
		w.logger.Error().Err(err).
			Str("batch_id", batchID).
			Msg("Failed to record submission failure")
	}

	for _, key := range trackingKeys {
		if err := w.store.Delete(ctx, interfaces.KindFileTracking, key); err != nil {
			w.logger.Warn().Err(err).
				Str("key", key).
				Str("submission_id", submissionID).
				Msg("Compensation failed to delete tracking record, manual reconciliation needed")
		}
	}

	w.logger.Warn().Err(cause).
		Str("tender", tender).
		Str("batch_id", batchID).
		Int("compensated", len(trackingKeys)).
		Msg("Submission attempt failed")
	return cause
}

func submissionKey(tender, submissionID string) string {
	return tender + "/" + submissionID
}

func trackingKey(tender, submissionID, path string) string {
	return tender + "/" + submissionID + "/" + path
}
