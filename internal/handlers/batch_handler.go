package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
	"github.com/ternarybob/tenderdock/internal/services/batches"
)

// BatchHandler handles batch-related API requests
type BatchHandler struct {
	batches *batches.Service
	worker  interfaces.SubmissionRunner
	logger  arbor.ILogger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(batchesService *batches.Service, worker interfaces.SubmissionRunner, logger arbor.ILogger) *BatchHandler {
	return &BatchHandler{
		batches: batchesService,
		worker:  worker,
		logger:  logger,
	}
}

// createRequest is the JSON body for batch creation
type createRequest struct {
	Name        string         `json:"name"`
	FilePaths   []string       `json:"file_paths"`
	Destination string         `json:"destination"`
	Region      *models.Region `json:"region,omitempty"`
	SubmittedBy string         `json:"submitted_by"`
}

// CreateHandler creates a batch and triggers its submission as a detached task
// POST /api/tenders/{tender}/batches
func (h *BatchHandler) CreateHandler(w http.ResponseWriter, r *http.Request, tender string) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	batch, err := h.batches.Create(r.Context(), &batches.CreateRequest{
		Tender:      tender,
		Name:        req.Name,
		FilePaths:   req.FilePaths,
		Destination: req.Destination,
		Region:      req.Region,
		SubmittedBy: req.SubmittedBy,
	})
	if err != nil {
		if models.IsValidationError(err) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("tender", tender).Msg("Failed to create batch")
		WriteError(w, http.StatusInternalServerError, "Failed to create batch")
		return
	}

	// Fire-and-forget: the creating request returns immediately; submission
	// outcome is observable via batch status and last_error.
	h.worker.RunDetached(tender, batch.ID)

	WriteJSON(w, http.StatusCreated, batch)
}

// ListHandler returns all batches of a tender, most recently submitted first
// GET /api/tenders/{tender}/batches
func (h *BatchHandler) ListHandler(w http.ResponseWriter, r *http.Request, tender string) {
	list, err := h.batches.List(r.Context(), tender)
	if err != nil {
		h.logger.Error().Err(err).Str("tender", tender).Msg("Failed to list batches")
		WriteError(w, http.StatusInternalServerError, "Failed to list batches")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": list,
		"count":   len(list),
	})
}

// GetHandler returns a single batch
// GET /api/tenders/{tender}/batches/{id}
func (h *BatchHandler) GetHandler(w http.ResponseWriter, r *http.Request, tender, batchID string) {
	batch, err := h.batches.Get(r.Context(), tender, batchID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Batch not found")
			return
		}
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to get batch")
		WriteError(w, http.StatusInternalServerError, "Failed to get batch")
		return
	}

	WriteJSON(w, http.StatusOK, batch)
}

// RetryHandler re-enters a batch into pending and runs a submission attempt
// POST /api/tenders/{tender}/batches/{id}/retry
func (h *BatchHandler) RetryHandler(w http.ResponseWriter, r *http.Request, tender, batchID string) {
	batch, err := h.batches.Get(r.Context(), tender, batchID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Batch not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get batch")
		return
	}

	if batch.Status == models.BatchStatusRunning || batch.Status == models.BatchStatusCompleted {
		WriteError(w, http.StatusConflict, "Batch is not retryable in status "+string(batch.Status))
		return
	}

	if err := h.batches.MarkPending(r.Context(), tender, batchID); err != nil {
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to mark batch pending")
		WriteError(w, http.StatusInternalServerError, "Failed to mark batch pending")
		return
	}

	h.worker.RunDetached(tender, batchID)
	WriteStarted(w, "Submission retry started")
}

// DeleteHandler deletes a batch, restoring its files to the unbatched state
// DELETE /api/tenders/{tender}/batches/{id}
func (h *BatchHandler) DeleteHandler(w http.ResponseWriter, r *http.Request, tender, batchID string) {
	if err := h.batches.Delete(r.Context(), tender, batchID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Batch not found")
			return
		}
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to delete batch")
		WriteError(w, http.StatusInternalServerError, "Failed to delete batch")
		return
	}

	WriteSuccess(w, "Batch deleted")
}
