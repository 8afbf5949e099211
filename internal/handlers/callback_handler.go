package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
	"github.com/ternarybob/tenderdock/internal/services/batches"
	"github.com/ternarybob/tenderdock/internal/services/files"
	"github.com/ternarybob/tenderdock/internal/services/refindex"
)

// CallbackHandler receives asynchronous per-file outcome reports from the
// automation engine. The correlation reference resolves through the reference
// index back to the owning batch; the Batch record stays the source of truth.
type CallbackHandler struct {
	refindex *refindex.Service
	files    *files.Service
	batches  *batches.Service
	logger   arbor.ILogger
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(refindexService *refindex.Service, filesService *files.Service, batchesService *batches.Service, logger arbor.ILogger) *CallbackHandler {
	return &CallbackHandler{
		refindex: refindexService,
		files:    filesService,
		batches:  batchesService,
		logger:   logger,
	}
}

// fileResult is one per-file outcome in a callback
type fileResult struct {
	Path          string  `json:"path"`
	Status        string  `json:"status"` // extracted | failed | exported
	DrawingNumber *string `json:"drawing_number,omitempty"`
	Revision      *string `json:"revision,omitempty"`
	Title         *string `json:"title,omitempty"`
}

// callbackRequest is the engine's outcome report payload
type callbackRequest struct {
	Reference string       `json:"reference"`
	Results   []fileResult `json:"results"`
}

// ExtractionCallbackHandler applies per-file outcomes reported by the engine
// POST /api/callbacks/extraction
func (h *CallbackHandler) ExtractionCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Reference == "" {
		WriteError(w, http.StatusBadRequest, "Reference is required")
		return
	}

	entry, err := h.refindex.Resolve(r.Context(), req.Reference)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Unknown reference")
			return
		}
		h.logger.Error().Err(err).Str("reference", req.Reference).Msg("Failed to resolve callback reference")
		WriteError(w, http.StatusInternalServerError, "Failed to resolve reference")
		return
	}

	applied := 0
	for _, result := range req.Results {
		status := models.FileStatus(result.Status)
		switch status {
		case models.FileStatusExtracted, models.FileStatusFailed, models.FileStatusExported:
		default:
			h.logger.Warn().
				Str("path", result.Path).
				Str("status", result.Status).
				Msg("Ignoring callback result with unknown status")
			continue
		}

		if err := h.files.ApplyExtractionResult(r.Context(), entry.Tender, result.Path, status, result.DrawingNumber, result.Revision, result.Title); err != nil {
			h.logger.Warn().Err(err).
				Str("path", result.Path).
				Msg("Failed to apply extraction result, continuing with others")
			continue
		}
		applied++
	}

	h.rollupBatch(r, entry)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"applied": applied,
	})
}

// rollupBatch moves a running batch to completed once every member file
// reached a terminal processing status
func (h *CallbackHandler) rollupBatch(r *http.Request, entry *models.ReferenceEntry) {
	batch, err := h.batches.Get(r.Context(), entry.Tender, entry.BatchID)
	if err != nil {
		h.logger.Warn().Err(err).Str("batch_id", entry.BatchID).Msg("Failed to load batch for completion rollup")
		return
	}
	if batch.Status != models.BatchStatusRunning {
		return
	}

	for _, path := range batch.FilePaths {
		record, err := h.files.Get(r.Context(), entry.Tender, path)
		if err != nil || !record.ProcessingStatus.IsTerminal() {
			return
		}
	}

	if err := h.batches.UpdateStatus(r.Context(), entry.Tender, entry.BatchID, models.BatchStatusCompleted); err != nil {
		h.logger.Warn().Err(err).Str("batch_id", entry.BatchID).Msg("Failed to mark batch completed")
		return
	}

	h.logger.Info().
		Str("tender", entry.Tender).
		Str("batch_id", entry.BatchID).
		Msg("Batch completed")
}
