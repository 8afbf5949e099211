package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
	"github.com/ternarybob/tenderdock/internal/services/files"
)

// FileHandler handles HTTP requests for per-tender file records
type FileHandler struct {
	files  *files.Service
	logger arbor.ILogger
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(filesService *files.Service, logger arbor.ILogger) *FileHandler {
	return &FileHandler{
		files:  filesService,
		logger: logger,
	}
}

// registerRequest is the payload for registering an uploaded file
type registerRequest struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// RegisterHandler records an uploaded file for a tender
// POST /api/tenders/{tender}/files
func (h *FileHandler) RegisterHandler(w http.ResponseWriter, r *http.Request, tender string) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Path == "" {
		WriteError(w, http.StatusBadRequest, "Path is required")
		return
	}

	record := models.NewFileRecord(tender, req.Path, req.Name, req.Size, req.ContentType)
	if err := h.files.Register(r.Context(), record); err != nil {
		h.logger.Error().Err(err).Str("path", req.Path).Msg("Failed to register file")
		WriteError(w, http.StatusInternalServerError, "Failed to register file")
		return
	}

	WriteJSON(w, http.StatusCreated, record)
}

// ListHandler lists file records for a tender
// GET /api/tenders/{tender}/files
func (h *FileHandler) ListHandler(w http.ResponseWriter, r *http.Request, tender string) {
	list, err := h.files.List(r.Context(), tender)
	if err != nil {
		h.logger.Error().Err(err).Str("tender", tender).Msg("Failed to list files")
		WriteError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"files": list,
		"count": len(list),
	})
}

// GetHandler returns a single file record by path query parameter
// GET /api/tenders/{tender}/files/record?path=...
func (h *FileHandler) GetHandler(w http.ResponseWriter, r *http.Request, tender string) {
	path := r.URL.Query().Get("path")
	if path == "" {
		WriteError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}

	record, err := h.files.Get(r.Context(), tender, path)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "File not found")
			return
		}
		h.logger.Error().Err(err).Str("path", path).Msg("Failed to get file")
		WriteError(w, http.StatusInternalServerError, "Failed to get file")
		return
	}

	WriteJSON(w, http.StatusOK, record)
}
