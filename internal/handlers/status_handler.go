package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/storage"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	store     *storage.MetadataStore
	sweeper   SweeperStatus
	startTime time.Time
	logger    arbor.ILogger
}

// SweeperStatus exposes the retry sweeper's running state to the status endpoint
type SweeperStatus interface {
	IsRunning() bool
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(store *storage.MetadataStore, sweeper SweeperStatus, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		store:     store,
		sweeper:   sweeper,
		startTime: time.Now(),
		logger:    logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := map[string]interface{}{
		"status":    "ok",
		"version":   common.GetVersion(),
		"build":     common.GetBuild(),
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"storage":   h.store.Health(),
		"timestamp": time.Now().UTC(),
	}
	if h.sweeper != nil {
		status["sweeper_running"] = h.sweeper.IsRunning()
	}

	WriteJSON(w, http.StatusOK, status)
}
