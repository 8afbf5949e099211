package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/tenderdock/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Batches and files (per-tender)
	mux.HandleFunc("/api/tenders/", s.handleTenderRoutes)

	// API routes - Engine callbacks
	mux.HandleFunc("/api/callbacks/extraction", s.app.CallbackHandler.ExtractionCallbackHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler) // GET - application status
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleTenderRoutes dispatches /api/tenders/{tender}/... requests
func (s *Server) handleTenderRoutes(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/tenders/"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[0] == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	tender := parts[0]

	switch parts[1] {
	case "batches":
		s.handleBatchRoutes(w, r, tender, parts[2:])
	case "files":
		s.handleFileRoutes(w, r, tender, parts[2:])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleBatchRoutes routes /api/tenders/{tender}/batches[/{id}[/retry]]
func (s *Server) handleBatchRoutes(w http.ResponseWriter, r *http.Request, tender string, rest []string) {
	switch len(rest) {
	case 0:
		// /api/tenders/{tender}/batches
		RouteByMethod(w, r, MethodRouter{
			"GET": func(w http.ResponseWriter, r *http.Request) {
				s.app.BatchHandler.ListHandler(w, r, tender)
			},
			"POST": func(w http.ResponseWriter, r *http.Request) {
				s.app.BatchHandler.CreateHandler(w, r, tender)
			},
		})
	case 1:
		// /api/tenders/{tender}/batches/{id}
		batchID := rest[0]
		RouteByMethod(w, r, MethodRouter{
			"GET": func(w http.ResponseWriter, r *http.Request) {
				s.app.BatchHandler.GetHandler(w, r, tender, batchID)
			},
			"DELETE": func(w http.ResponseWriter, r *http.Request) {
				s.app.BatchHandler.DeleteHandler(w, r, tender, batchID)
			},
		})
	case 2:
		// /api/tenders/{tender}/batches/{id}/retry
		if rest[1] == "retry" && r.Method == "POST" {
			s.app.BatchHandler.RetryHandler(w, r, tender, rest[0])
			return
		}
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleFileRoutes routes /api/tenders/{tender}/files[/record]
func (s *Server) handleFileRoutes(w http.ResponseWriter, r *http.Request, tender string, rest []string) {
	switch {
	case len(rest) == 0:
		RouteByMethod(w, r, MethodRouter{
			"GET": func(w http.ResponseWriter, r *http.Request) {
				s.app.FileHandler.ListHandler(w, r, tender)
			},
			"POST": func(w http.ResponseWriter, r *http.Request) {
				s.app.FileHandler.RegisterHandler(w, r, tender)
			},
		})
	case len(rest) == 1 && rest[0] == "record":
		if !handlers.RequireMethod(w, r, "GET") {
			return
		}
		s.app.FileHandler.GetHandler(w, r, tender)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}
