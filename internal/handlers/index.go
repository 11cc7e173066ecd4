package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"safeguardai/internal/contextutil"
	"safeguardai/internal/indexer"
)

// Indexer is the document indexing surface used by the admin endpoints.
type Indexer interface {
	AddDocument(ctx context.Context, path, title string, force bool) error
	Stats(ctx context.Context) (indexer.Stats, error)
}

// IndexRequest is the payload for POST /api/index.
type IndexRequest struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Force bool   `json:"force"`
}

// IndexResponse confirms an indexing run.
type IndexResponse struct {
	Status string `json:"status"`
	Title  string `json:"title"`
}

// IndexHandler indexes a document from a local path.
type IndexHandler struct {
	pipeline Indexer
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(pipeline Indexer) *IndexHandler {
	return &IndexHandler{pipeline: pipeline}
}

// ServeHTTP handles POST /api/index.
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := contextutil.LoggerFromContext(r.Context())

	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	if err := h.pipeline.AddDocument(r.Context(), req.Path, req.Title, req.Force); err != nil {
		logger.ErrorContext(r.Context(), "indexing failed", "path", req.Path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(IndexResponse{Status: "indexed", Title: req.Title})
}

// StatsHandler reports index counts and sources.
type StatsHandler struct {
	pipeline Indexer
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(pipeline Indexer) *StatsHandler {
	return &StatsHandler{pipeline: pipeline}
}

// ServeHTTP handles GET /api/stats.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := contextutil.LoggerFromContext(r.Context())

	stats, err := h.pipeline.Stats(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to read index stats", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
