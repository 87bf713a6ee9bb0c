package handlers

import (
	"net/http"

	"contentscout/internal/contextutil"
	"contentscout/internal/discovery"
)

// DiscoverHandler handles HTTP requests to run a discovery pass.
type DiscoverHandler struct {
	pipeline *discovery.Pipeline
}

// NewDiscoverHandler creates a new DiscoverHandler.
func NewDiscoverHandler(pipeline *discovery.Pipeline) *DiscoverHandler {
	return &DiscoverHandler{pipeline: pipeline}
}

// DiscoverResponse summarizes one discovery pass.
//
// swagger:model DiscoverResponse
type DiscoverResponse struct {
	FilesTotal  int   `json:"files_total"`
	CacheHits   int   `json:"cache_hits"`
	Reprocessed int   `json:"reprocessed"`
	Failed      int   `json:"failed"`
	ChunkCount  int   `json:"chunk_count"`
	DurationMS  int64 `json:"duration_ms"`
}

// ServeHTTP runs a discovery pass over the workspace and returns its
// summary.
//
// swagger:route POST /api/discover discover
func (h *DiscoverHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		writeError(ctx, w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := h.pipeline.Discover(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "discovery pass failed", "error", err)
		writeError(ctx, w, http.StatusInternalServerError, "discovery failed")
		return
	}

	writeJSON(ctx, w, http.StatusOK, DiscoverResponse{
		FilesTotal:  result.FilesTotal,
		CacheHits:   result.CacheHits,
		Reprocessed: result.Reprocessed,
		Failed:      result.Failed,
		ChunkCount:  len(result.Chunks),
		DurationMS:  result.Duration.Milliseconds(),
	})
}
