package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"contentscout/internal/contextutil"
	"contentscout/internal/discovery"
	"contentscout/internal/scorer"
)

// RelevanceHandler handles HTTP requests for relevance ranking: it runs a
// discovery pass (cheap when the cache is warm), fills missing embeddings,
// and ranks files against the query context.
type RelevanceHandler struct {
	pipeline *discovery.Pipeline
	scorer   *scorer.Scorer
}

// NewRelevanceHandler creates a new RelevanceHandler.
func NewRelevanceHandler(pipeline *discovery.Pipeline, sc *scorer.Scorer) *RelevanceHandler {
	return &RelevanceHandler{pipeline: pipeline, scorer: sc}
}

// RelevanceResponse is the ranked file list for a query.
//
// swagger:model RelevanceResponse
type RelevanceResponse struct {
	Results []scorer.RankedFile `json:"results"`
	// ChunksScored counts the chunks that carried embeddings and entered
	// scoring.
	ChunksScored int `json:"chunks_scored"`
}

// ServeHTTP ranks workspace files against the posted query context.
//
// swagger:route POST /api/relevance relevance
func (h *RelevanceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		writeError(ctx, w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var query scorer.QueryContext
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(query.Goal) == "" {
		writeError(ctx, w, http.StatusBadRequest, "goal is required")
		return
	}

	result, err := h.pipeline.Discover(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "discovery pass failed", "error", err)
		writeError(ctx, w, http.StatusInternalServerError, "discovery failed")
		return
	}

	// A partial embedding failure still leaves a scorable subset; degrade
	// to ranking whatever carries vectors.
	if _, err := h.scorer.EnsureEmbeddings(ctx, result.Chunks); err != nil {
		logger.WarnContext(ctx, "embedding fill incomplete", "error", err)
	}

	ranked, err := h.scorer.RankFiles(ctx, query, result.Chunks)
	if err != nil {
		logger.ErrorContext(ctx, "relevance ranking failed", "error", err)
		writeError(ctx, w, http.StatusInternalServerError, "ranking failed")
		return
	}

	scored := 0
	for _, chunk := range result.Chunks {
		if chunk.Embedding != nil {
			scored++
		}
	}

	writeJSON(ctx, w, http.StatusOK, RelevanceResponse{Results: ranked, ChunksScored: scored})
}
