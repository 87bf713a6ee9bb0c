package handlers

import (
	"net/http"
	"strconv"

	"contentscout/internal/contextutil"
	"contentscout/internal/storage"
)

const defaultRunsLimit = 20

// RunsHandler serves the discovery run history.
type RunsHandler struct {
	runs storage.RunStore
}

// NewRunsHandler creates a new RunsHandler.
func NewRunsHandler(runs storage.RunStore) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// RunsResponse lists recent discovery runs, newest first.
//
// swagger:model RunsResponse
type RunsResponse struct {
	Runs []storage.RunRecord `json:"runs"`
}

// ServeHTTP returns the most recent discovery runs. The optional ?limit=
// query parameter caps the result.
//
// swagger:route GET /api/runs runs
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		writeError(ctx, w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(ctx, w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := h.runs.ListRecent(ctx, limit)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list runs", "error", err)
		writeError(ctx, w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []storage.RunRecord{}
	}

	writeJSON(ctx, w, http.StatusOK, RunsResponse{Runs: runs})
}
