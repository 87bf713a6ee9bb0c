package handlers

import (
	"database/sql"
	"net/http"
	"os"
	"time"
)

// HealthHandler reports whether the service's dependencies are usable: the
// workspace directory, the cache directory, and the run-history database.
type HealthHandler struct {
	workspace string
	cacheDir  string
	db        *sql.DB
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(workspace, cacheDir string, db *sql.DB) *HealthHandler {
	return &HealthHandler{workspace: workspace, cacheDir: cacheDir, db: db}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy" or "unhealthy"
	Status string `json:"status"`
	// Timestamp of the health check
	Timestamp string `json:"timestamp"`
	// Individual check results
	Checks map[string]string `json:"checks"`
	// Issues present only when unhealthy
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP returns 200 when all checks pass, 503 otherwise.
//
// swagger:route GET /api/health health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		writeError(ctx, w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	checks := make(map[string]string)
	var issues []string

	if info, err := os.Stat(h.workspace); err == nil && info.IsDir() {
		checks["workspace"] = "ok"
	} else {
		checks["workspace"] = "error"
		issues = append(issues, "workspace_unavailable")
	}

	if info, err := os.Stat(h.cacheDir); err == nil && info.IsDir() {
		checks["cache"] = "ok"
	} else {
		checks["cache"] = "error"
		issues = append(issues, "cache_unavailable")
	}

	if h.db != nil && h.db.PingContext(ctx) == nil {
		checks["database"] = "ok"
	} else {
		checks["database"] = "error"
		issues = append(issues, "database_unavailable")
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if len(issues) > 0 {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(ctx, w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	})
}
