package handlers

import (
	"net/http"

	"contentscout/internal/chunkstore"
)

// CacheStatsHandler serves the chunk store's diagnostic snapshot.
type CacheStatsHandler struct {
	store *chunkstore.Store
}

// NewCacheStatsHandler creates a new CacheStatsHandler.
func NewCacheStatsHandler(store *chunkstore.Store) *CacheStatsHandler {
	return &CacheStatsHandler{store: store}
}

// ServeHTTP returns cache entry counts and on-disk size.
//
// swagger:route GET /api/cache/stats cacheStats
func (h *CacheStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		writeError(ctx, w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(ctx, w, http.StatusOK, h.store.GetCacheStats())
}
