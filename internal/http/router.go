// Package http wires the service's HTTP surface.
package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"contentscout/internal/chunkstore"
	"contentscout/internal/discovery"
	"contentscout/internal/handlers"
	"contentscout/internal/scorer"
	"contentscout/internal/storage"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Pipeline  *discovery.Pipeline
	Scorer    *scorer.Scorer
	Store     *chunkstore.Store
	Runs      storage.RunStore
	DB        *sql.DB
	Workspace string
	CacheDir  string
}

// NewRouter creates the HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(CORS)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/discover", handlers.NewDiscoverHandler(deps.Pipeline))
		r.Method(http.MethodPost, "/relevance", handlers.NewRelevanceHandler(deps.Pipeline, deps.Scorer))
		r.Method(http.MethodGet, "/cache/stats", handlers.NewCacheStatsHandler(deps.Store))
		r.Method(http.MethodGet, "/runs", handlers.NewRunsHandler(deps.Runs))
		r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.Workspace, deps.CacheDir, deps.DB))
	})

	return r
}
