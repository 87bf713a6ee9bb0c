package http

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"contentscout/internal/chunkstore"
	"contentscout/internal/discovery"
	"contentscout/internal/storage"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	workspace := t.TempDir()
	cacheDir := filepath.Join(workspace, ".contentscout")

	store, err := chunkstore.New(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	db, err := storage.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatal(err)
	}

	return NewRouter(&Deps{
		Pipeline:  discovery.NewPipeline(workspace, store),
		Store:     store,
		Runs:      storage.NewRunRepo(db),
		DB:        db,
		Workspace: workspace,
		CacheDir:  cacheDir,
	})
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/cache/stats", http.StatusOK},
		{http.MethodGet, "/api/runs", http.StatusOK},
		{http.MethodPost, "/api/discover", http.StatusOK},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
		{http.MethodGet, "/api/discover", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("allow-methods header missing")
	}
}

func TestRouter_JSONContentType(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}
}
