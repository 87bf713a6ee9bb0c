package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"contentscout/internal/chunker"
	"contentscout/internal/chunkstore"
	"contentscout/internal/config"
	"contentscout/internal/discovery"
	"contentscout/internal/http"
	"contentscout/internal/llm"
	"contentscout/internal/scorer"
	"contentscout/internal/storage"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API maintains a content-addressed chunk cache over a markdown
// workspace and ranks existing content against free-form content goals.
//
// swagger:meta

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	store, err := chunkstore.New(cfg.CacheDir)
	if err != nil {
		log.Fatalf("Failed to open chunk store: %v", err)
	}
	slog.Info("Chunk store ready", "dir", cfg.CacheDir)

	runRepo := storage.NewRunRepo(db)

	pipeline := discovery.NewPipeline(
		cfg.WorkspacePath,
		store,
		discovery.WithWorkers(cfg.DiscoveryWorkers),
		discovery.WithChunker(chunker.NewSemanticChunkerWithSizes(cfg.ChunkMaxSize, cfg.ChunkMinSize)),
		discovery.WithRunStore(runRepo),
	)

	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingVectorSize)

	scoreCfg := scorer.DefaultScoreConfig()
	scoreCfg.TopK = cfg.RelevanceTopK
	relevance := scorer.NewScorer(embedder, store, scorer.WithScoreConfig(scoreCfg))

	deps := &http.Deps{
		Pipeline:  pipeline,
		Scorer:    relevance,
		Store:     store,
		Runs:      runRepo,
		DB:        db,
		Workspace: cfg.WorkspacePath,
		CacheDir:  cfg.CacheDir,
	}
	router := http.NewRouter(deps)

	// Warm the cache in the background so the first relevance query does
	// not pay for a cold discovery pass.
	go func() {
		slog.Info("Starting background discovery pass", "workspace", cfg.WorkspacePath)
		if _, err := pipeline.Discover(context.Background()); err != nil {
			slog.Error("Background discovery failed", "error", err)
		}
	}()

	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
