// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// WorkspacePath is the directory of markdown content to analyze.
	WorkspacePath string
	// CacheDir is the chunk store directory (manifest.json + record files).
	CacheDir string
	// DBPath is the SQLite file for run history.
	DBPath string

	EmbeddingBaseURL    string
	EmbeddingModelName  string
	EmbeddingAPIKey     string
	EmbeddingVectorSize int

	DiscoveryWorkers int
	RelevanceTopK    int
	ChunkMaxSize     int
	ChunkMinSize     int

	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables, applying defaults
// for optional fields and validating required ones. A .env file in the
// current directory or any parent (up to the module root) is loaded first;
// variables already set in the environment win.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		WorkspacePath:      getEnv("WORKSPACE_PATH", ""),
		DBPath:             getEnv("DB_PATH", "./data/contentscout.db"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", "dummy-key"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	if cfg.WorkspacePath == "" {
		return nil, fmt.Errorf("WORKSPACE_PATH is required")
	}
	cfg.CacheDir = getEnv("CACHE_DIR", filepath.Join(cfg.WorkspacePath, ".contentscout"))

	// The vector size must match the embedding model's output dimension;
	// there is no safe default to guess.
	vectorSizeStr := getEnv("EMBEDDING_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil || vectorSize <= 0 {
		return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE must be a positive integer")
	}
	cfg.EmbeddingVectorSize = vectorSize

	cfg.DiscoveryWorkers, err = getEnvInt("DISCOVERY_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	cfg.RelevanceTopK, err = getEnvInt("RELEVANCE_TOP_K", 3)
	if err != nil {
		return nil, err
	}
	cfg.ChunkMaxSize, err = getEnvInt("CHUNK_MAX_SIZE", 3000)
	if err != nil {
		return nil, err
	}
	cfg.ChunkMinSize, err = getEnvInt("CHUNK_MIN_SIZE", 500)
	if err != nil {
		return nil, err
	}
	if cfg.ChunkMinSize >= cfg.ChunkMaxSize {
		return nil, fmt.Errorf("CHUNK_MIN_SIZE must be smaller than CHUNK_MAX_SIZE")
	}

	cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// loadDotEnv tries the current directory, then walks up a few levels so the
// binary can run from a subdirectory of the project.
func loadDotEnv() {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return value, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
}
