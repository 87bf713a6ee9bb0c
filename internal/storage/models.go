package storage

import "time"

// RunRecord summarizes one discovery pass over the workspace.
type RunRecord struct {
	ID          string    `json:"id"` // UUID, assigned on insert when empty
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	FilesTotal  int       `json:"files_total"`
	CacheHits   int       `json:"cache_hits"`
	Reprocessed int       `json:"reprocessed"`
	Failed      int       `json:"failed"`
	ChunkCount  int       `json:"chunk_count"`
}
