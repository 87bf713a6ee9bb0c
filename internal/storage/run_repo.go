package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_run_store.go -package=mocks contentscout/internal/storage RunStore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// RunStore defines the interface for run-history operations.
type RunStore interface {
	// Insert records a completed discovery run. Assigns run.ID when empty.
	Insert(ctx context.Context, run *RunRecord) error
	// ListRecent returns the most recent runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]RunRecord, error)
}

// RunRepo provides SQLite-backed run-history operations.
// It implements the RunStore interface.
type RunRepo struct {
	db *sql.DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// Insert records a completed discovery run.
func (r *RunRepo) Insert(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, duration_ms, files_total, cache_hits, reprocessed, failed, chunk_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.DurationMS, run.FilesTotal, run.CacheHits, run.Reprocessed, run.Failed, run.ChunkCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// ListRecent returns the most recent runs, newest first.
// Returns an empty slice when no runs exist (not an error).
func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, files_total, cache_hits, reprocessed, failed, chunk_count
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.DurationMS, &run.FilesTotal,
			&run.CacheHits, &run.Reprocessed, &run.Failed, &run.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}
