// Package discovery produces the full, up-to-date chunk set for a working
// directory, reprocessing only files whose content hash changed since the
// cache last saw them.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"contentscout/internal/chunker"
	"contentscout/internal/chunkstore"
	"contentscout/internal/contextutil"
	"contentscout/internal/hashutil"
	"contentscout/internal/storage"
)

// DefaultWorkers bounds concurrent per-file reprocessing.
const DefaultWorkers = 4

// Pipeline walks a working directory, decides per-file cache-hit versus
// reprocess, parallelizes reprocessing, and keeps the cache consistent.
type Pipeline struct {
	workspace string
	store     *chunkstore.Store
	chunker   *chunker.SemanticChunker
	runs      storage.RunStore // optional run-history recorder, may be nil
	workers   int
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets the reprocessing worker count.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithChunker replaces the default chunker (used to tune size bounds).
func WithChunker(c *chunker.SemanticChunker) Option {
	return func(p *Pipeline) { p.chunker = c }
}

// WithRunStore attaches a run-history recorder; each discovery pass inserts
// one summary row.
func WithRunStore(runs storage.RunStore) Option {
	return func(p *Pipeline) { p.runs = runs }
}

// NewPipeline creates a discovery pipeline over workspace backed by store.
func NewPipeline(workspace string, store *chunkstore.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		workspace: workspace,
		store:     store,
		chunker:   chunker.NewSemanticChunker(),
		workers:   DefaultWorkers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is the outcome of one discovery pass. Chunk order within a file is
// preserved via ChunkIndex; across files there is no ordering guarantee.
type Result struct {
	Chunks      []*chunker.DocumentChunk
	FilesTotal  int
	CacheHits   int
	Reprocessed int
	Failed      int
	Duration    time.Duration
}

// Discover returns all chunks for the workspace, combining cached and
// freshly processed files. Individual file failures are logged and excluded;
// only a failure to enumerate the workspace aborts the pass.
func (p *Pipeline) Discover(ctx context.Context) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx)
	started := time.Now()

	// Repair drift left by prior runs (deleted files, partial writes)
	// before trusting any manifest entry.
	p.store.VerifyAndCleanupManifest()

	files, err := p.listMarkdownFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate workspace %s: %w", p.workspace, err)
	}
	logger.InfoContext(ctx, "discovery pass started", "workspace", p.workspace, "files", len(files))

	result := &Result{FilesTotal: len(files)}
	type pendingFile struct {
		path    string
		hash    string
		content []byte
	}
	var pending []pendingFile

	for _, path := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		content, err := os.ReadFile(path)
		if err != nil {
			logger.WarnContext(ctx, "failed to read file, skipping", "path", path, "error", err)
			result.Failed++
			continue
		}
		hash := hashutil.HashContent(content)

		if !p.store.NeedsUpdate(path, hash) {
			if cached, ok := p.loadCachedChunks(ctx, path); ok {
				result.Chunks = append(result.Chunks, cached...)
				result.CacheHits++
				continue
			}
			// A listed record was missing or malformed: the whole file is
			// reprocessed rather than served with silently dropped chunks.
			logger.WarnContext(ctx, "cached chunks incomplete, reprocessing file", "path", path)
		}
		pending = append(pending, pendingFile{path: path, hash: hash, content: content})
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)
	for _, file := range pending {
		file := file
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			chunks, err := p.processFile(file.path, file.hash, file.content)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Isolated per file: log, omit its chunks, keep going.
				logger.ErrorContext(ctx, "failed to process file", "path", file.path, "error", err)
				result.Failed++
				return nil
			}
			result.Chunks = append(result.Chunks, chunks...)
			result.Reprocessed++
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(started)
	logger.InfoContext(ctx, "discovery pass completed",
		"files", result.FilesTotal,
		"cache_hits", result.CacheHits,
		"reprocessed", result.Reprocessed,
		"failed", result.Failed,
		"chunks", len(result.Chunks),
		"duration_ms", result.Duration.Milliseconds(),
	)

	p.recordRun(ctx, result)
	return result, nil
}

// processFile chunks one file and makes the cache reflect exactly its
// current chunk set: new records written, orphans of the previous version
// removed, file entry rewritten last.
func (p *Pipeline) processFile(path, hash string, content []byte) ([]*chunker.DocumentChunk, error) {
	chunks := p.chunker.ChunkDocument(content, path)

	chunkIDs := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ChunkID
		meta := map[string]any{
			"type":          "chunk",
			"file":          chunk.FilePath,
			"section":       chunk.HeadingPath,
			"has_embedding": chunk.Embedding != nil,
		}
		if err := p.store.Put(chunk.ChunkID, chunk.Payload(), meta); err != nil {
			return nil, fmt.Errorf("failed to store chunk %s: %w", chunk.ChunkID, err)
		}
	}

	if _, existed := p.store.GetManifestEntry(path); existed {
		p.store.CleanupOrphanedChunks(path, chunkIDs)
	}

	if err := p.store.UpdateManifestEntry(path, chunkstore.NewFileEntry(hash, chunkIDs)); err != nil {
		return nil, fmt.Errorf("failed to update file entry for %s: %w", path, err)
	}
	return chunks, nil
}

// loadCachedChunks reconstructs a file's chunks from the cache. Any missing
// or malformed record fails the whole file so the caller reprocesses it.
func (p *Pipeline) loadCachedChunks(ctx context.Context, path string) ([]*chunker.DocumentChunk, bool) {
	logger := contextutil.LoggerFromContext(ctx)

	entry, ok := p.store.GetManifestEntry(path)
	if !ok {
		return nil, false
	}
	chunkIDs := chunkstore.ChunkIDsFromEntry(entry)
	if len(chunkIDs) == 0 {
		return nil, false
	}

	chunks := make([]*chunker.DocumentChunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		rec := p.store.Get(id)
		if rec == nil {
			return nil, false
		}
		chunk, err := chunker.ChunkFromPayload(rec.Data)
		if err != nil {
			logger.WarnContext(ctx, "invalid cached chunk", "chunk_id", id, "error", err)
			return nil, false
		}
		chunks = append(chunks, chunk)
	}
	return chunks, true
}

// listMarkdownFiles walks the workspace recursively for .md files, skipping
// hidden directories (.git, .obsidian, the cache dir when nested inside).
func (p *Pipeline) listMarkdownFiles() ([]string, error) {
	var files []string
	err := filepath.Walk(p.workspace, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		if info.IsDir() {
			if path != p.workspace && (strings.HasPrefix(info.Name(), ".") || path == p.store.Dir()) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".md" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (p *Pipeline) recordRun(ctx context.Context, result *Result) {
	if p.runs == nil {
		return
	}
	run := &storage.RunRecord{
		StartedAt:   time.Now().UTC().Add(-result.Duration),
		DurationMS:  result.Duration.Milliseconds(),
		FilesTotal:  result.FilesTotal,
		CacheHits:   result.CacheHits,
		Reprocessed: result.Reprocessed,
		Failed:      result.Failed,
		ChunkCount:  len(result.Chunks),
	}
	if err := p.runs.Insert(ctx, run); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to record discovery run", "error", err)
	}
}
