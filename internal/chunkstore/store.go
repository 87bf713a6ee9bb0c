// Package chunkstore implements the durable, manifest-backed cache for chunk
// payloads. Every value lives in its own JSON record file next to a
// manifest.json that tracks file-to-chunk associations; the store survives a
// lost or corrupt manifest by rebuilding chunk bookkeeping from the record
// files that remain.
package chunkstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ManifestName is the reserved manifest file name inside the store directory.
const ManifestName = "manifest.json"

// Record is the on-disk unit for any stored value.
type Record struct {
	Data      map[string]any `json:"data"`
	Meta      map[string]any `json:"meta"`
	Timestamp string         `json:"timestamp"`
}

// Stats is a diagnostic snapshot of the store.
type Stats struct {
	// RecordFiles counts record files on disk, excluding the manifest.
	RecordFiles int `json:"record_files"`
	// FileEntries counts manifest entries grouping a source file's chunks.
	FileEntries int `json:"file_entries"`
	// ChunkEntries counts manifest entries for individual records.
	ChunkEntries int `json:"chunk_entries"`
	// TotalSizeMB is the on-disk size of the store directory in megabytes.
	TotalSizeMB float64 `json:"total_size_mb"`
}

// Store is a file-backed key-value cache safe for concurrent callers within
// one process. One mutex serializes every manifest read-modify-write; plain
// record reads skip it because record files are written atomically and never
// partially overwritten in place.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: slog.Default()}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Get loads a single record. A missing or corrupt record file yields nil
// with a warning log rather than an error; callers treat nil as a cache miss.
func (s *Store) Get(key string) *Record {
	raw, err := os.ReadFile(s.recordPath(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read cache record", "key", key, "error", err)
		}
		return nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("corrupt cache record", "key", key, "error", err)
		return nil
	}
	return &rec
}

// Put writes a record file and registers a chunk-level manifest entry for
// key. The manifest is reloaded from disk first so entries written by other
// goroutines since the last load are merged rather than clobbered.
func (s *Store) Put(key string, data, meta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		Data:      data,
		Meta:      meta,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.writeJSON(s.recordPath(key), rec); err != nil {
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}

	manifest := s.loadManifestLocked()
	manifest[key] = map[string]any{
		"timestamp": rec.Timestamp,
		"meta":      meta,
	}
	return s.saveManifestLocked(manifest)
}

// UpdateManifestEntry sets a manifest entry using the same reload-then-write
// pattern as Put. Used for file-level entries, which have no record file.
func (s *Store) UpdateManifestEntry(key string, entry map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifest := s.loadManifestLocked()
	manifest[key] = entry
	return s.saveManifestLocked(manifest)
}

// GetManifestEntry reloads the manifest (to observe other writers) and
// returns the entry for key.
func (s *Store) GetManifestEntry(key string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.loadManifestLocked()[key]
	return entry, ok
}

// NeedsUpdate reports whether the stored hash for key differs from hash.
// Any lookup or parse failure answers true: reprocessing a file costs time,
// serving stale chunks costs correctness.
func (s *Store) NeedsUpdate(key, hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.loadManifestLocked()[key]
	if !ok {
		return true
	}
	stored, ok := entry["hash"].(string)
	if !ok || stored == "" {
		return true
	}
	return stored != hash
}

// RemoveOld deletes record files matching the glob pattern (the manifest
// itself is never matched) along with their manifest entries. Returns the
// number of files removed.
func (s *Store) RemoveOld(pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("invalid cleanup pattern %q: %w", pattern, err)
	}

	manifest := s.loadManifestLocked()
	removed := 0
	for _, path := range matches {
		if filepath.Base(path) == ManifestName {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to remove cache file", "path", path, "error", err)
			continue
		}
		delete(manifest, keyFromPath(path))
		removed++
	}

	if removed > 0 {
		if err := s.saveManifestLocked(manifest); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// CleanupOrphanedChunks deletes chunks previously recorded for fileKey that
// no longer appear in currentChunkIDs, removing both the backing record file
// and the chunk-level manifest entry. Returns the orphan count.
func (s *Store) CleanupOrphanedChunks(fileKey string, currentChunkIDs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifest := s.loadManifestLocked()
	entry, ok := manifest[fileKey]
	if !ok {
		return 0
	}

	current := make(map[string]struct{}, len(currentChunkIDs))
	for _, id := range currentChunkIDs {
		current[id] = struct{}{}
	}

	removed := 0
	for _, oldID := range ChunkIDsFromEntry(entry) {
		if _, keep := current[oldID]; keep {
			continue
		}
		if err := os.Remove(s.recordPath(oldID)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove orphaned chunk", "chunk_id", oldID, "error", err)
		}
		delete(manifest, oldID)
		removed++
	}

	if removed > 0 {
		if err := s.saveManifestLocked(manifest); err != nil {
			s.logger.Warn("failed to persist manifest after orphan cleanup", "file", fileKey, "error", err)
		}
		s.logger.Info("removed orphaned chunks", "file", fileKey, "count", removed)
	}
	return removed
}

// VerifyAndCleanupManifest runs a full reconciliation pass: chunk entries
// whose backing file disappeared are dropped, file entries are pruned down
// to chunk ids with surviving files (and dropped entirely at zero), and the
// result is persisted once. Returns the number of entries removed.
func (s *Store) VerifyAndCleanupManifest() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifest := s.loadManifestLocked()
	var toRemove []string
	dirty := false

	for key, entry := range manifest {
		if _, isChunk := entry["meta"]; isChunk {
			if !s.recordExists(key) {
				toRemove = append(toRemove, key)
			}
			continue
		}

		ids := ChunkIDsFromEntry(entry)
		if ids == nil {
			continue
		}
		surviving := make([]string, 0, len(ids))
		for _, id := range ids {
			if s.recordExists(id) {
				surviving = append(surviving, id)
			}
		}
		if len(surviving) == 0 {
			toRemove = append(toRemove, key)
			continue
		}
		if len(surviving) < len(ids) {
			entry["chunk_ids"] = surviving
			entry["chunk_count"] = len(surviving)
			dirty = true
		}
	}

	for _, key := range toRemove {
		delete(manifest, key)
	}

	if len(toRemove) > 0 || dirty {
		if err := s.saveManifestLocked(manifest); err != nil {
			s.logger.Warn("failed to persist reconciled manifest", "error", err)
		}
		s.logger.Info("reconciled cache manifest", "removed_entries", len(toRemove))
	}
	return len(toRemove)
}

// GetCacheStats returns a diagnostic snapshot of the store.
func (s *Store) GetCacheStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("failed to read cache directory", "error", err)
		return stats
	}

	var totalBytes int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			totalBytes += info.Size()
		}
		if entry.Name() != ManifestName && strings.HasSuffix(entry.Name(), ".json") {
			stats.RecordFiles++
		}
	}
	stats.TotalSizeMB = float64(totalBytes) / (1024 * 1024)

	for _, entry := range s.loadManifestLocked() {
		if _, isChunk := entry["meta"]; isChunk {
			stats.ChunkEntries++
		} else if _, isFile := entry["chunk_ids"]; isFile {
			stats.FileEntries++
		}
	}
	return stats
}

// loadManifestLocked reads the manifest from disk. A missing manifest is an
// empty store; a manifest that fails to parse triggers recovery from the
// surviving record files. Callers must hold s.mu.
func (s *Store) loadManifestLocked() map[string]map[string]any {
	raw, err := os.ReadFile(s.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[string]any{}
		}
		s.logger.Warn("failed to read manifest", "error", err)
		return s.recoverManifestLocked()
	}

	var manifest map[string]map[string]any
	if err := json.Unmarshal(raw, &manifest); err != nil {
		s.logger.Warn("corrupt manifest, rebuilding from record files", "error", err)
		return s.recoverManifestLocked()
	}
	if manifest == nil {
		manifest = map[string]map[string]any{}
	}
	return manifest
}

// recoverManifestLocked rebuilds chunk-level manifest entries from whatever
// record files survive. File-to-chunk groupings are not reconstructed: the
// next discovery pass finds no file hashes and reprocesses every source
// file, which is the safe direction to fail in.
func (s *Store) recoverManifestLocked() map[string]map[string]any {
	manifest := map[string]map[string]any{}

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return manifest
	}
	for _, path := range matches {
		if filepath.Base(path) == ManifestName {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("skipping unreadable record during recovery", "path", path, "error", err)
			continue
		}
		manifest[keyFromPath(path)] = map[string]any{
			"timestamp": rec.Timestamp,
			"meta":      rec.Meta,
		}
	}

	if err := s.saveManifestLocked(manifest); err != nil {
		s.logger.Warn("failed to persist recovered manifest", "error", err)
	}
	s.logger.Info("recovered manifest from record files", "chunk_entries", len(manifest))
	return manifest
}

func (s *Store) saveManifestLocked(manifest map[string]map[string]any) error {
	if err := s.writeJSON(s.manifestPath(), manifest); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// writeJSON writes through a temp file and rename so a crash mid-write never
// leaves a partially written record or manifest behind.
func (s *Store) writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.dir, ManifestName)
}

func (s *Store) recordPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) recordExists(key string) bool {
	_, err := os.Stat(s.recordPath(key))
	return err == nil
}

func keyFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}

// NewFileEntry builds the manifest entry grouping a source file's chunks.
func NewFileEntry(hash string, chunkIDs []string) map[string]any {
	return map[string]any{
		"type":        "file",
		"hash":        hash,
		"chunk_ids":   chunkIDs,
		"chunk_count": len(chunkIDs),
	}
}

// ChunkIDsFromEntry extracts the ordered chunk id list from a file-level
// manifest entry, tolerating the []any shape JSON reloads produce. Returns
// nil for entries without chunk ids.
func ChunkIDsFromEntry(entry map[string]any) []string {
	switch ids := entry["chunk_ids"].(type) {
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if str, ok := id.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
