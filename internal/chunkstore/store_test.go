package chunkstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestStore_PutGet(t *testing.T) {
	store := newTestStore(t)

	data := map[string]any{"content": "chunk body", "chunk_id": "doc-h-abc"}
	meta := map[string]any{"type": "chunk", "file": "/ws/doc.md"}
	if err := store.Put("doc-h-abc", data, meta); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rec := store.Get("doc-h-abc")
	if rec == nil {
		t.Fatal("Get() returned nil for stored key")
	}
	if rec.Data["content"] != "chunk body" {
		t.Errorf("data content = %v", rec.Data["content"])
	}
	if rec.Meta["type"] != "chunk" {
		t.Errorf("meta type = %v", rec.Meta["type"])
	}
	if _, err := time.Parse(time.RFC3339, rec.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", rec.Timestamp, err)
	}

	// Put registers a chunk-level manifest entry keyed by the record key.
	entry, ok := store.GetManifestEntry("doc-h-abc")
	if !ok {
		t.Fatal("manifest entry missing after Put")
	}
	if _, hasMeta := entry["meta"]; !hasMeta {
		t.Error("chunk entry should carry meta")
	}
}

func TestStore_GetMissingAndCorrupt(t *testing.T) {
	store := newTestStore(t)

	if rec := store.Get("never-written"); rec != nil {
		t.Errorf("Get(missing) = %v, want nil", rec)
	}

	if err := os.WriteFile(filepath.Join(store.Dir(), "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if rec := store.Get("broken"); rec != nil {
		t.Errorf("Get(corrupt) = %v, want nil", rec)
	}
}

func TestStore_NeedsUpdate(t *testing.T) {
	store := newTestStore(t)
	const fileKey = "/ws/doc.md"

	if !store.NeedsUpdate(fileKey, "hash-a") {
		t.Error("unknown file should need update")
	}

	if err := store.UpdateManifestEntry(fileKey, NewFileEntry("hash-a", []string{"c1"})); err != nil {
		t.Fatalf("UpdateManifestEntry() error = %v", err)
	}

	if store.NeedsUpdate(fileKey, "hash-a") {
		t.Error("matching hash should not need update")
	}
	if !store.NeedsUpdate(fileKey, "hash-b") {
		t.Error("changed hash should need update")
	}

	// Entries without a usable hash fail open.
	if err := store.UpdateManifestEntry("/ws/odd.md", map[string]any{"chunk_ids": []string{"x"}}); err != nil {
		t.Fatal(err)
	}
	if !store.NeedsUpdate("/ws/odd.md", "anything") {
		t.Error("entry without hash should need update")
	}
}

func TestStore_RemoveOld(t *testing.T) {
	store := newTestStore(t)

	for _, key := range []string{"query-aaa", "query-bbb", "doc-h-keep"} {
		if err := store.Put(key, map[string]any{"k": key}, map[string]any{"type": "query_embedding"}); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.RemoveOld("query-*.json")
	if err != nil {
		t.Fatalf("RemoveOld() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if store.Get("query-aaa") != nil || store.Get("query-bbb") != nil {
		t.Error("matched records should be gone")
	}
	if store.Get("doc-h-keep") == nil {
		t.Error("unmatched record should survive")
	}
	if _, ok := store.GetManifestEntry("query-aaa"); ok {
		t.Error("manifest entry for removed record should be gone")
	}

	// The manifest itself never matches a cleanup pattern.
	if _, err := store.RemoveOld("*.json"); err != nil {
		t.Fatal(err)
	}
	if _, statErr := os.Stat(filepath.Join(store.Dir(), ManifestName)); statErr != nil {
		t.Errorf("manifest removed by cleanup: %v", statErr)
	}
}

func TestStore_CleanupOrphanedChunks(t *testing.T) {
	store := newTestStore(t)
	const fileKey = "/ws/doc.md"

	for _, id := range []string{"c1", "c2", "c3"} {
		if err := store.Put(id, map[string]any{"chunk_id": id}, map[string]any{"type": "chunk"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpdateManifestEntry(fileKey, NewFileEntry("hash-a", []string{"c1", "c2", "c3"})); err != nil {
		t.Fatal(err)
	}

	removed := store.CleanupOrphanedChunks(fileKey, []string{"c1", "c3"})
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if store.Get("c2") != nil {
		t.Error("orphaned record should be deleted")
	}
	if _, ok := store.GetManifestEntry("c2"); ok {
		t.Error("orphaned manifest entry should be deleted")
	}
	if store.Get("c1") == nil || store.Get("c3") == nil {
		t.Error("surviving chunks should keep their records")
	}

	if got := store.CleanupOrphanedChunks("/ws/unknown.md", nil); got != 0 {
		t.Errorf("cleanup for unknown file = %d, want 0", got)
	}
}

func TestStore_VerifyAndCleanupManifest(t *testing.T) {
	store := newTestStore(t)
	const fileKey = "/ws/doc.md"

	for _, id := range []string{"c1", "c2"} {
		if err := store.Put(id, map[string]any{"chunk_id": id}, map[string]any{"type": "chunk"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpdateManifestEntry(fileKey, NewFileEntry("hash-a", []string{"c1", "c2"})); err != nil {
		t.Fatal(err)
	}

	// Nothing missing: a no-op pass.
	if got := store.VerifyAndCleanupManifest(); got != 0 {
		t.Errorf("clean pass removed %d entries, want 0", got)
	}

	// Delete one record file behind the manifest's back.
	if err := os.Remove(filepath.Join(store.Dir(), "c2.json")); err != nil {
		t.Fatal(err)
	}
	if got := store.VerifyAndCleanupManifest(); got != 1 {
		t.Errorf("removed = %d, want 1 (the c2 chunk entry)", got)
	}
	if _, ok := store.GetManifestEntry("c2"); ok {
		t.Error("chunk entry for missing record should be dropped")
	}
	entry, ok := store.GetManifestEntry(fileKey)
	if !ok {
		t.Fatal("file entry should survive while a chunk remains")
	}
	ids := ChunkIDsFromEntry(entry)
	if len(ids) != 1 || ids[0] != "c1" {
		t.Errorf("file entry chunk_ids = %v, want [c1]", ids)
	}

	// Delete the last record: the file entry itself goes.
	if err := os.Remove(filepath.Join(store.Dir(), "c1.json")); err != nil {
		t.Fatal(err)
	}
	if got := store.VerifyAndCleanupManifest(); got != 2 {
		t.Errorf("removed = %d, want 2 (chunk entry + empty file entry)", got)
	}
	if _, ok := store.GetManifestEntry(fileKey); ok {
		t.Error("file entry with no surviving chunks should be dropped")
	}
}

// A corrupt manifest is rebuilt from the record files that remain. Only
// chunk-level entries can be reconstructed that way; file-to-chunk groupings
// live nowhere else, so they are gone and the next discovery pass reprocesses
// every file.
func TestStore_RecoverManifest_ChunkEntriesOnly(t *testing.T) {
	store := newTestStore(t)
	const fileKey = "/ws/doc.md"

	if err := store.Put("c1", map[string]any{"chunk_id": "c1"}, map[string]any{"type": "chunk"}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateManifestEntry(fileKey, NewFileEntry("hash-a", []string{"c1"})); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(store.Dir(), ManifestName), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := store.GetManifestEntry("c1"); !ok {
		t.Error("chunk entry should be recovered from its record file")
	}
	if _, ok := store.GetManifestEntry(fileKey); ok {
		t.Error("file entry cannot be recovered and should be absent")
	}
	if !store.NeedsUpdate(fileKey, "hash-a") {
		t.Error("after recovery the file should look changed and be reprocessed")
	}

	// Recovery persists, so the rebuilt manifest parses on the next load.
	raw, err := os.ReadFile(filepath.Join(store.Dir(), ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) == "garbage" {
		t.Error("recovered manifest was not persisted")
	}
}

func TestStore_GetCacheStats(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"c1", "c2", "c3"} {
		if err := store.Put(id, map[string]any{"chunk_id": id}, map[string]any{"type": "chunk"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpdateManifestEntry("/ws/doc.md", NewFileEntry("h", []string{"c1", "c2", "c3"})); err != nil {
		t.Fatal(err)
	}

	stats := store.GetCacheStats()
	if stats.RecordFiles != 3 {
		t.Errorf("RecordFiles = %d, want 3", stats.RecordFiles)
	}
	if stats.ChunkEntries != 3 {
		t.Errorf("ChunkEntries = %d, want 3", stats.ChunkEntries)
	}
	if stats.FileEntries != 1 {
		t.Errorf("FileEntries = %d, want 1", stats.FileEntries)
	}
	if stats.TotalSizeMB <= 0 {
		t.Errorf("TotalSizeMB = %f, want > 0", stats.TotalSizeMB)
	}
}

func TestChunkIDsFromEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry map[string]any
		want  int
	}{
		{"string slice", map[string]any{"chunk_ids": []string{"a", "b"}}, 2},
		{"any slice from JSON reload", map[string]any{"chunk_ids": []any{"a", "b", "c"}}, 3},
		{"no chunk ids", map[string]any{"meta": map[string]any{}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChunkIDsFromEntry(tt.entry); len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}
