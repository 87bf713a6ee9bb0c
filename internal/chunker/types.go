package chunker

import (
	"fmt"
)

// DocumentChunk is a single semantic unit of a markdown document. Chunks are
// immutable once created: a content change produces new chunk ids rather
// than mutating existing ones.
type DocumentChunk struct {
	// Content is the raw markdown text of the chunk, trimmed. Chunks that
	// start at a heading begin with the literal heading line.
	Content string
	// FilePath is the path of the source file.
	FilePath string
	// FileID is the stable identifier derived from FilePath.
	FileID string
	// HeadingPath is the ordered list of heading titles from the document
	// root down to this chunk's heading. Empty for content before the first
	// heading or documents without headings.
	HeadingPath []string
	// SectionLevel equals len(HeadingPath).
	SectionLevel int
	// ChunkIndex is the zero-based position among chunks of the same file.
	ChunkIndex int
	// Frontmatter holds key-value metadata parsed from the document header
	// block. May be empty.
	Frontmatter map[string]string
	// EmbeddingContent is the derived string handed to the embedding model:
	// frontmatter highlights, a heading breadcrumb, and the raw content.
	EmbeddingContent string
	// Embedding is nil until computed by an embedding-capable collaborator.
	Embedding []float32
	// ContentHash is the SHA256 digest of EmbeddingContent.
	ContentHash string
	// ChunkID is a stable identifier: FileID + breadcrumb hash for chunks
	// that start at a heading, FileID + index + content prefix hash for
	// sub-splits of an over-long section.
	ChunkID string
	// PrevChunkID / NextChunkID link chunks sequentially within a file.
	PrevChunkID string
	NextChunkID string
	// ParentHeadingChunkID references the chunk for the nearest enclosing
	// heading one level shallower, when one exists.
	ParentHeadingChunkID string
	// TotalChunksInFile is the number of chunks emitted for this file.
	TotalChunksInFile int
}

// Breadcrumb returns the heading path joined with " > ".
func (c *DocumentChunk) Breadcrumb() string {
	return joinBreadcrumb(c.HeadingPath)
}

// Payload converts the chunk to the flexible key-value document stored on
// disk. The on-disk shape stays loosely typed for forward compatibility
// while the in-memory chunk is a fixed record.
func (c *DocumentChunk) Payload() map[string]any {
	payload := map[string]any{
		"content":              c.Content,
		"file_path":            c.FilePath,
		"file_id":              c.FileID,
		"heading_path":         c.HeadingPath,
		"section_level":        c.SectionLevel,
		"chunk_index":          c.ChunkIndex,
		"frontmatter":          c.Frontmatter,
		"embedding_content":    c.EmbeddingContent,
		"content_hash":         c.ContentHash,
		"chunk_id":             c.ChunkID,
		"prev_chunk_id":        c.PrevChunkID,
		"next_chunk_id":        c.NextChunkID,
		"parent_heading_chunk": c.ParentHeadingChunkID,
		"total_chunks_in_file": c.TotalChunksInFile,
	}
	if c.Embedding != nil {
		payload["embedding"] = c.Embedding
	}
	return payload
}

// ChunkFromPayload reconstructs a DocumentChunk from an on-disk payload.
// Returns an error when required fields are missing or malformed, so a
// corrupt record demotes the owning file to reprocessing instead of
// silently producing a partial chunk.
func ChunkFromPayload(payload map[string]any) (*DocumentChunk, error) {
	if payload == nil {
		return nil, fmt.Errorf("nil chunk payload")
	}

	chunkID, ok := asString(payload["chunk_id"])
	if !ok || chunkID == "" {
		return nil, fmt.Errorf("chunk payload missing chunk_id")
	}
	filePath, ok := asString(payload["file_path"])
	if !ok || filePath == "" {
		return nil, fmt.Errorf("chunk payload missing file_path")
	}
	content, ok := asString(payload["content"])
	if !ok {
		return nil, fmt.Errorf("chunk payload missing content")
	}

	chunk := &DocumentChunk{
		Content:     content,
		FilePath:    filePath,
		ChunkID:     chunkID,
		HeadingPath: asStringSlice(payload["heading_path"]),
		Frontmatter: asStringMap(payload["frontmatter"]),
	}
	chunk.FileID, _ = asString(payload["file_id"])
	chunk.SectionLevel = asInt(payload["section_level"])
	chunk.ChunkIndex = asInt(payload["chunk_index"])
	chunk.EmbeddingContent, _ = asString(payload["embedding_content"])
	chunk.ContentHash, _ = asString(payload["content_hash"])
	chunk.PrevChunkID, _ = asString(payload["prev_chunk_id"])
	chunk.NextChunkID, _ = asString(payload["next_chunk_id"])
	chunk.ParentHeadingChunkID, _ = asString(payload["parent_heading_chunk"])
	chunk.TotalChunksInFile = asInt(payload["total_chunks_in_file"])
	chunk.Embedding = asFloat32Slice(payload["embedding"])

	if chunk.SectionLevel != len(chunk.HeadingPath) {
		return nil, fmt.Errorf("chunk %s: section_level %d does not match heading_path length %d",
			chunkID, chunk.SectionLevel, len(chunk.HeadingPath))
	}

	return chunk, nil
}

// The coercion helpers below tolerate both in-process values and the types
// encoding/json produces on reload (float64 numbers, []any slices).

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, str)
		}
		return out
	}
	return nil
}

func asStringMap(v any) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, item := range m {
			if str, ok := item.(string); ok {
				out[k] = str
			}
		}
		return out
	}
	return map[string]string{}
}

func asFloat32Slice(v any) []float32 {
	switch s := v.(type) {
	case []float32:
		return s
	case []any:
		out := make([]float32, 0, len(s))
		for _, item := range s {
			f, ok := item.(float64)
			if !ok {
				return nil
			}
			out = append(out, float32(f))
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}
