// Package chunker decomposes markdown documents into ordered, linked
// semantic chunks anchored to the heading hierarchy.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"contentscout/internal/hashutil"
)

const (
	// DefaultMaxChunkSize and DefaultMinChunkSize bound the smart-split.
	// Sections over the max are packed into paragraph-aligned sub-chunks;
	// no emitted sub-chunk except possibly the last falls below the min.
	DefaultMaxChunkSize = 3000
	DefaultMinChunkSize = 500

	descriptionHighlightLimit = 100
	contentPrefixLength       = 40
)

var headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// SemanticChunker turns one markdown document into an ordered sequence of
// linked DocumentChunks. The zero cost of construction makes it safe to
// share across goroutines: chunking holds no mutable state on the struct.
type SemanticChunker struct {
	maxChunkSize int
	minChunkSize int
}

// NewSemanticChunker creates a chunker with the default size bounds.
func NewSemanticChunker() *SemanticChunker {
	return NewSemanticChunkerWithSizes(DefaultMaxChunkSize, DefaultMinChunkSize)
}

// NewSemanticChunkerWithSizes creates a chunker with explicit size bounds.
// Non-positive or inverted bounds fall back to the defaults.
func NewSemanticChunkerWithSizes(maxSize, minSize int) *SemanticChunker {
	if maxSize <= 0 || minSize <= 0 || minSize >= maxSize {
		maxSize = DefaultMaxChunkSize
		minSize = DefaultMinChunkSize
	}
	return &SemanticChunker{maxChunkSize: maxSize, minChunkSize: minSize}
}

// section accumulates content between heading transitions. The heading path
// and link targets are snapshotted when the section starts so a flush uses
// the hierarchy as it stood before the next heading applies.
type section struct {
	buf            strings.Builder
	path           []string
	headingChunkID string
	parentChunkID  string
}

// ChunkDocument decomposes content into linked chunks. It never fails: a
// malformed frontmatter block degrades to an empty metadata map with the
// whole document treated as body.
func (c *SemanticChunker) ChunkDocument(content []byte, filePath string) []*DocumentChunk {
	fileID := hashutil.FileID(filePath)
	frontmatter, body := splitFrontmatter(string(content))

	var chunks []*DocumentChunk
	headingStack := []string{}
	headingIDs := map[string]string{}
	current := &section{}
	inFence := false

	flush := func() {
		text := strings.TrimSpace(current.buf.String())
		if text == "" {
			return
		}
		pieces := smartSplit(text, c.maxChunkSize, c.minChunkSize)
		for i, piece := range pieces {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			chunkID := current.headingChunkID
			if i > 0 || chunkID == "" {
				chunkID = subChunkID(fileID, len(chunks), piece)
			}
			path := append([]string(nil), current.path...)
			breadcrumb := joinBreadcrumb(path)
			embeddingContent := buildEmbeddingContent(frontmatter, breadcrumb, piece)
			chunks = append(chunks, &DocumentChunk{
				Content:              piece,
				FilePath:             filePath,
				FileID:               fileID,
				HeadingPath:          path,
				SectionLevel:         len(path),
				ChunkIndex:           len(chunks),
				Frontmatter:          frontmatter,
				EmbeddingContent:     embeddingContent,
				ContentHash:          hashutil.HashString(embeddingContent),
				ChunkID:              chunkID,
				ParentHeadingChunkID: current.parentChunkID,
			})
		}
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}

		match := headingRegex.FindStringSubmatch(line)
		if match == nil || inFence {
			current.buf.WriteString(line)
			current.buf.WriteString("\n")
			continue
		}

		flush()

		level := len(match[1])
		title := strings.TrimSpace(match[2])

		if len(headingStack) > level-1 {
			headingStack = headingStack[:level-1]
		}
		headingStack = append(headingStack, title)

		breadcrumb := joinBreadcrumb(headingStack)
		headingID := headingChunkID(fileID, breadcrumb)
		headingIDs[breadcrumb] = headingID

		parentID := ""
		if level > 1 && len(headingStack) > 1 {
			parentID = headingIDs[joinBreadcrumb(headingStack[:len(headingStack)-1])]
		}

		current = &section{
			path:           append([]string(nil), headingStack...),
			headingChunkID: headingID,
			parentChunkID:  parentID,
		}
		current.buf.WriteString(line)
		current.buf.WriteString("\n")
	}
	flush()

	linkChunks(chunks)
	return chunks
}

// linkChunks sets TotalChunksInFile and the prev/next chain in emission
// order. Exactly one chunk ends up with an empty PrevChunkID and one with an
// empty NextChunkID.
func linkChunks(chunks []*DocumentChunk) {
	for i, chunk := range chunks {
		chunk.TotalChunksInFile = len(chunks)
		if i > 0 {
			chunk.PrevChunkID = chunks[i-1].ChunkID
		}
		if i < len(chunks)-1 {
			chunk.NextChunkID = chunks[i+1].ChunkID
		}
	}
}

// smartSplit packs paragraphs greedily into pieces of at most maxSize runes.
// A paragraph that would overflow a buffer still under minSize is
// force-appended rather than dropped, so every piece except possibly the
// last reaches minSize and no content is ever lost.
func smartSplit(text string, maxSize, minSize int) []string {
	if utf8.RuneCountInString(text) <= maxSize {
		return []string{text}
	}

	var result []string
	var buf string
	for _, para := range splitParagraphs(text) {
		candidate := para
		if buf != "" {
			candidate = buf + "\n\n" + para
		}
		switch {
		case utf8.RuneCountInString(candidate) <= maxSize:
			buf = candidate
		case utf8.RuneCountInString(buf) >= minSize:
			result = append(result, buf)
			buf = para
		default:
			buf = candidate
			if utf8.RuneCountInString(buf) >= minSize {
				result = append(result, buf)
				buf = ""
			}
		}
	}
	if strings.TrimSpace(buf) != "" {
		result = append(result, buf)
	}
	return result
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	paragraphs := make([]string, 0, len(raw))
	for _, para := range raw {
		para = strings.TrimSpace(para)
		if para != "" {
			paragraphs = append(paragraphs, para)
		}
	}
	return paragraphs
}

// buildEmbeddingContent assembles the string handed to the embedding model:
// frontmatter highlights, the heading breadcrumb, then the raw content,
// joined with " | " so the model sees document context alongside the text.
func buildEmbeddingContent(fm map[string]string, breadcrumb, content string) string {
	var parts []string
	if title := fm["title"]; title != "" {
		parts = append(parts, "Document: "+title)
	}
	topic := fm["ms.topic"]
	if topic == "" {
		topic = fm["topic"]
	}
	if topic != "" {
		parts = append(parts, "Topic: "+topic)
	}
	if desc := fm["description"]; desc != "" {
		if utf8.RuneCountInString(desc) > descriptionHighlightLimit {
			desc = string([]rune(desc)[:descriptionHighlightLimit])
		}
		parts = append(parts, "Description: "+desc)
	}
	if breadcrumb != "" {
		parts = append(parts, "Section: "+breadcrumb)
	}
	parts = append(parts, content)
	return strings.Join(parts, " | ")
}

func joinBreadcrumb(path []string) string {
	return strings.Join(path, " > ")
}

func headingChunkID(fileID, breadcrumb string) string {
	return fmt.Sprintf("%s-h-%s", fileID, hashutil.ShortHash(breadcrumb, 12))
}

// subChunkID identifies a sub-split piece of an over-long section. Multiple
// sub-chunks can share one heading, so the id mixes the running chunk count
// with a content prefix instead of the breadcrumb.
func subChunkID(fileID string, index int, content string) string {
	prefix := content
	if utf8.RuneCountInString(prefix) > contentPrefixLength {
		prefix = string([]rune(prefix)[:contentPrefixLength])
	}
	return fmt.Sprintf("%s-c%03d-%s", fileID, index, hashutil.ShortHash(prefix, 8))
}
