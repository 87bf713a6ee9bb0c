// Package scorer ranks existing chunks and files against a free-form
// content goal using vector similarity plus structural heuristics.
package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"contentscout/internal/chunker"
	"contentscout/internal/chunkstore"
	"contentscout/internal/contextutil"
	"contentscout/internal/hashutil"
)

const (
	queryCacheKeyPrefix = "query-"
	embedBatchSize      = 32
)

// Scorer computes relevance rankings over a chunk set. The chunk store is
// used for two things only: caching query embeddings by content hash and
// writing chunk embeddings back after EnsureEmbeddings fills them in.
type Scorer struct {
	embedder Embedder
	store    *chunkstore.Store
	cfg      ScoreConfig
	logger   *slog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithScoreConfig overrides the default scoring heuristics.
func WithScoreConfig(cfg ScoreConfig) Option {
	return func(s *Scorer) { s.cfg = cfg }
}

// NewScorer creates a relevance scorer.
func NewScorer(embedder Embedder, store *chunkstore.Store, opts ...Option) *Scorer {
	s := &Scorer{
		embedder: embedder,
		store:    store,
		cfg:      DefaultScoreConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildSearchText concatenates the query context into the text that gets
// embedded: goal, audience, service area, then material keywords.
func BuildSearchText(query QueryContext) string {
	var parts []string
	if query.Goal != "" {
		parts = append(parts, "Goal: "+query.Goal)
	}
	if query.Audience != "" {
		parts = append(parts, "Audience: "+query.Audience)
	}
	if query.ServiceArea != "" {
		parts = append(parts, "Service area: "+query.ServiceArea)
	}
	if len(query.MaterialKeywords) > 0 {
		parts = append(parts, "Topics: "+strings.Join(query.MaterialKeywords, ", "))
	}
	return strings.Join(parts, "\n")
}

// RankFiles scores every embedded chunk against the query, applies
// structural boosts, aggregates to file level, and returns the top-K files
// with reconstructed content. Chunks without embeddings are excluded from
// scoring (not treated as zero) and files with no scorable chunks are
// excluded from the ranking entirely.
func (s *Scorer) RankFiles(ctx context.Context, query QueryContext, chunks []*chunker.DocumentChunk) ([]RankedFile, error) {
	logger := contextutil.LoggerFromContext(ctx)

	searchText := BuildSearchText(query)
	if searchText == "" {
		return nil, fmt.Errorf("empty query context")
	}

	queryVec, err := s.queryVector(ctx, searchText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Base scores come first and are the only input to the boosts:
	// computing boosts from already-boosted neighbors would cascade.
	base := make(map[string]float64)
	byID := make(map[string]*chunker.DocumentChunk, len(chunks))
	fileChunks := make(map[string][]*chunker.DocumentChunk)
	for _, chunk := range chunks {
		byID[chunk.ChunkID] = chunk
		fileChunks[chunk.FilePath] = append(fileChunks[chunk.FilePath], chunk)
		if chunk.Embedding != nil {
			base[chunk.ChunkID] = cosineSimilarity(queryVec, chunk.Embedding)
		}
	}

	fileAvg := make(map[string]float64, len(fileChunks))
	for file, members := range fileChunks {
		var sum float64
		var n int
		for _, chunk := range members {
			if score, ok := base[chunk.ChunkID]; ok {
				sum += score
				n++
			}
		}
		if n > 0 {
			fileAvg[file] = sum / float64(n)
		}
	}

	boosted := make(map[string]float64, len(base))
	for id, score := range base {
		boosted[id] = score + s.boostFor(byID[id], base, fileAvg)
	}

	var ranked []RankedFile
	for file, members := range fileChunks {
		var sum float64
		var n int
		for _, chunk := range members {
			if score, ok := boosted[chunk.ChunkID]; ok {
				sum += score
				n++
			}
		}
		if n == 0 {
			continue
		}
		ranked = append(ranked, s.describeFile(file, members, boosted, sum/float64(n)))
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CombinedScore != ranked[j].CombinedScore {
			return ranked[i].CombinedScore > ranked[j].CombinedScore
		}
		return ranked[i].File < ranked[j].File
	})
	if len(ranked) > s.cfg.TopK {
		ranked = ranked[:s.cfg.TopK]
	}

	logger.InfoContext(ctx, "relevance ranking completed",
		"chunks", len(chunks),
		"scorable_chunks", len(base),
		"ranked_files", len(ranked),
	)
	return ranked, nil
}

// boostFor computes the additive, non-negative structural boost for one
// chunk. All thresholds compare against base scores.
func (s *Scorer) boostFor(chunk *chunker.DocumentChunk, base map[string]float64, fileAvg map[string]float64) float64 {
	var boost float64

	if avg, ok := fileAvg[chunk.FilePath]; ok && avg > s.cfg.FileBoostThreshold {
		boost += s.cfg.FileBoostWeight * avg
	}

	for _, neighborID := range []string{chunk.PrevChunkID, chunk.NextChunkID} {
		if neighborID == "" {
			continue
		}
		if score, ok := base[neighborID]; ok && score > s.cfg.NeighborThreshold {
			boost += s.cfg.NeighborBoost
		}
	}

	if chunk.ParentHeadingChunkID != "" {
		if score, ok := base[chunk.ParentHeadingChunkID]; ok && score > s.cfg.ParentThreshold {
			boost += s.cfg.ParentBoost
		}
	}

	return boost
}

// describeFile assembles the ranked-file record: metadata from the first
// chunk's frontmatter, the best-scoring sections, and the document text
// reconstructed from its chunks.
func (s *Scorer) describeFile(file string, members []*chunker.DocumentChunk, boosted map[string]float64, combined float64) RankedFile {
	ordered := append([]*chunker.DocumentChunk(nil), members...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ChunkIndex < ordered[j].ChunkIndex })

	fm := ordered[0].Frontmatter
	content := reconstructContent(ordered)

	title := fm["title"]
	if title == "" {
		title = chunker.ExtractTitle([]byte(content), filepath.Base(file))
	}
	contentType := fm["content-type"]
	if contentType == "" {
		contentType = fm["ms.topic"]
	}
	if contentType == "" {
		contentType = fm["topic"]
	}

	return RankedFile{
		File:                 file,
		CombinedScore:        combined,
		Title:                title,
		ContentType:          contentType,
		Description:          fm["description"],
		MatchedSections:      topSections(ordered, boosted, s.cfg.MatchedSections),
		ReconstructedContent: content,
	}
}

// reconstructContent re-emits the document: frontmatter serialized back to a
// header block, then each chunk's content in ChunkIndex order.
func reconstructContent(ordered []*chunker.DocumentChunk) string {
	var b strings.Builder
	if header := chunker.SerializeFrontmatter(ordered[0].Frontmatter); header != "" {
		b.WriteString(header)
		b.WriteString("\n")
	}
	for i, chunk := range ordered {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(chunk.Content)
	}
	return b.String()
}

// topSections returns the distinct breadcrumbs of the highest-scoring
// chunks, best first.
func topSections(members []*chunker.DocumentChunk, boosted map[string]float64, limit int) []string {
	scored := make([]*chunker.DocumentChunk, 0, len(members))
	for _, chunk := range members {
		if _, ok := boosted[chunk.ChunkID]; ok && chunk.Breadcrumb() != "" {
			scored = append(scored, chunk)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return boosted[scored[i].ChunkID] > boosted[scored[j].ChunkID]
	})

	var sections []string
	seen := map[string]struct{}{}
	for _, chunk := range scored {
		crumb := chunk.Breadcrumb()
		if _, dup := seen[crumb]; dup {
			continue
		}
		seen[crumb] = struct{}{}
		sections = append(sections, crumb)
		if len(sections) == limit {
			break
		}
	}
	return sections
}

// queryVector returns the embedding for searchText, consulting the store
// first so repeated queries with identical text cost nothing.
func (s *Scorer) queryVector(ctx context.Context, searchText string) ([]float32, error) {
	key := queryCacheKeyPrefix + hashutil.ShortHash(searchText, 16)

	if rec := s.store.Get(key); rec != nil {
		if vec := float32Slice(rec.Data["embedding"]); vec != nil {
			return vec, nil
		}
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{searchText})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}

	err = s.store.Put(key,
		map[string]any{"embedding": vectors[0]},
		map[string]any{"type": "query_embedding"},
	)
	if err != nil {
		s.logger.Warn("failed to cache query embedding", "error", err)
	}
	return vectors[0], nil
}

// EnsureEmbeddings batch-embeds every chunk still missing a vector and
// writes the refreshed records back to the store. Returns the number of
// chunks embedded; an embedder failure aborts with the chunks embedded so
// far already applied.
func (s *Scorer) EnsureEmbeddings(ctx context.Context, chunks []*chunker.DocumentChunk) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var missing []*chunker.DocumentChunk
	for _, chunk := range chunks {
		if chunk.Embedding == nil {
			missing = append(missing, chunk)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	embedded := 0
	for start := 0; start < len(missing); start += embedBatchSize {
		end := min(start+embedBatchSize, len(missing))
		batch := missing[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.EmbeddingContent
		}

		vectors, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return embedded, fmt.Errorf("failed to embed chunk batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return embedded, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(vectors))
		}

		for i, chunk := range batch {
			chunk.Embedding = vectors[i]
			meta := map[string]any{
				"type":          "chunk",
				"file":          chunk.FilePath,
				"section":       chunk.HeadingPath,
				"has_embedding": true,
			}
			if err := s.store.Put(chunk.ChunkID, chunk.Payload(), meta); err != nil {
				logger.WarnContext(ctx, "failed to persist chunk embedding", "chunk_id", chunk.ChunkID, "error", err)
			}
			embedded++
		}
	}

	logger.InfoContext(ctx, "chunk embeddings filled", "embedded", embedded)
	return embedded, nil
}

func float32Slice(v any) []float32 {
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
