package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewSemanticChunker(t *testing.T) {
	c := NewSemanticChunker()
	if c == nil {
		t.Fatal("NewSemanticChunker() returned nil")
	}
	if c.maxChunkSize != DefaultMaxChunkSize || c.minChunkSize != DefaultMinChunkSize {
		t.Errorf("default sizes = %d/%d, want %d/%d",
			c.maxChunkSize, c.minChunkSize, DefaultMaxChunkSize, DefaultMinChunkSize)
	}
}

func TestNewSemanticChunkerWithSizes_InvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		max, min int
	}{
		{"zero max", 0, 500},
		{"zero min", 3000, 0},
		{"min above max", 100, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewSemanticChunkerWithSizes(tt.max, tt.min)
			if c.maxChunkSize != DefaultMaxChunkSize || c.minChunkSize != DefaultMinChunkSize {
				t.Errorf("sizes = %d/%d, want defaults", c.maxChunkSize, c.minChunkSize)
			}
		})
	}
}

func TestChunkDocument_HeadingHierarchy(t *testing.T) {
	body := "# Overview\nShort intro paragraph.\n## Setup\nSetup paragraph with enough text to stand alone.\n"
	chunks := NewSemanticChunker().ChunkDocument([]byte(body), "/docs/guide.md")

	if len(chunks) != 2 {
		t.Fatalf("chunk count = %d, want 2", len(chunks))
	}

	first, second := chunks[0], chunks[1]

	if got := strings.Join(first.HeadingPath, ">"); got != "Overview" {
		t.Errorf("first heading path = %q, want Overview", got)
	}
	if first.SectionLevel != 1 {
		t.Errorf("first section level = %d, want 1", first.SectionLevel)
	}
	if !strings.HasPrefix(first.Content, "# Overview") {
		t.Errorf("first content = %q, want prefix # Overview", first.Content)
	}

	if got := strings.Join(second.HeadingPath, ">"); got != "Overview>Setup" {
		t.Errorf("second heading path = %q, want Overview>Setup", got)
	}
	if second.SectionLevel != 2 {
		t.Errorf("second section level = %d, want 2", second.SectionLevel)
	}
	if !strings.HasPrefix(second.Content, "## Setup") {
		t.Errorf("second content = %q, want prefix ## Setup", second.Content)
	}
	if second.ParentHeadingChunkID != first.ChunkID {
		t.Errorf("second parent = %q, want %q", second.ParentHeadingChunkID, first.ChunkID)
	}

	if first.NextChunkID != second.ChunkID {
		t.Errorf("first next = %q, want %q", first.NextChunkID, second.ChunkID)
	}
	if second.PrevChunkID != first.ChunkID {
		t.Errorf("second prev = %q, want %q", second.PrevChunkID, first.ChunkID)
	}
	if first.PrevChunkID != "" || second.NextChunkID != "" {
		t.Error("chain endpoints should have empty prev/next ids")
	}
	for i, chunk := range chunks {
		if chunk.TotalChunksInFile != 2 {
			t.Errorf("chunk %d total = %d, want 2", i, chunk.TotalChunksInFile)
		}
		if chunk.ChunkIndex != i {
			t.Errorf("chunk %d index = %d", i, chunk.ChunkIndex)
		}
		if chunk.SectionLevel != len(chunk.HeadingPath) {
			t.Errorf("chunk %d level %d != heading path length %d", i, chunk.SectionLevel, len(chunk.HeadingPath))
		}
	}
}

func TestChunkDocument_NoHeadings(t *testing.T) {
	chunks := NewSemanticChunker().ChunkDocument([]byte("Just plain text.\nNothing else."), "/docs/plain.md")

	if len(chunks) != 1 {
		t.Fatalf("chunk count = %d, want 1", len(chunks))
	}
	chunk := chunks[0]
	if len(chunk.HeadingPath) != 0 || chunk.SectionLevel != 0 {
		t.Errorf("heading path = %v, level = %d, want empty/0", chunk.HeadingPath, chunk.SectionLevel)
	}
	if chunk.PrevChunkID != "" || chunk.NextChunkID != "" {
		t.Error("single chunk should have no links")
	}
	if chunk.TotalChunksInFile != 1 {
		t.Errorf("total = %d, want 1", chunk.TotalChunksInFile)
	}
}

func TestChunkDocument_EmptyDocument(t *testing.T) {
	for _, content := range []string{"", "   \n\n  "} {
		if chunks := NewSemanticChunker().ChunkDocument([]byte(content), "/docs/empty.md"); len(chunks) != 0 {
			t.Errorf("ChunkDocument(%q) = %d chunks, want 0", content, len(chunks))
		}
	}
}

func TestChunkDocument_Frontmatter(t *testing.T) {
	doc := `---
title: Billing Guide
ms.topic: how-to
description: How invoices are generated.
---
# Invoices

Invoices are generated monthly.
`
	chunks := NewSemanticChunker().ChunkDocument([]byte(doc), "/docs/billing.md")
	if len(chunks) != 1 {
		t.Fatalf("chunk count = %d, want 1", len(chunks))
	}
	chunk := chunks[0]

	if chunk.Frontmatter["title"] != "Billing Guide" {
		t.Errorf("title = %q", chunk.Frontmatter["title"])
	}
	if !strings.HasPrefix(chunk.Content, "# Invoices") {
		t.Errorf("content = %q, want prefix # Invoices", chunk.Content)
	}

	for _, want := range []string{
		"Document: Billing Guide",
		"Topic: how-to",
		"Description: How invoices are generated.",
		"Section: Invoices",
	} {
		if !strings.Contains(chunk.EmbeddingContent, want) {
			t.Errorf("embedding content missing %q: %q", want, chunk.EmbeddingContent)
		}
	}
	if !strings.HasSuffix(chunk.EmbeddingContent, chunk.Content) {
		t.Error("embedding content should end with the raw content")
	}
	if chunk.ContentHash == "" {
		t.Error("content hash should be set")
	}
}

func TestChunkDocument_InvalidFrontmatterFallsBack(t *testing.T) {
	doc := "---\n{not yaml at all\n---\nBody text survives."
	chunks := NewSemanticChunker().ChunkDocument([]byte(doc), "/docs/broken.md")

	if len(chunks) != 1 {
		t.Fatalf("chunk count = %d, want 1", len(chunks))
	}
	if len(chunks[0].Frontmatter) != 0 {
		t.Errorf("frontmatter = %v, want empty", chunks[0].Frontmatter)
	}
	// The whole document is treated as body so no content is lost.
	if !strings.Contains(chunks[0].Content, "Body text survives.") {
		t.Errorf("content = %q, want body text preserved", chunks[0].Content)
	}
}

func TestChunkDocument_HeadingInsideCodeFence(t *testing.T) {
	doc := "# Real Heading\n\n```\n# not a heading\n```\n\nMore text.\n"
	chunks := NewSemanticChunker().ChunkDocument([]byte(doc), "/docs/fence.md")

	if len(chunks) != 1 {
		t.Fatalf("chunk count = %d, want 1", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "# not a heading") {
		t.Error("fenced pseudo-heading should stay inside the chunk content")
	}
}

func TestChunkDocument_DeterministicIDs(t *testing.T) {
	doc := "# Alpha\nSome text.\n## Beta\nOther text.\n"
	first := NewSemanticChunker().ChunkDocument([]byte(doc), "/docs/stable.md")
	second := NewSemanticChunker().ChunkDocument([]byte(doc), "/docs/stable.md")

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ChunkID != second[i].ChunkID {
			t.Errorf("chunk %d id not stable: %q vs %q", i, first[i].ChunkID, second[i].ChunkID)
		}
	}

	other := NewSemanticChunker().ChunkDocument([]byte(doc), "/elsewhere/stable.md")
	if other[0].ChunkID == first[0].ChunkID {
		t.Error("same document under a different path should produce different chunk ids")
	}
}

func TestChunkDocument_OversizedSectionSplits(t *testing.T) {
	para := strings.Repeat("word ", 12) // ~60 runes
	var b strings.Builder
	b.WriteString("# Big Section\n")
	for i := 0; i < 10; i++ {
		b.WriteString(para)
		b.WriteString("\n\n")
	}

	chunks := NewSemanticChunkerWithSizes(200, 80).ChunkDocument([]byte(b.String()), "/docs/big.md")
	if len(chunks) < 2 {
		t.Fatalf("chunk count = %d, want a split", len(chunks))
	}

	ids := map[string]struct{}{}
	for i, chunk := range chunks {
		if _, dup := ids[chunk.ChunkID]; dup {
			t.Errorf("duplicate chunk id %q", chunk.ChunkID)
		}
		ids[chunk.ChunkID] = struct{}{}

		if got := strings.Join(chunk.HeadingPath, ">"); got != "Big Section" {
			t.Errorf("chunk %d heading path = %q", i, got)
		}
		if i < len(chunks)-1 && utf8.RuneCountInString(chunk.Content) < 80 {
			t.Errorf("chunk %d has %d runes, below min size", i, utf8.RuneCountInString(chunk.Content))
		}
	}
	if chunks[0].ChunkID == chunks[1].ChunkID {
		t.Error("sub-split chunks must not share ids")
	}
}

func TestSmartSplit(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		max, min  int
		wantCount int
	}{
		{
			name:      "under max returns whole text",
			text:      "short text",
			max:       100,
			min:       10,
			wantCount: 1,
		},
		{
			name:      "packs paragraphs up to max",
			text:      strings.Repeat("aaaa aaaa aaaa aaaa\n\n", 10),
			max:       45,
			min:       15,
			wantCount: 5,
		},
		{
			name: "oversized paragraph force-appended, not dropped",
			text: "tiny\n\n" + strings.Repeat("x", 120) + "\n\nafter",
			max:  60,
			min:  20,
			// tiny+oversize exceed max with buffer under min, so they fuse.
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pieces := smartSplit(tt.text, tt.max, tt.min)
			if len(pieces) != tt.wantCount {
				t.Fatalf("piece count = %d, want %d (pieces: %q)", len(pieces), tt.wantCount, pieces)
			}

			var joined strings.Builder
			for _, piece := range pieces {
				joined.WriteString(piece)
				joined.WriteString("\n\n")
			}
			for _, para := range splitParagraphs(tt.text) {
				if !strings.Contains(joined.String(), para) {
					t.Errorf("paragraph %q lost during split", para)
				}
			}
		})
	}
}

func TestBuildEmbeddingContent_OmitsMissingHighlights(t *testing.T) {
	got := buildEmbeddingContent(map[string]string{}, "", "plain content")
	if got != "plain content" {
		t.Errorf("embedding content = %q, want raw content only", got)
	}

	longDesc := strings.Repeat("d", 150)
	got = buildEmbeddingContent(map[string]string{"description": longDesc}, "A > B", "body")
	if !strings.Contains(got, "Description: "+strings.Repeat("d", 100)+" |") {
		t.Errorf("description not truncated to 100 runes: %q", got)
	}
	if !strings.Contains(got, "Section: A > B") {
		t.Errorf("breadcrumb missing: %q", got)
	}
}
