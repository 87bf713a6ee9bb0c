package scorer

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks contentscout/internal/scorer Embedder

import "context"

// Embedder turns text into vectors. Satisfied by llm.EmbeddingsClient.
type Embedder interface {
	// EmbedTexts generates one embedding per input text.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryContext carries the free-form goal description supplied by the
// content-strategy collaborator.
type QueryContext struct {
	// Goal states what content should exist.
	Goal string `json:"goal"`
	// Audience describes who the content targets.
	Audience string `json:"audience,omitempty"`
	// ServiceArea names the service or domain area in scope.
	ServiceArea string `json:"service_area,omitempty"`
	// MaterialKeywords are distinctive topics pulled from reference
	// materials.
	MaterialKeywords []string `json:"material_keywords,omitempty"`
}

// RankedFile is one entry of the scorer's output: a file judged relevant to
// the query, with enough metadata and reconstructed content for downstream
// content planning.
type RankedFile struct {
	File                 string   `json:"file"`
	CombinedScore        float64  `json:"combined_score"`
	Title                string   `json:"title"`
	ContentType          string   `json:"content_type,omitempty"`
	Description          string   `json:"description,omitempty"`
	MatchedSections      []string `json:"matched_sections,omitempty"`
	ReconstructedContent string   `json:"reconstructed_content"`
}

// ScoreConfig holds the scoring heuristics. The boost values are empirical
// tuning constants; they are kept named and overridable rather than inlined.
type ScoreConfig struct {
	// FileBoostWeight × file average is added to each of the file's chunks
	// when the file's average base score exceeds FileBoostThreshold.
	FileBoostWeight    float64
	FileBoostThreshold float64
	// NeighborBoost is added once per prev/next neighbor whose own base
	// score exceeds NeighborThreshold.
	NeighborBoost     float64
	NeighborThreshold float64
	// ParentBoost is added when the parent heading chunk's base score
	// exceeds ParentThreshold.
	ParentBoost     float64
	ParentThreshold float64
	// TopK bounds how many files are returned.
	TopK int
	// MatchedSections bounds how many breadcrumbs each file reports.
	MatchedSections int
}

// DefaultScoreConfig returns the standard heuristics.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		FileBoostWeight:    0.1,
		FileBoostThreshold: 0.5,
		NeighborBoost:      0.05,
		NeighborThreshold:  0.6,
		ParentBoost:        0.03,
		ParentThreshold:    0.7,
		TopK:               3,
		MatchedSections:    3,
	}
}

// MaxTotalBoost is the upper bound any chunk can gain over its base score:
// full file boost (weight × a perfect 1.0 average) + both neighbors + parent.
func (c ScoreConfig) MaxTotalBoost() float64 {
	return c.FileBoostWeight + 2*c.NeighborBoost + c.ParentBoost
}
