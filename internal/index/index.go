package index

import (
	"context"

	"scholarqa/internal/models"
)

// Hit is one scored candidate from a single retrieval source. Text rides
// along so the retriever can build excerpts without a corpus join.
type Hit struct {
	ChunkID string  `json:"chunk_id"`
	PaperID string  `json:"paper_id"`
	Score   float64 `json:"score"`
	Text    string  `json:"text,omitempty"`
}

// VectorIndex stores chunk embeddings and answers nearest-neighbor queries.
// The similarity metric is cosine on L2-normalized vectors, identical at
// build and query time. Writers must serialize Upsert/DeletePaper calls;
// reads may run concurrently.
type VectorIndex interface {
	Upsert(entries []models.IndexEntry) error
	Search(ctx context.Context, queryVec []float32, k int, f *models.QueryFilter) ([]Hit, error)
	DeletePaper(paperID string) error
	// Orphans reports chunk ids whose paper no longer exists in the corpus
	// store, a detectable inconsistency after partial deletions.
	Orphans(knownPaperIDs map[string]struct{}) []string
}

// LexicalIndex is the keyword complement of the vector index.
type LexicalIndex interface {
	Index(entries []models.IndexEntry) error
	Search(ctx context.Context, query string, k int, f *models.QueryFilter) ([]Hit, error)
	DeletePaper(paperID string) error
	Orphans(knownPaperIDs map[string]struct{}) []string
}
