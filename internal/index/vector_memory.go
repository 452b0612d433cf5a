package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"scholarqa/internal/models"
	"scholarqa/internal/util"
)

// MemVectorIndex is a brute-force cosine index. It backs tests and small
// in-process deployments; the Postgres/pgvector searcher is the durable path.
// Search only serves entries embedded under activeModelID; entries left over
// from an earlier model stay invisible until re-embedded.
type MemVectorIndex struct {
	mu            sync.RWMutex
	dim           int
	activeModelID string
	entries       map[string]models.IndexEntry
}

func NewMemVectorIndex(dim int, activeModelID string) *MemVectorIndex {
	return &MemVectorIndex{dim: dim, activeModelID: activeModelID, entries: map[string]models.IndexEntry{}}
}

func (idx *MemVectorIndex) Upsert(entries []models.IndexEntry) error {
	// Validate every vector before touching state so a bad batch cannot
	// leave the index partially updated.
	for _, e := range entries {
		if len(e.Vector) != idx.dim {
			return fmt.Errorf("chunk %s has dimension %d, index wants %d: %w",
				e.Chunk.ChunkID, len(e.Vector), idx.dim, util.ErrDimensionMismatch)
		}
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, e := range entries {
		e.Vector = normalizeVec(e.Vector)
		idx.entries[e.Chunk.ChunkID] = e
	}
	return nil
}

func (idx *MemVectorIndex) Search(ctx context.Context, queryVec []float32, k int, f *models.QueryFilter) ([]Hit, error) {
	if len(queryVec) != idx.dim {
		return nil, fmt.Errorf("query has dimension %d, index wants %d: %w",
			len(queryVec), idx.dim, util.ErrDimensionMismatch)
	}
	if k <= 0 {
		k = 8
	}
	q := normalizeVec(queryVec)

	idx.mu.RLock()
	hits := make([]Hit, 0, len(idx.entries))
	for _, e := range idx.entries {
		if err := ctx.Err(); err != nil {
			idx.mu.RUnlock()
			return nil, err
		}
		if e.ModelID != idx.activeModelID {
			continue
		}
		if !f.Matches(e.Categories, e.SubmitDate) {
			continue
		}
		hits = append(hits, Hit{
			ChunkID: e.Chunk.ChunkID,
			PaperID: e.Chunk.PaperID,
			Score:   dot(q, e.Vector),
			Text:    e.Chunk.Text,
		})
	}
	idx.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (idx *MemVectorIndex) DeletePaper(paperID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for id, e := range idx.entries {
		if e.Chunk.PaperID == paperID {
			delete(idx.entries, id)
		}
	}
	return nil
}

func (idx *MemVectorIndex) Orphans(knownPaperIDs map[string]struct{}) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var orphans []string
	for id, e := range idx.entries {
		if _, ok := knownPaperIDs[e.Chunk.PaperID]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// StaleChunks lists indexed chunks whose embedding was produced under a
// different model than the active one; they must be re-embedded, not reused.
func (idx *MemVectorIndex) StaleChunks(activeModelID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var stale []string
	for id, e := range idx.entries {
		if e.ModelID != activeModelID {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale
}

func normalizeVec(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] * inv
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
