package index

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"scholarqa/internal/models"
	"scholarqa/internal/util"
)

// BM25 parameters, the usual values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type lexicalDoc struct {
	chunk      models.Chunk
	categories []string
	submitDate time.Time
	termFreq   map[string]int
	length     int
}

// MemLexicalIndex is an inverted-index BM25 scorer over tokenized chunk
// text. Like MemVectorIndex it serves tests and in-process use; Postgres
// full-text search is the durable counterpart.
type MemLexicalIndex struct {
	mu       sync.RWMutex
	docs     map[string]*lexicalDoc
	postings map[string]map[string]struct{} // term -> chunk ids
	totalLen int
}

func NewMemLexicalIndex() *MemLexicalIndex {
	return &MemLexicalIndex{
		docs:     map[string]*lexicalDoc{},
		postings: map[string]map[string]struct{}{},
	}
}

func (idx *MemLexicalIndex) Index(entries []models.IndexEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, e := range entries {
		idx.removeLocked(e.Chunk.ChunkID)
		tokens := util.Tokenize(e.Chunk.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		doc := &lexicalDoc{
			chunk:      e.Chunk,
			categories: e.Categories,
			submitDate: e.SubmitDate,
			termFreq:   tf,
			length:     len(tokens),
		}
		idx.docs[e.Chunk.ChunkID] = doc
		idx.totalLen += doc.length
		for term := range tf {
			ids, ok := idx.postings[term]
			if !ok {
				ids = map[string]struct{}{}
				idx.postings[term] = ids
			}
			ids[e.Chunk.ChunkID] = struct{}{}
		}
	}
	return nil
}

func (idx *MemLexicalIndex) Search(ctx context.Context, query string, k int, f *models.QueryFilter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 8
	}
	terms := util.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docs)
	if n == 0 {
		return nil, nil
	}
	avgLen := float64(idx.totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	scores := map[string]float64{}
	for _, term := range terms {
		ids, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(len(ids))+0.5)/(float64(len(ids))+0.5))
		for id := range ids {
			doc := idx.docs[id]
			if !f.Matches(doc.categories, doc.submitDate) {
				continue
			}
			tf := float64(doc.termFreq[term])
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(doc.length)/avgLen))
			scores[id] += idf * norm
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		doc := idx.docs[id]
		hits = append(hits, Hit{
			ChunkID: id,
			PaperID: doc.chunk.PaperID,
			Score:   score,
			Text:    doc.chunk.Text,
		})
	}
	// Equal scores break toward the more recent paper, then the smaller
	// chunk id, keeping result order reproducible across runs.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		di, dj := idx.docs[hits[i].ChunkID].submitDate, idx.docs[hits[j].ChunkID].submitDate
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (idx *MemLexicalIndex) DeletePaper(paperID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for id, doc := range idx.docs {
		if doc.chunk.PaperID == paperID {
			idx.removeLocked(id)
		}
	}
	return nil
}

func (idx *MemLexicalIndex) Orphans(knownPaperIDs map[string]struct{}) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var orphans []string
	for id, doc := range idx.docs {
		if _, ok := knownPaperIDs[doc.chunk.PaperID]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans
}

func (idx *MemLexicalIndex) removeLocked(chunkID string) {
	doc, ok := idx.docs[chunkID]
	if !ok {
		return
	}
	idx.totalLen -= doc.length
	for term := range doc.termFreq {
		if ids, ok := idx.postings[term]; ok {
			delete(ids, chunkID)
			if len(ids) == 0 {
				delete(idx.postings, term)
			}
		}
	}
	delete(idx.docs, chunkID)
}
