package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"scholarqa/internal/index"
	"scholarqa/internal/models"
	"scholarqa/internal/util"
)

// Config tunes hybrid retrieval. Zero values take the documented defaults.
type Config struct {
	TopK             int
	FusionMultiplier int
	RRFConstant      int
	VectorMinScore   float64
	FusedMinScore    float64
	SearchTimeout    time.Duration
	ExcerptRunes     int
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 8
	}
	if c.FusionMultiplier <= 0 {
		c.FusionMultiplier = 4
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = 60
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 3 * time.Second
	}
	if c.ExcerptRunes <= 0 {
		c.ExcerptRunes = 420
	}
	return c
}

// VectorSearcher is the dense side of hybrid retrieval.
type VectorSearcher interface {
	Search(ctx context.Context, queryVec []float32, k int, f *models.QueryFilter) ([]index.Hit, error)
}

// LexicalSearcher is the keyword side.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, k int, f *models.QueryFilter) ([]index.Hit, error)
}

// QueryEmbedder produces the query vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) (models.Embedding, error)
}

// Retriever runs both retrieval sources in parallel and fuses their ranked
// lists with reciprocal-rank fusion. Each source gets its own timeout; one
// failed or slow source degrades to single-source ranking, and only the loss
// of both surfaces as an error.
type Retriever struct {
	vec      VectorSearcher
	lex      LexicalSearcher
	embedder QueryEmbedder
	cfg      Config
}

func New(vec VectorSearcher, lex LexicalSearcher, embedder QueryEmbedder, cfg Config) *Retriever {
	return &Retriever{vec: vec, lex: lex, embedder: embedder, cfg: cfg.withDefaults()}
}

// Retrieve returns the top-k evidence for a query. history carries prior
// turns of the same session, most recent last, and is only consulted when
// the query refers back to them. An empty result with a nil error means the
// corpus holds nothing relevant.
func (r *Retriever) Retrieve(ctx context.Context, q models.Query, history []models.Turn) ([]models.EvidenceItem, string, error) {
	text := RewriteQuery(q.RawText, history)
	if text == "" {
		return nil, "", fmt.Errorf("empty query: %w", util.ErrValidation)
	}

	fetchN := r.cfg.TopK * r.cfg.FusionMultiplier

	var (
		wg               sync.WaitGroup
		vecHits, lexHits []index.Hit
		vecErr, lexErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		sctx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
		defer cancel()
		emb, err := r.embedder.EmbedQuery(sctx, text)
		if err != nil {
			vecErr = err
			return
		}
		vecHits, vecErr = r.vec.Search(sctx, emb.Vector, fetchN, q.Filters)
	}()
	go func() {
		defer wg.Done()
		sctx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
		defer cancel()
		lexHits, lexErr = r.lex.Search(sctx, text, fetchN, q.Filters)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, text, err
	}
	if vecErr != nil && lexErr != nil {
		return nil, text, fmt.Errorf("vector: %v; lexical: %v: %w", vecErr, lexErr, util.ErrRetrievalTimeout)
	}

	// Similarity floor cuts vector noise before ranks are assigned, so a
	// barely-positive cosine on an unrelated corpus never earns RRF credit.
	filtered := vecHits[:0]
	for _, h := range vecHits {
		if h.Score >= r.cfg.VectorMinScore {
			filtered = append(filtered, h)
		}
	}
	vecHits = filtered

	evidence := r.fuse(vecHits, lexHits)
	if len(evidence) > r.cfg.TopK {
		evidence = evidence[:r.cfg.TopK]
	}
	for i := range evidence {
		evidence[i].Rank = i + 1
	}
	return evidence, text, nil
}

type fusedCandidate struct {
	hit          index.Hit
	fused        float64
	vectorScore  float64
	lexicalScore float64
}

// fuse merges the two ranked lists with score = sum over sources of
// 1/(rank + K). Fusion works on ranks only; raw scores from the two sources
// are not comparable and are kept solely for reporting and tie-breaking.
func (r *Retriever) fuse(vecHits, lexHits []index.Hit) []models.EvidenceItem {
	k := float64(r.cfg.RRFConstant)
	byChunk := map[string]*fusedCandidate{}

	admit := func(h index.Hit) *fusedCandidate {
		c, ok := byChunk[h.ChunkID]
		if !ok {
			c = &fusedCandidate{hit: h}
			byChunk[h.ChunkID] = c
		}
		return c
	}
	for rank, h := range vecHits {
		c := admit(h)
		c.fused += 1.0 / (float64(rank) + k)
		c.vectorScore = h.Score
	}
	for rank, h := range lexHits {
		c := admit(h)
		c.fused += 1.0 / (float64(rank) + k)
		c.lexicalScore = h.Score
	}

	cands := make([]*fusedCandidate, 0, len(byChunk))
	for _, c := range byChunk {
		if c.fused < r.cfg.FusedMinScore {
			continue
		}
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].fused != cands[j].fused {
			return cands[i].fused > cands[j].fused
		}
		if cands[i].vectorScore != cands[j].vectorScore {
			return cands[i].vectorScore > cands[j].vectorScore
		}
		return cands[i].hit.ChunkID < cands[j].hit.ChunkID
	})

	out := make([]models.EvidenceItem, 0, len(cands))
	for _, c := range cands {
		out = append(out, models.EvidenceItem{
			ChunkID:       c.hit.ChunkID,
			PaperID:       c.hit.PaperID,
			Score:         c.fused,
			SourceExcerpt: util.DisplaySnippet(c.hit.Text, r.cfg.ExcerptRunes),
			VectorScore:   c.vectorScore,
			LexicalScore:  c.lexicalScore,
		})
	}
	return out
}

// Referring terms that signal a follow-up question leaning on earlier turns.
// Bare demonstratives ("that", "this") are deliberately absent: they appear
// as relativizers in self-contained queries like "models that use attention".
var referringTerms = []string{
	"it", "its", "they", "them", "their",
	"that paper", "this paper", "the paper", "the method", "the approach",
	"the model", "the authors",
}

// RewriteQuery normalizes the raw query and, when it refers back to the
// conversation, folds in the most recent prior query so a bare "what dataset
// did it use" still retrieves against the right topic.
func RewriteQuery(raw string, history []models.Turn) string {
	text := util.NormalizeQuery(raw)
	if text == "" || len(history) == 0 {
		return text
	}
	if !refersBack(text) {
		return text
	}
	prev := util.NormalizeQuery(history[len(history)-1].Query.RawText)
	if prev == "" || prev == text {
		return text
	}
	return prev + " " + text
}

func refersBack(normalized string) bool {
	padded := " " + normalized + " "
	for _, term := range referringTerms {
		if strings.Contains(padded, " "+term+" ") {
			return true
		}
	}
	return false
}
