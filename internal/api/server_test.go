package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scholarqa/internal/config"
	"scholarqa/internal/corpus"
	"scholarqa/internal/embedding"
	"scholarqa/internal/index"
	"scholarqa/internal/models"
	"scholarqa/internal/providers"
	"scholarqa/internal/retriever"
	"scholarqa/internal/session"
	"scholarqa/internal/synth"

	"github.com/stretchr/testify/require"
)

const testDim = 128

type failingLLM struct{}

func (failingLLM) Generate(context.Context, providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	return providers.GenerateResponse{}, providers.ProviderInfo{}, errors.New("model endpoint unavailable")
}

type fixture struct {
	server *Server
	store  *corpus.MemStore
	vec    *index.MemVectorIndex
	lex    *index.MemLexicalIndex
}

func newFixture(t *testing.T, llm providers.LLMProvider) *fixture {
	t.Helper()
	mock := providers.NewMockProvider(testDim)
	gw := embedding.NewGateway(mock, embedding.Config{ModelID: "mock-embed", Dimension: testDim})

	store := corpus.NewMemStore()
	vec := index.NewMemVectorIndex(testDim, "mock-embed")
	lex := index.NewMemLexicalIndex()

	papers := []models.Paper{
		{PaperID: "2301.0001", Title: "Attention Is All You Need", Abstract: "The transformer relies entirely on attention mechanisms.", Categories: []string{"cs.CL"}, SubmitDate: time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC), Status: models.StatusIndexed},
		{PaperID: "2301.0002", Title: "Convolutional Networks", Abstract: "Convolutional neural networks excel at image classification.", Categories: []string{"cs.CV"}, SubmitDate: time.Date(2023, 2, 5, 0, 0, 0, 0, time.UTC), Status: models.StatusIndexed},
	}
	texts := map[string]string{
		"2301.0001": "the transformer relies entirely on attention mechanisms to draw global dependencies between input and output",
		"2301.0002": "convolutional neural networks excel at image classification through hierarchical feature extraction",
	}
	ctx := context.Background()
	for _, p := range papers {
		require.NoError(t, store.Put(ctx, p))
		embs, err := gw.EmbedTexts(ctx, []string{texts[p.PaperID]})
		require.NoError(t, err)
		entries := []models.IndexEntry{{
			Chunk:      models.Chunk{ChunkID: p.PaperID + ":0", PaperID: p.PaperID, Text: texts[p.PaperID]},
			Vector:     embs[0].Vector,
			ModelID:    embs[0].ModelID,
			Categories: p.Categories,
			SubmitDate: p.SubmitDate,
		}}
		require.NoError(t, vec.Upsert(entries))
		require.NoError(t, lex.Index(entries))
	}

	r := retriever.New(vec, lex, gw, retriever.Config{TopK: 4, VectorMinScore: 0.05})
	srv := NewServer(config.Config{TemporalTaskQueue: "scholarqa"}, Deps{
		Store:       store,
		Retriever:   r,
		Synthesizer: synth.New(llm, synth.Config{MaxRetries: 1, RetryBackoff: time.Millisecond}),
		Sessions:    session.NewManager(session.Config{}),
		Orphans: func(ctx context.Context) ([]string, error) {
			known := map[string]struct{}{}
			err := corpus.ForEach(ctx, store, corpus.Filter{}, 200, func(p models.Paper) error {
				known[p.PaperID] = struct{}{}
				return nil
			})
			if err != nil {
				return nil, err
			}
			return vec.Orphans(known), nil
		},
	})
	return &fixture{server: srv, store: store, vec: vec, lex: lex}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Error.Code
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, providers.NewMockProvider(testDim))
	rec := doJSON(t, f.server.Routes(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestQueryReturnsCitedAnswer(t *testing.T) {
	f := newFixture(t, providers.NewMockProvider(testDim))
	rec := doJSON(t, f.server.Routes(), http.MethodPost, "/query", map[string]any{
		"text": "How does the transformer attention mechanism work?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		AnswerText   string `json:"answer_text"`
		Insufficient bool   `json:"insufficient_evidence"`
		SessionID    string `json:"session_id"`
		Citations    []struct {
			PaperID string  `json:"paper_id"`
			Title   string  `json:"title"`
			ChunkID string  `json:"chunk_id"`
			Excerpt string  `json:"excerpt"`
			Score   float64 `json:"score"`
		} `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.False(t, out.Insufficient)
	require.NotEmpty(t, out.AnswerText)
	require.NotEmpty(t, out.SessionID)
	require.NotEmpty(t, out.Citations)
	require.Equal(t, "2301.0001", out.Citations[0].PaperID)
	require.Equal(t, "Attention Is All You Need", out.Citations[0].Title)
	require.NotEmpty(t, out.Citations[0].Excerpt)
}

func TestQueryOffTopicIsInsufficientNotError(t *testing.T) {
	f := newFixture(t, providers.NewMockProvider(testDim))
	rec := doJSON(t, f.server.Routes(), http.MethodPost, "/query", map[string]any{
		"text": "sourdough bread recipe",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Insufficient bool  `json:"insufficient_evidence"`
		Citations    []any `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.True(t, out.Insufficient)
	require.Empty(t, out.Citations)
}

func TestQueryValidation(t *testing.T) {
	f := newFixture(t, providers.NewMockProvider(testDim))
	rec := doJSON(t, f.server.Routes(), http.MethodPost, "/query", map[string]any{"text": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "SQ-API-4001", errCode(t, rec))

	rec = doJSON(t, f.server.Routes(), http.MethodPost, "/query", map[string]any{
		"text":    "anything",
		"filters": map[string]any{"date_from": "last week"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryGenerationFailureIs502(t *testing.T) {
	f := newFixture(t, failingLLM{})
	rec := doJSON(t, f.server.Routes(), http.MethodPost, "/query", map[string]any{
		"text": "How does the transformer attention mechanism work?",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "SQ-API-5020", errCode(t, rec))
}

func TestQuerySessionFollowUp(t *testing.T) {
	f := newFixture(t, providers.NewMockProvider(testDim))
	h := f.server.Routes()

	rec := doJSON(t, h, http.MethodPost, "/query", map[string]any{
		"text": "How does the transformer attention mechanism work?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var first struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	// The follow-up leans on the prior turn; with the session it still
	// retrieves transformer evidence.
	rec = doJSON(t, h, http.MethodPost, "/query", map[string]any{
		"session_id": first.SessionID,
		"text":       "What does it rely on?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		SessionID    string `json:"session_id"`
		Insufficient bool   `json:"insufficient_evidence"`
		Citations    []struct {
			PaperID string `json:"paper_id"`
		} `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Equal(t, first.SessionID, second.SessionID)
	require.False(t, second.Insufficient)
	require.NotEmpty(t, second.Citations)
	require.Equal(t, "2301.0001", second.Citations[0].PaperID)
}

func TestPapersEndpoints(t *testing.T) {
	f := newFixture(t, providers.NewMockProvider(testDim))
	h := f.server.Routes()

	rec := doJSON(t, h, http.MethodGet, "/papers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Equal(t, 2, listed.Count)

	rec = doJSON(t, h, http.MethodGet, "/papers/2301.0001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p models.Paper
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Equal(t, "Attention Is All You Need", p.Title)

	rec = doJSON(t, h, http.MethodGet, "/papers/unknown", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "SQ-API-4004", errCode(t, rec))

	// Same id, different content: conflict.
	rec = doJSON(t, h, http.MethodPost, "/papers", models.Paper{
		PaperID: "2301.0001", Title: "Different Title", Abstract: "Different abstract.",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "SQ-API-4009", errCode(t, rec))

	rec = doJSON(t, h, http.MethodPost, "/papers", models.Paper{
		PaperID: "2302.0003", Title: "New Paper", Abstract: "Fresh abstract.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestIngestWithoutTemporalIs503(t *testing.T) {
	f := newFixture(t, providers.NewMockProvider(testDim))
	rec := doJSON(t, f.server.Routes(), http.MethodPost, "/ingest", map[string]any{"csv_path": "meta.csv"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "SQ-API-5030", errCode(t, rec))
}

func TestIntegrityReportsOrphans(t *testing.T) {
	f := newFixture(t, providers.NewMockProvider(testDim))
	h := f.server.Routes()

	rec := doJSON(t, h, http.MethodGet, "/integrity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `"ok":true`))

	// Deleting the paper from the store without touching the index leaves
	// orphaned chunks the check must surface.
	require.NoError(t, f.store.Delete(context.Background(), "2301.0002"))
	rec = doJSON(t, h, http.MethodGet, "/integrity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		OK      bool     `json:"ok"`
		Orphans []string `json:"orphan_chunks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.False(t, out.OK)
	require.Equal(t, []string{"2301.0002:0"}, out.Orphans)
}
