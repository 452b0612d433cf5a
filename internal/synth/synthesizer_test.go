package synth

import (
	"context"
	"errors"
	"testing"
	"time"

	"scholarqa/internal/models"
	"scholarqa/internal/providers"
	"scholarqa/internal/util"

	"github.com/stretchr/testify/require"
)

// scriptedLLM fails a fixed number of times, then returns a canned answer.
type scriptedLLM struct {
	failures int
	failWith error
	answer   string
	calls    int
	lastReq  providers.GenerateRequest
}

func (s *scriptedLLM) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	s.calls++
	s.lastReq = req
	if s.calls <= s.failures {
		err := s.failWith
		if err == nil {
			err = errors.New("upstream timeout")
		}
		return providers.GenerateResponse{}, providers.ProviderInfo{Name: "scripted"}, err
	}
	return providers.GenerateResponse{Text: s.answer}, providers.ProviderInfo{Name: "scripted"}, nil
}

func sampleEvidence() []models.EvidenceItem {
	return []models.EvidenceItem{
		{ChunkID: "a:0", PaperID: "a", Rank: 1, Score: 0.4, SourceExcerpt: "attention is all you need"},
		{ChunkID: "b:0", PaperID: "b", Rank: 2, Score: 0.3, SourceExcerpt: "convolutions capture locality"},
		{ChunkID: "c:0", PaperID: "c", Rank: 3, Score: 0.2, SourceExcerpt: "rewards drive exploration"},
	}
}

func TestSynthesizeEmptyEvidenceShortCircuits(t *testing.T) {
	llm := &scriptedLLM{answer: "should never be called"}
	s := New(llm, Config{})

	ans, err := s.Synthesize(context.Background(), "what is attention?", nil)
	require.NoError(t, err)
	require.True(t, ans.Insufficient)
	require.Empty(t, ans.Citations)
	require.Equal(t, InsufficientEvidenceText, ans.Text)
	require.Zero(t, llm.calls, "provider must not be called without evidence")
}

func TestSynthesizeCitationsAreSubsetOfEvidence(t *testing.T) {
	llm := &scriptedLLM{answer: "Transformers rely on attention [C1]. Some also use convolution [C2]. Bogus source [C9]."}
	s := New(llm, Config{})

	ans, err := s.Synthesize(context.Background(), "how do transformers work?", sampleEvidence())
	require.NoError(t, err)
	require.False(t, ans.Insufficient)
	require.Len(t, ans.Citations, 2)
	require.Equal(t, "a:0", ans.Citations[0].ChunkID)
	require.Equal(t, "b:0", ans.Citations[1].ChunkID)
}

func TestSynthesizePassesTaggedEvidence(t *testing.T) {
	llm := &scriptedLLM{answer: "ok [C1]"}
	s := New(llm, Config{})

	_, err := s.Synthesize(context.Background(), "q?", sampleEvidence())
	require.NoError(t, err)
	require.Len(t, llm.lastReq.Context, 3)
	require.Contains(t, llm.lastReq.Context[0], "[C1]")
	require.Contains(t, llm.lastReq.Context[0], "attention is all you need")
	require.Contains(t, llm.lastReq.Prompt, "q?")
}

func TestSynthesizeRetriesTransientThenSucceeds(t *testing.T) {
	llm := &scriptedLLM{failures: 2, answer: "fine [C1]"}
	s := New(llm, Config{MaxRetries: 3, RetryBackoff: time.Millisecond})

	ans, err := s.Synthesize(context.Background(), "q?", sampleEvidence())
	require.NoError(t, err)
	require.Equal(t, "fine [C1]", ans.Text)
	require.Equal(t, 3, llm.calls)
}

func TestSynthesizeExhaustedRetriesSurfaceGenerationError(t *testing.T) {
	llm := &scriptedLLM{failures: 10}
	s := New(llm, Config{MaxRetries: 3, RetryBackoff: time.Millisecond})

	_, err := s.Synthesize(context.Background(), "q?", sampleEvidence())
	require.ErrorIs(t, err, util.ErrGenerationService)
	require.Equal(t, 3, llm.calls)
}

func TestSynthesizeDoesNotRetryPermanentFailures(t *testing.T) {
	llm := &scriptedLLM{failures: 10, failWith: errors.New("invalid request payload")}
	s := New(llm, Config{MaxRetries: 5, RetryBackoff: time.Millisecond})

	_, err := s.Synthesize(context.Background(), "q?", sampleEvidence())
	require.ErrorIs(t, err, util.ErrGenerationService)
	require.Equal(t, 1, llm.calls)
}

func TestSynthesizeWithMockProviderCitesEverything(t *testing.T) {
	s := New(providers.NewMockProvider(0), Config{})

	ans, err := s.Synthesize(context.Background(), "q?", sampleEvidence())
	require.NoError(t, err)
	require.Len(t, ans.Citations, 3)
	for i, c := range ans.Citations {
		require.Equal(t, sampleEvidence()[i].ChunkID, c.ChunkID)
	}
}

func TestExtractCitationRefs(t *testing.T) {
	refs := ExtractCitationRefs("claim [C2], more [C1], repeat [C2], range [C12]")
	require.Equal(t, []int{2, 1, 12}, refs)
	require.Empty(t, ExtractCitationRefs("no markers here"))
}
