package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestMockEmbedDeterministicAndOrdered(t *testing.T) {
	ctx := context.Background()
	m := NewMockProvider(128)

	in := EmbedRequest{Inputs: []string{"attention mechanism", "graph neural networks"}, Dimension: 128}
	a, info, err := m.Embed(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "mock", info.Name)
	require.Len(t, a, 2)
	require.Len(t, a[0], 128)

	b, _, err := m.Embed(ctx, in)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestMockEmbedVocabularyOverlapScoresHigher(t *testing.T) {
	ctx := context.Background()
	m := NewMockProvider(128)
	out, _, err := m.Embed(ctx, EmbedRequest{Inputs: []string{
		"transformer attention mechanism",
		"attention in transformers",
		"sourdough bread recipe",
	}, Dimension: 128})
	require.NoError(t, err)

	related := cosine(out[0], out[1])
	unrelated := cosine(out[0], out[2])
	require.Greater(t, related, unrelated)
	require.Greater(t, related, 0.5)
}

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("mock|openai:key1|ollama:nomic")
	require.Len(t, refs, 3)
	require.Equal(t, "openai", refs[1].Name)
	require.Equal(t, "key1", refs[1].KeyAlias)
}
