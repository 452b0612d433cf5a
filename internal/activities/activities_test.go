package activities

import (
	"context"
	"errors"
	"testing"

	"scholarqa/internal/config"
	"scholarqa/internal/corpus"
	"scholarqa/internal/embedding"
	"scholarqa/internal/index"
	"scholarqa/internal/models"
	"scholarqa/internal/providers"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
)

func newTestActivities(t *testing.T, modelID string) (*Activities, index.MemWriter) {
	t.Helper()
	gw := embedding.NewGateway(providers.NewMockProvider(2), embedding.Config{ModelID: modelID, Dimension: 2})
	writer := index.MemWriter{Vec: index.NewMemVectorIndex(2, modelID), Lex: index.NewMemLexicalIndex()}
	return New(config.Config{}, corpus.NewMemStore(), writer, gw), writer
}

func TestExtractTextActivityEmptyPaperFailsNonRetryable(t *testing.T) {
	a, _ := newTestActivities(t, "m1")

	_, err := a.ExtractTextActivity(context.Background(), ExtractTextInput{PaperID: "p1"})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, ExtractionFailureType, appErr.Type())
	require.Contains(t, err.Error(), "no extractable text")
}

func TestExtractTextActivityMetadataFallback(t *testing.T) {
	a, _ := newTestActivities(t, "m1")

	out, err := a.ExtractTextActivity(context.Background(), ExtractTextInput{
		PaperID:  "p1",
		Title:    "Attention Revisited",
		Abstract: "We revisit attention mechanisms.",
	})
	require.NoError(t, err)
	require.Contains(t, out.Text, "Attention Revisited")
	require.Equal(t, []int{0}, out.PageOffsets)
}

func TestListStaleChunksActivity(t *testing.T) {
	a, writer := newTestActivities(t, "m2")
	require.NoError(t, writer.Upsert(context.Background(), []models.IndexEntry{
		{Chunk: models.Chunk{ChunkID: "p1:0", PaperID: "p1", Text: "old embedding"}, Vector: []float32{1, 0}, ModelID: "m1"},
		{Chunk: models.Chunk{ChunkID: "p2:0", PaperID: "p2", Text: "current embedding"}, Vector: []float32{0, 1}, ModelID: "m2"},
	}))

	out, err := a.ListStaleChunksActivity(context.Background(), ListStaleChunksInput{})
	require.NoError(t, err)
	require.Equal(t, "m2", out.ModelID)
	require.Equal(t, []string{"p1:0"}, out.ChunkIDs)
}
