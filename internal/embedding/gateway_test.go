package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"scholarqa/internal/providers"
	"scholarqa/internal/util"

	"github.com/stretchr/testify/require"
)

// flakyProvider fails a fixed number of times before succeeding, recording
// every batch it sees.
type flakyProvider struct {
	failures int
	calls    int
	batches  [][]string
	dim      int
	failWith error
}

func (f *flakyProvider) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	f.calls++
	f.batches = append(f.batches, append([]string(nil), req.Inputs...))
	if f.calls <= f.failures {
		err := f.failWith
		if err == nil {
			err = errors.New("upstream timeout")
		}
		return nil, providers.ProviderInfo{Name: "flaky"}, err
	}
	out := make([][]float32, 0, len(req.Inputs))
	for i := range req.Inputs {
		v := make([]float32, f.dim)
		v[0] = float32(i + 1)
		out = append(out, v)
	}
	return out, providers.ProviderInfo{Name: "flaky", Model: "flaky-embed"}, nil
}

func TestGatewayBatchesAndPreservesOrder(t *testing.T) {
	p := &flakyProvider{dim: 4}
	g := NewGateway(p, Config{ModelID: "m1", Dimension: 4, BatchSize: 2})

	texts := []string{"a", "b", "c", "d", "e"}
	out, err := g.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, out, 5)
	require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, p.batches)

	// Position within each batch is encoded in the vector; order must hold.
	require.Equal(t, float32(1), out[0].Vector[0])
	require.Equal(t, float32(2), out[1].Vector[0])
	require.Equal(t, float32(1), out[2].Vector[0])
	for _, e := range out {
		require.Equal(t, "m1", e.ModelID)
	}
}

func TestGatewayRetriesTransientThenSucceeds(t *testing.T) {
	p := &flakyProvider{dim: 3, failures: 2}
	g := NewGateway(p, Config{ModelID: "m1", Dimension: 3, BatchSize: 8, MaxRetries: 3, RetryBackoff: time.Millisecond})

	out, err := g.EmbedTexts(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 3, p.calls)
}

func TestGatewayExhaustsRetries(t *testing.T) {
	p := &flakyProvider{dim: 3, failures: 10}
	g := NewGateway(p, Config{ModelID: "m1", Dimension: 3, MaxRetries: 3, RetryBackoff: time.Millisecond})

	_, err := g.EmbedTexts(context.Background(), []string{"x"})
	require.ErrorIs(t, err, util.ErrEmbeddingService)
	require.Equal(t, 3, p.calls)
}

func TestGatewayDoesNotRetryPermanentFailures(t *testing.T) {
	p := &flakyProvider{dim: 3, failures: 10, failWith: fmt.Errorf("invalid input payload")}
	g := NewGateway(p, Config{ModelID: "m1", Dimension: 3, MaxRetries: 5, RetryBackoff: time.Millisecond})

	_, err := g.EmbedTexts(context.Background(), []string{"x"})
	require.ErrorIs(t, err, util.ErrEmbeddingService)
	require.Equal(t, 1, p.calls)
}

func TestGatewayRejectsWrongDimension(t *testing.T) {
	p := &flakyProvider{dim: 3}
	g := NewGateway(p, Config{ModelID: "m1", Dimension: 8})

	_, err := g.EmbedTexts(context.Background(), []string{"x"})
	require.ErrorIs(t, err, util.ErrDimensionMismatch)
}
