package embedding

import (
	"context"
	"fmt"
	"time"

	"scholarqa/internal/models"
	"scholarqa/internal/providers"
	"scholarqa/internal/util"
)

// Config bounds external-call cost and retry behavior.
type Config struct {
	ModelID      string
	Dimension    int
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Gateway wraps an EmbeddingProvider with internal batching, order
// preservation, model tagging and bounded retry. Transient and rate-limit
// failures are retried with exponential backoff; validation-type failures
// surface immediately.
type Gateway struct {
	provider providers.EmbeddingProvider
	cfg      Config
}

func NewGateway(p providers.EmbeddingProvider, cfg Config) *Gateway {
	return &Gateway{provider: p, cfg: cfg.withDefaults()}
}

func (g *Gateway) ModelID() string { return g.cfg.ModelID }

// EmbedTexts returns one embedding per input, in input order, each tagged
// with the active model id.
func (g *Gateway) EmbedTexts(ctx context.Context, texts []string) ([]models.Embedding, error) {
	out := make([]models.Embedding, 0, len(texts))
	for start := 0; start < len(texts); start += g.cfg.BatchSize {
		end := start + g.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := g.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		for i, v := range vectors {
			if g.cfg.Dimension > 0 && len(v) != g.cfg.Dimension {
				return nil, fmt.Errorf("embedding for input %d has dimension %d, want %d: %w",
					start+i, len(v), g.cfg.Dimension, util.ErrDimensionMismatch)
			}
			out = append(out, models.Embedding{Vector: v, ModelID: g.cfg.ModelID})
		}
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) (models.Embedding, error) {
	res, err := g.EmbedTexts(ctx, []string{text})
	if err != nil {
		return models.Embedding{}, err
	}
	return res[0], nil
}

func (g *Gateway) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	backoff := g.cfg.RetryBackoff
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		vectors, _, err := g.provider.Embed(ctx, providers.EmbedRequest{
			Operation: "embed",
			Inputs:    batch,
			Dimension: g.cfg.Dimension,
		})
		if err == nil {
			if len(vectors) != len(batch) {
				return nil, fmt.Errorf("provider returned %d vectors for %d inputs: %w",
					len(vectors), len(batch), util.ErrEmbeddingService)
			}
			return vectors, nil
		}
		lastErr = err
		if !providers.Retryable(providers.ClassifyError(err)) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("embed batch canceled: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("embed batch failed after retries: %v: %w", lastErr, util.ErrEmbeddingService)
}
