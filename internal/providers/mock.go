package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"scholarqa/internal/util"
)

// MockProvider is the deterministic stand-in used in tests and local runs.
// Embeddings are hashed bag-of-token vectors, so texts sharing vocabulary
// land close together under cosine similarity and retrieval tests behave
// like a (crude) semantic index.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 256
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, tokenVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	if len(req.Context) == 0 {
		return GenerateResponse{Text: "No evidence was provided."}, info, nil
	}
	b := strings.Builder{}
	b.WriteString("Deterministic answer grounded in the retrieved evidence.")
	for i := range req.Context {
		b.WriteString(" [C")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("]")
	}
	return GenerateResponse{Text: b.String()}, info, nil
}

func tokenVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, tok := range util.Tokenize(input) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32())%dim] += 1
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
