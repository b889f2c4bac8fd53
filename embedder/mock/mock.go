// Package mock provides a deterministic embedder for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/mentorstack/coach-go-sdk/embedder"
)

// Embedder generates deterministic embeddings without a model. Texts that
// share words produce correlated vectors, so similarity ordering in tests
// is stable and roughly semantic at the keyword level.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with all-MiniLM-L6-v2 dimensions.
func New() *Embedder {
	return &Embedder{dimensions: 384}
}

// NewWithDimensions creates a mock embedder of arbitrary size.
func NewWithDimensions(dims int) *Embedder {
	return &Embedder{dimensions: dims}
}

// Embed hashes each word into the vector so shared vocabulary yields
// higher cosine similarity. Identical text always embeds identically.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(word))
		seed := h.Sum64()
		// A few pseudo-random components per word via an LCG.
		for k := 0; k < 4; k++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			idx := int(seed % uint64(m.dimensions))
			seed = seed*6364136223846793005 + 1442695040888963407
			val := float32(int64(seed)) / float32(math.MaxInt64)
			vec[idx] += val
		}
	}
	return embedder.Normalize(vec), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// ModelID identifies the mock model.
func (m *Embedder) ModelID() string {
	return "mock-v1"
}

// Failing is an embedder that always errors, for exercising degraded paths.
type Failing struct {
	Err error
}

func (f *Failing) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, f.Err
}

func (f *Failing) Dimensions() int { return 384 }

func (f *Failing) ModelID() string { return "mock-v1" }
