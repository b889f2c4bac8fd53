// Package embedder defines the text-to-vector boundary and the vector math
// shared by the corpus index and the long-term memory store.
//
// Implementations:
//   - mock.Embedder: deterministic hash embeddings for tests
//   - onnx.Embedder: local all-MiniLM-L6-v2 via ONNX Runtime (build tag "onnx")
//
// Every implementation reports a fixed, versioned ModelID. Stored embeddings
// are only comparable within one model id; changing models requires a full
// rebuild of the index and memory embeddings (manual, by design).
package embedder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/dgraph-io/ristretto"
)

// ErrUnavailable wraps embedding-service failures after retries are
// exhausted. Callers degrade rather than fail: memory appends store a
// placeholder embedding, corpus indexing aborts only the affected document.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder converts text to a vector embedding.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelID identifies the embedding model and version. All vectors
	// produced under one ModelID are mutually comparable.
	ModelID() string
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty, zero-magnitude, or the dimensions differ.
func Cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float32
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
}

// Normalize scales vec to unit length. The zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// Retrying wraps an Embedder with bounded retry and exponential backoff.
// On exhaustion the last error is wrapped in ErrUnavailable.
type Retrying struct {
	inner    Embedder
	attempts int
	baseWait time.Duration
}

// WithRetry wraps e with up to attempts tries per call.
func WithRetry(e Embedder, attempts int, baseWait time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if baseWait <= 0 {
		baseWait = 200 * time.Millisecond
	}
	return &Retrying{inner: e, attempts: attempts, baseWait: baseWait}
}

func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	wait := r.baseWait
	for attempt := 1; attempt <= r.attempts; attempt++ {
		vec, err := r.inner.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if attempt < r.attempts {
			log.Printf("[EMBED] attempt %d/%d failed: %v", attempt, r.attempts, err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(wait):
			}
			wait *= 2
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (r *Retrying) Dimensions() int { return r.inner.Dimensions() }

func (r *Retrying) ModelID() string { return r.inner.ModelID() }

// Cached wraps an Embedder with a ristretto cache keyed by input text.
// Embeddings are a pure function of text for a fixed model, so cached
// vectors are always valid within one ModelID.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

// WithCache wraps e with an in-process cache holding up to maxEntries
// recently embedded texts.
func WithCache(e Embedder, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cached{inner: e, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}

func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

func (c *Cached) ModelID() string { return c.inner.ModelID() }

// Wait blocks until buffered cache writes are applied.
func (c *Cached) Wait() { c.cache.Wait() }

// Close releases cache resources.
func (c *Cached) Close() { c.cache.Close() }
