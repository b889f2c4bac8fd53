//go:build !onnx

package main

import (
	"log"

	"github.com/mentorstack/coach-go-sdk/embedder"
	"github.com/mentorstack/coach-go-sdk/embedder/mock"
)

// Without the onnx build tag the CLI runs on the deterministic hash
// embedder. Retrieval quality is word-overlap only; build with -tags
// onnx and set COACH_ONNX_MODEL for real embeddings.
func newEmbedder() (embedder.Embedder, error) {
	log.Println("[EMBED] using mock embedder (build with -tags onnx for all-MiniLM-L6-v2)")
	return mock.New(), nil
}
