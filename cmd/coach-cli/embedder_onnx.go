//go:build onnx

package main

import (
	"os"

	"github.com/mentorstack/coach-go-sdk/embedder"
	"github.com/mentorstack/coach-go-sdk/embedder/onnx"
)

func newEmbedder() (embedder.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:     os.Getenv("COACH_ONNX_MODEL"),
		TokenizerPath: os.Getenv("COACH_ONNX_TOKENIZER"),
	})
}
