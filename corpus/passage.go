// Package corpus indexes the static knowledge corpus for semantic retrieval.
//
// Raw documents live under a materials root with one subdirectory per
// source category (books, transcripts, seminars). Documents are chunked,
// embedded, and stored as immutable Passages. The live index is an
// immutable snapshot behind an atomic pointer: rebuilds construct a fresh
// snapshot and publish it in one swap, so readers never observe a
// partially rebuilt index.
package corpus

import "strings"

// Category classifies where a corpus document came from.
type Category string

const (
	CategoryBook       Category = "book"
	CategoryTranscript Category = "transcript"
	CategorySeminar    Category = "seminar"
)

// ParseCategory maps a materials subdirectory name to a Category.
// Unknown directories default to CategoryBook.
func ParseCategory(dir string) Category {
	switch strings.ToLower(strings.TrimSuffix(dir, "s")) {
	case "transcript":
		return CategoryTranscript
	case "seminar":
		return CategorySeminar
	default:
		return CategoryBook
	}
}

// Passage is one indexed, embedded chunk of corpus text. Immutable once
// indexed; the whole set for a source document is replaced on re-index.
type Passage struct {
	ID             string
	SourceDocument string
	SourceCategory Category
	Text           string
	Embedding      []float32
	ChunkIndex     int
}

// Result is a Passage scored against a query embedding.
type Result struct {
	Passage
	Similarity float32
}
