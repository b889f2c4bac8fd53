// Package chunk splits raw corpus documents into overlapping passages
// sized for embedding.
//
// Chunking is a pure transformation: no I/O, no state. Chunks prefer to
// end on a sentence boundary near the target size, carry a configurable
// overlap into the next chunk, and fall back to a hard cut only when no
// boundary exists within tolerance.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Config controls chunk sizing.
type Config struct {
	// TargetSize is the preferred chunk length in characters.
	TargetSize int

	// Overlap is how many trailing characters of a chunk are repeated at
	// the start of the next one, preserving cross-boundary context.
	Overlap int

	// Tolerance is how far before TargetSize a sentence boundary may sit
	// and still be chosen over a hard cut.
	Tolerance int
}

// DefaultConfig matches a few paragraphs of spoken-word material per chunk.
var DefaultConfig = Config{
	TargetSize: 800,
	Overlap:    120,
	Tolerance:  240,
}

// Chunker produces overlapping text chunks from raw documents.
type Chunker struct {
	cfg Config
}

// New creates a Chunker. A zero or partial config is filled from DefaultConfig.
func New(cfg Config) *Chunker {
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = DefaultConfig.TargetSize
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.TargetSize {
		cfg.Overlap = cfg.TargetSize / 4
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultConfig.Tolerance
	}
	return &Chunker{cfg: cfg}
}

// Split breaks text into chunks. Empty or whitespace-only input yields nil.
// Calling Split again on the same input yields the same chunks.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	pos := 0
	for pos < len(text) {
		remaining := len(text) - pos
		if remaining <= c.cfg.TargetSize {
			chunk := strings.TrimSpace(text[pos:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		end := pos + c.cfg.TargetSize
		if cut := lastSentenceEnd(text[pos:end]); cut > 0 && c.cfg.TargetSize-cut <= c.cfg.Tolerance {
			end = pos + cut
		}
		// Offsets are bytes; a hard cut may land inside a multi-byte rune.
		end = runeBoundaryBefore(text, end, pos)

		chunk := strings.TrimSpace(text[pos:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := runeBoundaryBefore(text, end-c.cfg.Overlap, pos)
		if next <= pos {
			next = end // overlap would stall, advance hard
		}
		pos = next
	}
	return chunks
}

// runeBoundaryBefore backs i off to the nearest rune start at or before
// it, never moving past floor.
func runeBoundaryBefore(s string, i, floor int) int {
	for i > floor && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// lastSentenceEnd returns the index just past the last sentence terminator
// in s, or 0 if there is none.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			// Treat as a boundary only when followed by whitespace or EOL,
			// so "3.5" or "Mr." mid-sentence is less likely to split.
			if i == len(s)-1 || s[i+1] == ' ' || s[i+1] == '\n' || s[i+1] == '\t' {
				return i + 1
			}
		case '\n':
			if i > 0 && s[i-1] == '\n' {
				return i + 1 // paragraph break
			}
		}
	}
	return 0
}
