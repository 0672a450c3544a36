// Package rag defines the domain types and collaborator interfaces of the
// retrieval engine: documents, chunks, retrieval results and citations, plus
// the Embedder, Generator and VectorIndex contracts that concrete backends
// satisfy, along with the Retriever and the citation Resolver.
package rag

import (
	"context"
	"fmt"
)

// Document is a unit of extracted text from an ingested file. PDF files yield
// one Document per page; plain-text files yield a single Document at page 0.
type Document struct {
	// Source is the base filename the text was extracted from.
	Source string

	// Page is the zero-based page index within Source.
	Page int

	// Text is the raw extracted text of the page.
	Text string
}

// Chunk is a bounded span of text with its provenance. It is the unit of
// embedding, storage and retrieval.
type Chunk struct {
	// Text is the chunk content.
	Text string `json:"text"`

	// Source is the base filename of the originating document.
	Source string `json:"source"`

	// Page is the zero-based page index of the originating document.
	Page int `json:"page"`
}

// RetrievalResult pairs a stored Chunk with its L2 distance to a query.
// Lower scores are closer matches.
type RetrievalResult struct {
	// Chunk is the matched passage.
	Chunk Chunk `json:"chunk"`

	// Score is the Euclidean distance between the query and the chunk vector.
	Score float64 `json:"score"`
}

// Citation is a retrieved passage that the generated answer was found to
// reference, annotated with its printed page number.
type Citation struct {
	// Source is the base filename of the cited document.
	Source string `json:"source"`

	// Page is the raw zero-based page index stored in the index.
	Page int `json:"page"`

	// PrintedPage is Page + 1 adjusted by the per-source page offset.
	PrintedPage int `json:"printed_page"`

	// Score is the L2 distance of the passage to the query.
	Score float64 `json:"score"`

	// Text is the full passage text.
	Text string `json:"text"`

	// Excerpt is a whitespace-collapsed, length-capped preview of Text.
	Excerpt string `json:"excerpt"`
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines and must
// return vectors of the same dimension for a given model identity.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer for a fully assembled prompt. The call is
// synchronous and returns the complete answer text.
type Generator interface {
	// Generate returns the model's answer to prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// VectorIndex is an append-only nearest-neighbour store over chunk vectors.
// Implementations must allow concurrent Search calls during an Add; readers
// observe either none or all of a committed Add.
type VectorIndex interface {
	// Add appends chunks with their parallel vectors. Empty input is a no-op.
	// Returns ErrDimensionMismatch when a vector disagrees with the index
	// dimension.
	Add(ctx context.Context, chunks []Chunk, vectors [][]float32) error

	// Search returns up to k entries ordered by ascending L2 distance, ties
	// broken by insertion order. Returns ErrEmptyIndex when nothing is stored.
	Search(ctx context.Context, query []float32, k int) ([]RetrievalResult, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Dimension returns the established vector dimension, or 0 when the index
	// has not yet received its first vector.
	Dimension() int

	// Persist writes the index to durable storage.
	Persist(ctx context.Context) error
}

// EmbedText embeds a single text through e and returns its vector.
func EmbedText(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, EmbeddingError(err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", ErrEmbeddingFailure, len(vectors))
	}
	return vectors[0], nil
}
