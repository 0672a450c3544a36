package rag

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// Retriever combines an Embedder and a VectorIndex. It embeds the query at
// retrieval time and returns results in ascending distance order regardless
// of the order the index reports them in.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// index performs the nearest-neighbour search.
	index VectorIndex
}

// NewRetriever constructs a Retriever from the given Embedder and VectorIndex.
func NewRetriever(embedder Embedder, index VectorIndex) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	return &Retriever{embedder: embedder, index: index}, nil
}

// Retrieve embeds query and returns up to k results ordered by ascending
// score. Entries with identical provenance and text are collapsed to their
// best-scoring occurrence. Returns ErrEmptyIndex when nothing is indexed.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("rag: retrieve: %w: k must be positive, got %d", ErrInvalidArgument, k)
	}

	vector, err := EmbedText(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}

	results, err := r.index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return orderResults(results), nil
}

// orderResults stable-sorts results by ascending score and drops repeated
// (source, page, text) entries after their first occurrence.
func orderResults(results []RetrievalResult) []RetrievalResult {
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b RetrievalResult) int {
		return cmp.Compare(a.Score, b.Score)
	})

	seen := make(map[Chunk]struct{}, len(sorted))
	out := sorted[:0]
	for _, res := range sorted {
		if _, dup := seen[res.Chunk]; dup {
			continue
		}
		seen[res.Chunk] = struct{}{}
		out = append(out, res)
	}
	return out
}
