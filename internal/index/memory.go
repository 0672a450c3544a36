// Package index provides the vector index backends behind rag.VectorIndex:
// an exact in-process L2 index persisted as a versioned snapshot file, a
// Qdrant-backed index, and a Registry that owns one index per namespace.
package index

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// entry is one stored (chunk, vector) pair.
type entry struct {
	// chunk is the stored passage and its provenance.
	chunk rag.Chunk
	// vector is the embedding of chunk.Text. Never mutated after commit.
	vector []float32
}

// Memory is an append-only, exact nearest-neighbour index held in process
// memory. Add calls are serialised; Search runs concurrently with Add and
// sees every batch either fully or not at all.
type Memory struct {
	// writeMu serialises Add so at most one batch is validated and committed
	// at a time.
	writeMu sync.Mutex

	// mu guards entries and dim. Writers hold it only for the final append.
	mu sync.RWMutex

	// entries is the ordered set of committed pairs. Elements below len are
	// never modified, so a copied slice header is a stable snapshot.
	entries []entry

	// dim is the established vector dimension, 0 until the first Add.
	dim int

	// path is the snapshot file written by Persist. Empty disables Persist.
	path string
}

// NewMemory returns an empty index that persists to path. An empty path
// yields a purely in-memory index whose Persist is a no-op.
func NewMemory(path string) *Memory {
	return &Memory{path: path}
}

// Add validates and appends the pairs. The first non-empty Add fixes the
// index dimension; later vectors of any other length are rejected with
// rag.ErrDimensionMismatch and nothing from that call is stored.
func (m *Memory) Add(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("index: add: %w: %d chunks but %d vectors", rag.ErrInvalidArgument, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("index: add: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	dim := m.dim
	m.mu.RUnlock()

	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return fmt.Errorf("index: add: %w: empty vector", rag.ErrDimensionMismatch)
	}

	batch := make([]entry, len(chunks))
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("index: add: %w: vector %d has dimension %d, index has %d", rag.ErrDimensionMismatch, i, len(v), dim)
		}
		if !finite(v) {
			return fmt.Errorf("index: add: %w: vector %d contains NaN or Inf", rag.ErrInvalidArgument, i)
		}
		batch[i] = entry{chunk: chunks[i], vector: slices.Clone(v)}
	}

	m.mu.Lock()
	m.entries = append(m.entries, batch...)
	m.dim = dim
	m.mu.Unlock()

	return nil
}

// scored is an entry position with its distance to the query.
type scored struct {
	pos  int
	dist float64
}

// Search returns up to k entries ordered by ascending Euclidean distance to
// query. Equal distances keep insertion order.
func (m *Memory) Search(ctx context.Context, query []float32, k int) ([]rag.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: search: %w: k must be positive, got %d", rag.ErrInvalidArgument, k)
	}

	entries, dim := m.snapshot()
	if len(entries) == 0 {
		return nil, fmt.Errorf("index: search: %w", rag.ErrEmptyIndex)
	}
	if len(query) != dim {
		return nil, fmt.Errorf("index: search: %w: query has dimension %d, index has %d", rag.ErrDimensionMismatch, len(query), dim)
	}

	hits := make([]scored, len(entries))
	for i, e := range entries {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("index: search: %w", err)
			}
		}
		hits[i] = scored{pos: i, dist: l2(query, e.vector)}
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		return cmp.Compare(a.dist, b.dist)
	})

	n := min(k, len(hits))
	results := make([]rag.RetrievalResult, n)
	for i := range n {
		results[i] = rag.RetrievalResult{
			Chunk: entries[hits[i].pos].chunk,
			Score: hits[i].dist,
		}
	}
	return results, nil
}

// Count returns the number of committed entries.
func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Dimension returns the established vector dimension.
func (m *Memory) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim
}

// Persist writes the committed entries to the index's snapshot path.
func (m *Memory) Persist(ctx context.Context) error {
	if m.path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("index: persist: %w", err)
	}
	return m.PersistTo(m.path)
}

// snapshot returns the committed entries and dimension without copying the
// entries themselves.
func (m *Memory) snapshot() ([]entry, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[:len(m.entries):len(m.entries)], m.dim
}

// l2 returns the Euclidean distance between a and b, accumulated in float64.
func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// finite reports whether every component of v is a finite number.
func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
