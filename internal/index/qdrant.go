package index

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// Payload keys stored with every Qdrant point.
const (
	payloadText   = "text"
	payloadSource = "source"
	payloadPage   = "page"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// NewQdrantClient creates a Qdrant gRPC client from cfg, applying defaults.
func NewQdrantClient(cfg QdrantConfig) (*qdrant.Client, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return client, nil
}

// Qdrant is a rag.VectorIndex stored in one Qdrant collection using
// Euclidean distance. Points receive sequential numeric IDs so that equal
// distances can be ordered by insertion. Qdrant persists on its own, so
// Persist is a no-op.
type Qdrant struct {
	// client is the shared Qdrant gRPC client.
	client *qdrant.Client

	// collection is the collection backing this index.
	collection string

	// writeMu serialises Add and guards collection creation.
	writeMu sync.Mutex

	// mu guards next and dim.
	mu sync.RWMutex

	// next is the ID assigned to the next point; equal to the point count.
	next uint64

	// dim is the collection vector size, 0 until the collection exists.
	dim int
}

// OpenQdrant binds an index to collection. An existing collection supplies
// the dimension and point count; a missing one is created on the first Add.
func OpenQdrant(ctx context.Context, client *qdrant.Client, collection string) (*Qdrant, error) {
	q := &Qdrant{client: client, collection: collection}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return q, nil
	}

	info, err := client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to read collection %q: %w", collection, err)
	}
	q.dim = int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()) //nolint:gosec // dimensions are bounded

	count, err := client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to count points in %q: %w", collection, err)
	}
	q.next = count
	return q, nil
}

// ensureCollection creates the collection with the given vector size.
// Callers must hold writeMu.
func (q *Qdrant) ensureCollection(ctx context.Context, dim int) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim), //nolint:gosec // dimensions are bounded
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.collection, err)
	}
	return nil
}

// Add upserts the pairs as new points and waits for Qdrant to apply them.
func (q *Qdrant) Add(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("qdrant: add: %w: %d chunks but %d vectors", rag.ErrInvalidArgument, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	q.mu.RLock()
	dim, next := q.dim, q.next
	q.mu.RUnlock()

	created := false
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return fmt.Errorf("qdrant: add: %w: empty vector", rag.ErrDimensionMismatch)
		}
		created = true
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != dim {
			return fmt.Errorf("qdrant: add: %w: vector %d has dimension %d, index has %d", rag.ErrDimensionMismatch, i, len(vectors[i]), dim)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(next + uint64(i)), //nolint:gosec // i is non-negative
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadText:   c.Text,
				payloadSource: c.Source,
				payloadPage:   int64(c.Page),
			}),
		}
	}

	if created {
		if err := q.ensureCollection(ctx, dim); err != nil {
			return err
		}
		q.mu.Lock()
		q.dim = dim
		q.mu.Unlock()
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	q.mu.Lock()
	q.dim = dim
	q.next = next + uint64(len(points))
	q.mu.Unlock()
	return nil
}

// Search queries the collection and returns results ordered by ascending
// distance, then ascending point ID.
func (q *Qdrant) Search(ctx context.Context, query []float32, k int) ([]rag.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("qdrant: search: %w: k must be positive, got %d", rag.ErrInvalidArgument, k)
	}

	q.mu.RLock()
	dim, count := q.dim, q.next
	q.mu.RUnlock()

	if count == 0 {
		return nil, fmt.Errorf("qdrant: search: %w", rag.ErrEmptyIndex)
	}
	if len(query) != dim {
		return nil, fmt.Errorf("qdrant: search: %w: query has dimension %d, index has %d", rag.ErrDimensionMismatch, len(query), dim)
	}

	limit := uint64(k)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	slices.SortStableFunc(points, func(a, b *qdrant.ScoredPoint) int {
		if c := cmp.Compare(a.GetScore(), b.GetScore()); c != 0 {
			return c
		}
		return cmp.Compare(a.GetId().GetNum(), b.GetId().GetNum())
	})

	results := make([]rag.RetrievalResult, 0, len(points))
	for _, p := range points {
		results = append(results, rag.RetrievalResult{
			Chunk: chunkFromPayload(p.GetPayload()),
			Score: float64(p.GetScore()),
		})
	}
	return results, nil
}

// Count returns the number of points written through this index.
func (q *Qdrant) Count(context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return int(q.next), nil //nolint:gosec // point counts fit in int
}

// Dimension returns the collection vector size.
func (q *Qdrant) Dimension() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.dim
}

// Persist is a no-op; Qdrant stores points durably on upsert.
func (q *Qdrant) Persist(context.Context) error { return nil }

// Drop deletes the backing collection.
func (q *Qdrant) Drop(ctx context.Context) error {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("qdrant: failed to delete collection %q: %w", q.collection, err)
		}
	}

	q.mu.Lock()
	q.dim, q.next = 0, 0
	q.mu.Unlock()
	return nil
}

// chunkFromPayload rebuilds a rag.Chunk from a point payload.
func chunkFromPayload(p map[string]*qdrant.Value) rag.Chunk {
	var c rag.Chunk
	if v, ok := p[payloadText]; ok {
		c.Text = v.GetStringValue()
	}
	if v, ok := p[payloadSource]; ok {
		c.Source = v.GetStringValue()
	}
	if v, ok := p[payloadPage]; ok {
		c.Page = int(v.GetIntegerValue())
	}
	return c
}
