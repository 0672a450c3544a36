package index

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// DefaultNamespace is used when a caller does not select one.
const DefaultNamespace = "default"

// namespacePattern restricts namespaces to names that are safe as file and
// collection names.
var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateNamespace returns rag.ErrInvalidArgument for names that do not
// match [A-Za-z0-9_-]{1,64}.
func ValidateNamespace(namespace string) error {
	if !namespacePattern.MatchString(namespace) {
		return fmt.Errorf("index: %w: namespace %q must match %s", rag.ErrInvalidArgument, namespace, namespacePattern)
	}
	return nil
}

// Backend opens and resets the index for a namespace.
type Backend interface {
	// Open returns the index for namespace, loading any persisted state.
	Open(ctx context.Context, namespace string) (rag.VectorIndex, error)

	// Reset discards all persisted state for namespace.
	Reset(ctx context.Context, namespace string) error

	// Name returns a short label for logs ("memory", "qdrant").
	Name() string
}

// MemoryBackend keeps each namespace in a Memory index persisted as
// "<Dir>/<namespace>.idx".
type MemoryBackend struct {
	// Dir is the directory holding the snapshot files.
	Dir string
}

// SnapshotPath returns the snapshot file for namespace.
func (b *MemoryBackend) SnapshotPath(namespace string) string {
	return filepath.Join(b.Dir, namespace+".idx")
}

// Open loads the namespace snapshot, falling back to an empty index.
func (b *MemoryBackend) Open(ctx context.Context, namespace string) (rag.VectorIndex, error) {
	return Open(ctx, b.SnapshotPath(namespace))
}

// Reset removes the namespace snapshot.
func (b *MemoryBackend) Reset(_ context.Context, namespace string) error {
	return Remove(b.SnapshotPath(namespace))
}

// Name returns "memory".
func (b *MemoryBackend) Name() string { return "memory" }

// QdrantBackend stores each namespace in the collection
// "<CollectionPrefix>-<namespace>".
type QdrantBackend struct {
	// Client is the shared Qdrant client.
	Client *qdrant.Client

	// CollectionPrefix is prepended to every collection name.
	CollectionPrefix string
}

// Collection returns the collection name for namespace.
func (b *QdrantBackend) Collection(namespace string) string {
	return b.CollectionPrefix + "-" + namespace
}

// Open binds a Qdrant index to the namespace collection.
func (b *QdrantBackend) Open(ctx context.Context, namespace string) (rag.VectorIndex, error) {
	return OpenQdrant(ctx, b.Client, b.Collection(namespace))
}

// Reset deletes the namespace collection.
func (b *QdrantBackend) Reset(ctx context.Context, namespace string) error {
	q := &Qdrant{client: b.Client, collection: b.Collection(namespace)}
	return q.Drop(ctx)
}

// Name returns "qdrant".
func (b *QdrantBackend) Name() string { return "qdrant" }

// Registry owns one index instance per namespace. Indexes are opened lazily
// on first use and shared by every later caller for the same namespace.
type Registry struct {
	// backend opens and resets indexes.
	backend Backend

	// metrics instruments every index handed out. May be nil.
	metrics *Metrics

	// mu guards indexes.
	mu sync.Mutex

	// indexes caches opened indexes by namespace.
	indexes map[string]rag.VectorIndex

	// opening collapses concurrent first opens of the same namespace.
	opening singleflight.Group
}

// NewRegistry constructs a Registry over backend. metrics may be nil.
func NewRegistry(backend Backend, metrics *Metrics) *Registry {
	return &Registry{
		backend: backend,
		metrics: metrics,
		indexes: make(map[string]rag.VectorIndex),
	}
}

// Backend returns the label of the configured backend.
func (r *Registry) Backend() string { return r.backend.Name() }

// Get returns the index for namespace, opening it on first use. Writers use
// Get: the index is retained so later Adds and PersistAll see it.
func (r *Registry) Get(ctx context.Context, namespace string) (rag.VectorIndex, error) {
	return r.open(ctx, namespace, true)
}

// Lookup returns the index for namespace for reading. A namespace that has
// nothing indexed is opened but not retained, so queries naming arbitrary
// namespaces do not grow the registry.
func (r *Registry) Lookup(ctx context.Context, namespace string) (rag.VectorIndex, error) {
	return r.open(ctx, namespace, false)
}

func (r *Registry) open(ctx context.Context, namespace string, retainEmpty bool) (rag.VectorIndex, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if idx, ok := r.cached(namespace); ok {
		return idx, nil
	}

	// Readers and writers fly separately so a reader's unretained index is
	// never handed to a writer.
	key := "r/" + namespace
	if retainEmpty {
		key = "w/" + namespace
	}
	v, err, _ := r.opening.Do(key, func() (any, error) {
		if idx, ok := r.cached(namespace); ok {
			return idx, nil
		}
		opened, err := r.backend.Open(ctx, namespace)
		if err != nil {
			return nil, fmt.Errorf("index: open namespace %q: %w", namespace, err)
		}
		if !retainEmpty {
			n, err := opened.Count(ctx)
			if err != nil {
				return nil, fmt.Errorf("index: open namespace %q: %w", namespace, err)
			}
			if n == 0 {
				// Unretained indexes stay uninstrumented: their namespace
				// label would be unbounded.
				return opened, nil
			}
		}
		return r.retain(namespace, instrument(ctx, opened, namespace, r.metrics)), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(rag.VectorIndex), nil
}

func (r *Registry) cached(namespace string) (rag.VectorIndex, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.indexes[namespace]
	return idx, ok
}

// retain caches idx unless another open got there first, and returns the
// cached instance.
func (r *Registry) retain(namespace string, idx rag.VectorIndex) rag.VectorIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.indexes[namespace]; ok {
		return existing
	}
	r.indexes[namespace] = idx
	return idx
}

// Namespaces returns the namespaces opened so far, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.indexes))
	for ns := range r.indexes {
		names = append(names, ns)
	}
	slices.Sort(names)
	return names
}

// Reset drops the cached index for namespace and discards its persisted
// state. The next Get starts from an empty index.
func (r *Registry) Reset(ctx context.Context, namespace string) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.indexes, namespace)
	r.mu.Unlock()

	if err := r.backend.Reset(ctx, namespace); err != nil {
		return fmt.Errorf("index: reset namespace %q: %w", namespace, err)
	}
	return nil
}

// PersistAll persists every opened index and returns the first error.
func (r *Registry) PersistAll(ctx context.Context) error {
	r.mu.Lock()
	indexes := make(map[string]rag.VectorIndex, len(r.indexes))
	for ns, idx := range r.indexes {
		indexes[ns] = idx
	}
	r.mu.Unlock()

	for ns, idx := range indexes {
		if err := idx.Persist(ctx); err != nil {
			return fmt.Errorf("index: persist namespace %q: %w", ns, err)
		}
	}
	return nil
}
