package index

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// countingBackend is a Backend that hands out in-memory indexes and counts
// Open calls.
type countingBackend struct {
	// opens counts calls to Open.
	opens atomic.Int32
	// resets records namespaces passed to Reset.
	resets []string
}

func (b *countingBackend) Open(context.Context, string) (rag.VectorIndex, error) {
	b.opens.Add(1)
	return NewMemory(""), nil
}

func (b *countingBackend) Reset(_ context.Context, ns string) error {
	b.resets = append(b.resets, ns)
	return nil
}

func (b *countingBackend) Name() string { return "counting" }

func TestValidateNamespace(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"default", "team-a", "A_1"} {
		if err := ValidateNamespace(ok); err != nil {
			t.Errorf("%q: unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"", "../etc", "has space", "a/b"} {
		if err := ValidateNamespace(bad); !errors.Is(err, rag.ErrInvalidArgument) {
			t.Errorf("%q: want ErrInvalidArgument, got %v", bad, err)
		}
	}
}

func TestRegistry_IsolatesNamespaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewRegistry(&countingBackend{}, nil)

	a, err := r.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get a: %v", err)
	}
	b, err := r.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get b: %v", err)
	}
	if err := a.Add(ctx, chunks("a", 2), lineVectors(0, 2)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if n, _ := b.Count(ctx); n != 0 {
		t.Errorf("namespace b sees %d entries from namespace a", n)
	}
	if _, err := b.Search(ctx, []float32{0, 0}, 1); !errors.Is(err, rag.ErrEmptyIndex) {
		t.Errorf("want ErrEmptyIndex for b, got %v", err)
	}

	again, _ := r.Get(ctx, "a")
	if n, _ := again.Count(ctx); n != 2 {
		t.Errorf("Get must return the same instance: want 2 entries, got %d", n)
	}
	if got := r.Namespaces(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Namespaces: want [a b], got %v", got)
	}
}

func TestRegistry_ConcurrentGetOpensOnce(t *testing.T) {
	t.Parallel()
	backend := &countingBackend{}
	r := NewRegistry(backend, nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Get(context.Background(), "shared"); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := backend.opens.Load(); n != 1 {
		t.Errorf("want 1 open, got %d", n)
	}
}

func TestRegistry_LookupDoesNotRetainEmptyNamespaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := &countingBackend{}
	r := NewRegistry(backend, nil)

	for _, ns := range []string{"never-ingested", "typo1", "typo2"} {
		idx, err := r.Lookup(ctx, ns)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", ns, err)
		}
		if _, err := idx.Search(ctx, []float32{0, 1}, 3); !errors.Is(err, rag.ErrEmptyIndex) {
			t.Errorf("Lookup(%s): want ErrEmptyIndex, got %v", ns, err)
		}
	}
	if got := r.Namespaces(); len(got) != 0 {
		t.Errorf("empty lookups should not be retained, got %v", got)
	}

	w, _ := r.Get(ctx, "books")
	_ = w.Add(ctx, chunks("b", 1), lineVectors(0, 1))
	got, err := r.Lookup(ctx, "books")
	if err != nil {
		t.Fatalf("Lookup(books): %v", err)
	}
	if got != w {
		t.Error("Lookup should return the index a writer retained")
	}
	if n := backend.opens.Load(); n != 4 {
		t.Errorf("want 4 opens (3 lookups + 1 get), got %d", n)
	}
}

func TestRegistry_LookupRetainsPersistedNamespace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	backend := &MemoryBackend{Dir: dir}

	seeded := NewRegistry(backend, nil)
	idx, _ := seeded.Get(ctx, "books")
	_ = idx.Add(ctx, chunks("b", 2), lineVectors(0, 2))
	if err := seeded.PersistAll(ctx); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(backend, nil)
	if _, err := r.Lookup(ctx, "books"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := r.Lookup(ctx, "ghost"); err != nil {
		t.Fatalf("Lookup(ghost): %v", err)
	}
	if got := r.Namespaces(); len(got) != 1 || got[0] != "books" {
		t.Errorf("want only the persisted namespace retained, got %v", got)
	}
	if _, err := os.Stat(lockPath(backend.SnapshotPath("ghost"))); !os.IsNotExist(err) {
		t.Errorf("lookup of an unknown namespace left a lock file, stat err = %v", err)
	}
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := &countingBackend{}
	r := NewRegistry(backend, nil)

	idx, _ := r.Get(ctx, "ns")
	_ = idx.Add(ctx, chunks("x", 1), lineVectors(0, 1))

	if err := r.Reset(ctx, "ns"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(backend.resets) != 1 || backend.resets[0] != "ns" {
		t.Errorf("backend reset not called: %v", backend.resets)
	}

	fresh, _ := r.Get(ctx, "ns")
	if n, _ := fresh.Count(ctx); n != 0 {
		t.Errorf("want empty index after reset, got %d", n)
	}
}

func TestRegistry_InvalidNamespace(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(&countingBackend{}, nil).Get(context.Background(), "../x"); !errors.Is(err, rag.ErrInvalidArgument) {
		t.Errorf("want ErrInvalidArgument, got %v", err)
	}
}

func TestRegistry_Metrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := NewRegistry(&countingBackend{}, m)

	idx, _ := r.Get(ctx, "metered")
	if err := idx.Add(ctx, chunks("m", 4), lineVectors(0, 4)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := idx.Search(ctx, []float32{0, 0}, 2); err != nil {
		t.Fatalf("Search: %v", err)
	}

	if got := testutil.ToFloat64(m.entries.WithLabelValues("metered")); got != 4 {
		t.Errorf("entries gauge: want 4, got %v", got)
	}
	if got := testutil.ToFloat64(m.addedTotal.WithLabelValues("metered")); got != 4 {
		t.Errorf("added counter: want 4, got %v", got)
	}
	if n := testutil.CollectAndCount(m.searchDuration); n != 1 {
		t.Errorf("want 1 search histogram series, got %d", n)
	}
}

func TestMemoryBackend_PersistsPerNamespace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := &MemoryBackend{Dir: t.TempDir()}
	r := NewRegistry(backend, nil)

	idx, err := r.Get(ctx, "books")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_ = idx.Add(ctx, chunks("b", 2), lineVectors(0, 2))
	if err := r.PersistAll(ctx); err != nil {
		t.Fatalf("PersistAll: %v", err)
	}

	if _, err := os.Stat(backend.SnapshotPath("books")); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	reopened, err := NewRegistry(backend, nil).Get(ctx, "books")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if n, _ := reopened.Count(ctx); n != 2 {
		t.Errorf("want 2 entries after reopen, got %d", n)
	}

	if err := r.Reset(ctx, "books"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(backend.SnapshotPath("books")); !os.IsNotExist(err) {
		t.Errorf("snapshot should be removed after reset, stat err = %v", err)
	}
}
