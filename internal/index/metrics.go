package index

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// Metrics holds the Prometheus metrics recorded for every index the
// Registry hands out.
type Metrics struct {
	// entries is the number of stored entries, per namespace.
	entries *prometheus.GaugeVec

	// searchDuration records Search latency, per namespace.
	searchDuration *prometheus.HistogramVec

	// addedTotal counts entries appended, per namespace.
	addedTotal *prometheus.CounterVec
}

// NewMetrics registers the index metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		entries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ragpdf",
			Subsystem: "index",
			Name:      "entries",
			Help:      "Number of chunks stored in the vector index.",
		}, []string{"namespace"}),

		searchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragpdf",
			Subsystem: "index",
			Name:      "search_duration_seconds",
			Help:      "Latency of nearest-neighbour searches.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"namespace"}),

		addedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpdf",
			Subsystem: "index",
			Name:      "added_total",
			Help:      "Total number of chunks appended to the vector index.",
		}, []string{"namespace"}),
	}
}

// instrumented decorates a rag.VectorIndex with metrics for one namespace.
type instrumented struct {
	rag.VectorIndex

	// namespace labels every observation.
	namespace string

	// m is the shared metric set.
	m *Metrics
}

// instrument wraps idx, seeding the entry gauge from its current count.
// A nil m returns idx unchanged.
func instrument(ctx context.Context, idx rag.VectorIndex, namespace string, m *Metrics) rag.VectorIndex {
	if m == nil {
		return idx
	}
	if n, err := idx.Count(ctx); err == nil {
		m.entries.WithLabelValues(namespace).Set(float64(n))
	}
	return &instrumented{VectorIndex: idx, namespace: namespace, m: m}
}

func (i *instrumented) Add(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if err := i.VectorIndex.Add(ctx, chunks, vectors); err != nil {
		return err
	}
	i.m.addedTotal.WithLabelValues(i.namespace).Add(float64(len(chunks)))
	if n, err := i.VectorIndex.Count(ctx); err == nil {
		i.m.entries.WithLabelValues(i.namespace).Set(float64(n))
	}
	return nil
}

func (i *instrumented) Search(ctx context.Context, query []float32, k int) ([]rag.RetrievalResult, error) {
	start := time.Now()
	defer func() {
		i.m.searchDuration.WithLabelValues(i.namespace).Observe(time.Since(start).Seconds())
	}()
	return i.VectorIndex.Search(ctx, query, k)
}
