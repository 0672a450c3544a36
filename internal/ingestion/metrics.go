package ingestion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics recorded by the pipeline and the job
// manager. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// runsTotal counts pipeline runs by final report status.
	runsTotal *prometheus.CounterVec

	// jobsTotal counts finished jobs by job status.
	jobsTotal *prometheus.CounterVec

	// queueDepth is the number of jobs waiting for the worker.
	queueDepth prometheus.Gauge

	// chunksTotal counts chunks embedded and added.
	chunksTotal prometheus.Counter

	// failedDocumentsTotal counts documents skipped for lack of text.
	failedDocumentsTotal prometheus.Counter

	// batchDuration records embed+add latency per batch.
	batchDuration prometheus.Histogram
}

// NewMetrics registers the ingestion metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpdf",
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by report status.",
		}, []string{"status"}),

		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpdf",
			Subsystem: "ingestion",
			Name:      "jobs_total",
			Help:      "Total number of finished ingestion jobs by status.",
		}, []string{"status"}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragpdf",
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Number of ingestion jobs waiting to run.",
		}),

		chunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragpdf",
			Subsystem: "ingestion",
			Name:      "chunks_total",
			Help:      "Total number of chunks embedded and added to an index.",
		}),

		failedDocumentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragpdf",
			Subsystem: "ingestion",
			Name:      "failed_documents_total",
			Help:      "Total number of documents skipped because they yielded no text.",
		}),

		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragpdf",
			Subsystem: "ingestion",
			Name:      "batch_duration_seconds",
			Help:      "Latency of one embed and add batch.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) observeRun(s Status) {
	if m != nil {
		m.runsTotal.WithLabelValues(string(s)).Inc()
	}
}

func (m *Metrics) observeJob(s JobStatus) {
	if m != nil {
		m.jobsTotal.WithLabelValues(string(s)).Inc()
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) observeChunks(n int) {
	if m != nil {
		m.chunksTotal.Add(float64(n))
	}
}

func (m *Metrics) observeFailedDocument() {
	if m != nil {
		m.failedDocumentsTotal.Inc()
	}
}

func (m *Metrics) observeBatch(d time.Duration) {
	if m != nil {
		m.batchDuration.Observe(d.Seconds())
	}
}
