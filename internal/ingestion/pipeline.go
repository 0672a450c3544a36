// Package ingestion turns uploaded files into searchable index entries.
// The Loader extracts per-page documents, the Pipeline chunks them and
// embeds and adds them in bounded batches, and Jobs runs pipelines in the
// background behind a status handle.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// DefaultBatchSize is the number of chunks embedded and added per batch.
const DefaultBatchSize = 100

// Splitter turns a document into chunks. *chunker.Chunker satisfies it.
type Splitter interface {
	SplitDocument(doc rag.Document) ([]rag.Chunk, error)
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BatchSize is the number of chunks per embed/add batch.
	// Defaults to DefaultBatchSize if zero.
	BatchSize int

	// Metrics is optional.
	Metrics *Metrics
}

// Pipeline orchestrates the chunk, embed, add and persist flow.
type Pipeline struct {
	// splitter chunks each document.
	splitter Splitter
	// embedder converts chunk text into vectors.
	embedder rag.Embedder
	// batchSize bounds each embed/add call.
	batchSize int
	// metrics may be nil.
	metrics *Metrics
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(splitter Splitter, embedder rag.Embedder, cfg *Config) (*Pipeline, error) {
	if splitter == nil {
		return nil, fmt.Errorf("ingestion: splitter must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("ingestion: batch size must be positive, got %d", cfg.BatchSize)
	}
	size := cfg.BatchSize
	if size == 0 {
		size = DefaultBatchSize
	}
	return &Pipeline{splitter: splitter, embedder: embedder, batchSize: size, metrics: cfg.Metrics}, nil
}

// BatchSize returns the effective batch size.
func (p *Pipeline) BatchSize() int { return p.batchSize }

// Progress is called after each committed batch.
type Progress func(done, total int)

// Ingest chunks docs and merges them into idx one batch at a time, in order.
//
// A document that fails to chunk is recorded and skipped. If no chunk is
// produced at all the index is not touched. A failed batch stops the run
// but batches already added stay in the index. Cancelling ctx stops the
// run before the next batch; a batch in flight always completes. The index
// is persisted once every batch has been added, or after a cancellation.
func (p *Pipeline) Ingest(ctx context.Context, idx rag.VectorIndex, docs []rag.Document, progress Progress) Report {
	log := logging.FromContext(ctx)
	report := Report{Documents: len(docs)}

	all, sources := p.split(ctx, docs, &report)
	report.Chunks = len(all)
	report.Sources = sources

	if len(all) == 0 {
		report.Status = StatusNoContent
		report.Error = rag.ErrExtractionFailure.Error()
		log.Warn("ingestion: no content extracted", slog.Int("documents", len(docs)))
		p.metrics.observeRun(report.Status)
		return report
	}

	report.TotalBatches = (len(all) + p.batchSize - 1) / p.batchSize
	// In-flight batches are shielded from cancellation; ctx is only checked
	// between batches.
	batchCtx := context.WithoutCancel(ctx)

	for start := 0; start < len(all); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			report.Status = StatusCanceled
			report.Error = err.Error()
			log.Info("ingestion: canceled between batches",
				slog.Int("batches_done", report.Batches),
				slog.Int("total_batches", report.TotalBatches),
			)
			p.persist(batchCtx, idx, &report)
			p.metrics.observeRun(report.Status)
			return report
		}

		end := min(start+p.batchSize, len(all))
		if status, err := p.addBatch(batchCtx, idx, all[start:end]); err != nil {
			report.Status = status
			report.Error = err.Error()
			log.Error("ingestion: batch failed",
				slog.Int("batch", report.Batches+1),
				slog.Int("total_batches", report.TotalBatches),
				slog.String("status", string(status)),
				slog.String("error", err.Error()),
			)
			p.metrics.observeRun(report.Status)
			return report
		}
		report.Batches++
		if progress != nil {
			progress(report.Batches, report.TotalBatches)
		}
	}

	report.Status = StatusSucceeded
	p.persist(batchCtx, idx, &report)
	p.metrics.observeRun(report.Status)
	log.Info("ingestion: complete",
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("batches", report.Batches),
		slog.Bool("persisted", report.Persisted),
	)
	return report
}

// split chunks every document, recording failures on report and building
// per-source summaries in first-seen order.
func (p *Pipeline) split(ctx context.Context, docs []rag.Document, report *Report) ([]rag.Chunk, []SourceSummary) {
	log := logging.FromContext(ctx)
	var all []rag.Chunk
	var sources []SourceSummary
	pos := make(map[string]int)

	for _, doc := range docs {
		chunks, err := p.splitter.SplitDocument(doc)
		if err == nil && len(chunks) == 0 {
			err = fmt.Errorf("ingestion: %s page %d: %w", doc.Source, doc.Page, rag.ErrExtractionFailure)
		}
		if err != nil {
			page := doc.Page
			report.FailedDocuments = append(report.FailedDocuments, DocumentFailure{
				Source: doc.Source,
				Page:   &page,
				Error:  err.Error(),
			})
			p.metrics.observeFailedDocument()
			log.Warn("ingestion: document skipped",
				slog.String("source", doc.Source),
				slog.Int("page", doc.Page),
				slog.String("error", err.Error()),
			)
			continue
		}

		i, ok := pos[doc.Source]
		if !ok {
			i = len(sources)
			pos[doc.Source] = i
			sources = append(sources, SourceSummary{Source: doc.Source})
		}
		sources[i].Pages++
		sources[i].Chunks += len(chunks)
		all = append(all, chunks...)
	}
	return all, sources
}

// addBatch embeds and adds one batch, returning the report status to use
// on failure.
func (p *Pipeline) addBatch(ctx context.Context, idx rag.VectorIndex, batch []rag.Chunk) (Status, error) {
	start := time.Now()
	defer func() { p.metrics.observeBatch(time.Since(start)) }()

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return StatusEmbeddingFailed, rag.EmbeddingError(err)
	}
	if len(vectors) != len(batch) {
		return StatusEmbeddingFailed, rag.EmbeddingError(
			fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(vectors), len(batch)))
	}

	if err := idx.Add(ctx, batch, vectors); err != nil {
		return StatusIndexFailed, fmt.Errorf("ingestion: add batch: %w", err)
	}
	p.metrics.observeChunks(len(batch))
	return "", nil
}

// persist writes the index snapshot and records the outcome on report.
// A failure downgrades a succeeded run to StatusPersistFailed.
func (p *Pipeline) persist(ctx context.Context, idx rag.VectorIndex, report *Report) {
	if err := idx.Persist(ctx); err != nil {
		logging.FromContext(ctx).Error("ingestion: persist failed", slog.String("error", err.Error()))
		if report.Status == StatusSucceeded {
			report.Status = StatusPersistFailed
			report.Error = err.Error()
		} else if report.Error != "" {
			report.Error = errors.Join(errors.New(report.Error), err).Error()
		}
		return
	}
	report.Persisted = true
}
