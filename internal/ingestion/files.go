package ingestion

import (
	"context"
	"log/slog"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// IngestFiles loads every file and ingests the resulting documents into idx.
// Files that fail to load are reported individually; the rest continue.
// The report's Documents count includes failed files as one document each.
func (p *Pipeline) IngestFiles(ctx context.Context, idx rag.VectorIndex, files []File, progress Progress) Report {
	log := logging.FromContext(ctx)

	var docs []rag.Document
	var failures []DocumentFailure
	sizes := make(map[string]int64, len(files))

	for _, f := range files {
		loaded, err := Load(f)
		if err != nil {
			failures = append(failures, DocumentFailure{Source: SourceName(f.Name), Error: err.Error()})
			p.metrics.observeFailedDocument()
			log.Warn("ingestion: file skipped",
				slog.String("file", f.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		sizes[SourceName(f.Name)] += int64(len(f.Data))
		docs = append(docs, loaded...)
	}

	report := p.Ingest(ctx, idx, docs, progress)
	report.Documents += len(failures)
	report.FailedDocuments = append(failures, report.FailedDocuments...)
	for i := range report.Sources {
		report.Sources[i].SizeBytes = sizes[report.Sources[i].Source]
	}
	return report
}
