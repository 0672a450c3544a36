package ingestion

// Status is the outcome of one ingestion run.
type Status string

const (
	// StatusSucceeded means every batch was added and the index persisted.
	StatusSucceeded Status = "succeeded"
	// StatusNoContent means no document produced a chunk; the index is untouched.
	StatusNoContent Status = "no_content_extracted"
	// StatusEmbeddingFailed means a batch could not be embedded.
	StatusEmbeddingFailed Status = "embedding_failed"
	// StatusIndexFailed means a batch was rejected by the index.
	StatusIndexFailed Status = "index_failed"
	// StatusPersistFailed means every batch was added but the snapshot write failed.
	StatusPersistFailed Status = "persist_failed"
	// StatusCanceled means the run was stopped between batches.
	StatusCanceled Status = "canceled"
)

// DocumentFailure describes one document that was skipped.
type DocumentFailure struct {
	// Source is the file the document came from.
	Source string `json:"source"`
	// Page is the zero-based page index, or nil when the whole file failed.
	Page *int `json:"page,omitempty"`
	// Error is the reason the document was skipped.
	Error string `json:"error"`
}

// SourceSummary aggregates what was indexed from one file.
type SourceSummary struct {
	// Source is the base filename.
	Source string `json:"source"`
	// SizeBytes is the raw file size, when known.
	SizeBytes int64 `json:"size_bytes,omitempty"`
	// Pages is the number of pages that produced at least one chunk.
	Pages int `json:"pages"`
	// Chunks is the number of chunks produced.
	Chunks int `json:"chunks"`
}

// Report is returned by every ingestion run, including failed ones.
type Report struct {
	// Status is the final outcome.
	Status Status `json:"status"`
	// Documents is the number of documents considered.
	Documents int `json:"documents"`
	// FailedDocuments lists documents skipped because they yielded no text.
	FailedDocuments []DocumentFailure `json:"failed_documents,omitempty"`
	// Chunks is the number of chunks produced across all documents.
	Chunks int `json:"chunks"`
	// Batches is the number of batches embedded and added.
	Batches int `json:"batches"`
	// TotalBatches is the number of batches the chunks were split into.
	TotalBatches int `json:"total_batches"`
	// Persisted reports whether the index snapshot was written.
	Persisted bool `json:"persisted"`
	// Sources summarises each file that produced chunks, in input order.
	Sources []SourceSummary `json:"sources,omitempty"`
	// Error describes the failure for non-success statuses.
	Error string `json:"error,omitempty"`
}

// Indexed reports whether the run's chunks are all searchable, whether or
// not the snapshot was written.
func (r *Report) Indexed() bool {
	return r.Status == StatusSucceeded || r.Status == StatusPersistFailed
}
