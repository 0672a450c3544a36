package store

import (
	"context"
	"fmt"
	"time"
)

// DocumentRecord describes one ingested file.
type DocumentRecord struct {
	// Namespace is the index the file was added to.
	Namespace string `json:"namespace"`
	// Filename is the base name of the uploaded file.
	Filename string `json:"filename"`
	// SizeBytes is the raw upload size.
	SizeBytes int64 `json:"size_bytes"`
	// Pages is the number of pages that yielded text.
	Pages int `json:"pages"`
	// Chunks is the number of chunks indexed from the file.
	Chunks int `json:"chunks"`
	// JobID links the record to the ingestion job that produced it.
	JobID string `json:"job_id,omitempty"`
	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"created_at"`
}

// Catalog lists the documents ingested into each namespace.
// Implementations must be safe for concurrent use.
type Catalog interface {
	// AddDocument records a successfully indexed file.
	AddDocument(ctx context.Context, doc DocumentRecord) error
	// Documents returns the files ingested into namespace, oldest first.
	Documents(ctx context.Context, namespace string) ([]DocumentRecord, error)
}

// AddDocument records a successfully indexed file.
func (s *SQLiteStore) AddDocument(ctx context.Context, doc DocumentRecord) error {
	const q = `INSERT INTO documents (namespace, filename, size_bytes, pages, chunks, job_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, q, doc.Namespace, doc.Filename, doc.SizeBytes,
		doc.Pages, doc.Chunks, doc.JobID, created.Unix()); err != nil {
		return fmt.Errorf("store: add document: %w", err)
	}
	return nil
}

// Documents returns the files ingested into namespace, oldest first.
func (s *SQLiteStore) Documents(ctx context.Context, namespace string) ([]DocumentRecord, error) {
	const q = `
SELECT namespace, filename, size_bytes, pages, chunks, job_id, created_at
FROM   documents
WHERE  namespace = ?
ORDER  BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, namespace)
	if err != nil {
		return nil, fmt.Errorf("store: documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		var ts int64
		if err := rows.Scan(&d.Namespace, &d.Filename, &d.SizeBytes, &d.Pages, &d.Chunks, &d.JobID, &ts); err != nil {
			return nil, fmt.Errorf("store: documents scan: %w", err)
		}
		d.CreatedAt = time.Unix(ts, 0)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: documents rows: %w", err)
	}
	return docs, nil
}
