package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrJobNotFound is returned by Job when no record exists for the ID.
var ErrJobNotFound = errors.New("store: job not found")

// JobRecord is the persisted outcome of an ingestion job.
type JobRecord struct {
	// ID is the job's UUID.
	ID string `json:"id"`
	// Namespace is the index the job wrote to.
	Namespace string `json:"namespace"`
	// Status is the job's final status.
	Status string `json:"status"`
	// Files is the number of files submitted.
	Files int `json:"files"`
	// Report is the JSON-encoded indexing report.
	Report json.RawMessage `json:"report,omitempty"`
	// Error is the terminal error message, if any.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the job was submitted.
	CreatedAt time.Time `json:"created_at"`
	// FinishedAt is when the job reached a terminal state.
	FinishedAt time.Time `json:"finished_at"`
}

// JobLog records finished ingestion jobs so their reports outlive the
// process. Implementations must be safe for concurrent use.
type JobLog interface {
	// SaveJob inserts or replaces the record for rec.ID.
	SaveJob(ctx context.Context, rec JobRecord) error
	// Job returns the record for id, or ErrJobNotFound.
	Job(ctx context.Context, id string) (JobRecord, error)
}

// SaveJob inserts or replaces the record for rec.ID.
func (s *SQLiteStore) SaveJob(ctx context.Context, rec JobRecord) error {
	report := string(rec.Report)
	if report == "" {
		report = "{}"
	}
	var finished int64
	if !rec.FinishedAt.IsZero() {
		finished = rec.FinishedAt.Unix()
	}

	const q = `
INSERT INTO jobs (id, namespace, status, files, report, error, created_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    report = excluded.report,
    error = excluded.error,
    finished_at = excluded.finished_at`
	if _, err := s.db.ExecContext(ctx, q, rec.ID, rec.Namespace, rec.Status, rec.Files,
		report, rec.Error, rec.CreatedAt.Unix(), finished); err != nil {
		return fmt.Errorf("store: save job: %w", err)
	}
	return nil
}

// Job returns the record for id, or ErrJobNotFound.
func (s *SQLiteStore) Job(ctx context.Context, id string) (JobRecord, error) {
	const q = `SELECT id, namespace, status, files, report, error, created_at, finished_at FROM jobs WHERE id = ?`

	var rec JobRecord
	var report string
	var created, finished int64
	err := s.db.QueryRowContext(ctx, q, id).Scan(&rec.ID, &rec.Namespace, &rec.Status, &rec.Files,
		&report, &rec.Error, &created, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, ErrJobNotFound
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("store: job: %w", err)
	}
	rec.Report = json.RawMessage(report)
	rec.CreatedAt = time.Unix(created, 0)
	if finished > 0 {
		rec.FinishedAt = time.Unix(finished, 0)
	}
	return rec, nil
}
