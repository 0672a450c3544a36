package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
	"github.com/aramishf/RAG-PDF-Expert/internal/store"
)

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	// JobPending means the job is queued.
	JobPending JobStatus = "pending"
	// JobRunning means the worker is processing the job.
	JobRunning JobStatus = "running"
	// JobSucceeded means every chunk was indexed.
	JobSucceeded JobStatus = "succeeded"
	// JobFailed means the run ended with a non-success report.
	JobFailed JobStatus = "failed"
	// JobCanceled means the job was canceled before or during its run.
	JobCanceled JobStatus = "canceled"
)

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCanceled
}

var (
	// ErrJobNotFound is returned for an unknown job ID.
	ErrJobNotFound = errors.New("ingestion: job not found")
	// ErrQueueFull is returned by Submit when the queue is at capacity.
	ErrQueueFull = errors.New("ingestion: job queue is full")
	// ErrJobFinished is returned by Cancel for a job already in a final state.
	ErrJobFinished = errors.New("ingestion: job already finished")
)

// Job is a point-in-time snapshot of an ingestion job.
type Job struct {
	ID         string    `json:"id"`
	Namespace  string    `json:"namespace"`
	Status     JobStatus `json:"status"`
	Files      []string  `json:"files"`
	Done       int       `json:"batches_done"`
	Total      int       `json:"batches_total"`
	Report     *Report   `json:"report,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// IndexProvider hands out the index for a namespace. *index.Registry
// satisfies it.
type IndexProvider interface {
	Get(ctx context.Context, namespace string) (rag.VectorIndex, error)
}

// JobsConfig configures a Jobs manager.
type JobsConfig struct {
	// QueueSize bounds the number of pending jobs. Defaults to 64.
	QueueSize int
	// Retain is the number of finished jobs kept in memory. Defaults to 256.
	Retain int
	// Log records finished jobs. Optional.
	Log store.JobLog
	// Catalog records indexed files. Optional.
	Catalog store.Catalog
	// Metrics is optional.
	Metrics *Metrics
}

// jobEntry is the mutable state behind a Job. Guarded by Jobs.mu.
type jobEntry struct {
	job    Job
	files  []File
	cancel context.CancelFunc
}

// Jobs runs ingestion in the background. A single worker drains a FIFO
// queue, so at most one ingestion runs at a time.
type Jobs struct {
	pipeline *Pipeline
	indexes  IndexProvider
	cfg      JobsConfig

	queue chan *jobEntry

	mu       sync.Mutex
	entries  map[string]*jobEntry
	finished []string
}

// NewJobs constructs a job manager. Call Run to start the worker.
func NewJobs(pipeline *Pipeline, indexes IndexProvider, cfg JobsConfig) (*Jobs, error) {
	if pipeline == nil || indexes == nil {
		return nil, fmt.Errorf("ingestion: jobs require a pipeline and an index provider")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 256
	}
	return &Jobs{
		pipeline: pipeline,
		indexes:  indexes,
		cfg:      cfg,
		queue:    make(chan *jobEntry, cfg.QueueSize),
		entries:  make(map[string]*jobEntry),
	}, nil
}

// Submit queues files for ingestion into namespace and returns immediately
// with the pending job.
func (j *Jobs) Submit(ctx context.Context, namespace string, files []File) (Job, error) {
	if len(files) == 0 {
		return Job{}, fmt.Errorf("ingestion: no files submitted: %w", rag.ErrInvalidArgument)
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = SourceName(f.Name)
	}
	e := &jobEntry{
		job: Job{
			ID:        uuid.NewString(),
			Namespace: namespace,
			Status:    JobPending,
			Files:     names,
			CreatedAt: time.Now().UTC(),
		},
		files: files,
	}

	j.mu.Lock()
	select {
	case j.queue <- e:
		j.entries[e.job.ID] = e
	default:
		j.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	snap := e.job
	j.mu.Unlock()
	j.cfg.Metrics.setQueueDepth(len(j.queue))

	logging.FromContext(ctx).Info("ingestion: job submitted",
		slog.String("job_id", snap.ID),
		slog.String("namespace", namespace),
		slog.Int("files", len(files)),
	)
	return snap, nil
}

// Get returns a snapshot of the job. Jobs evicted from memory are looked up
// in the job log when one is configured.
func (j *Jobs) Get(ctx context.Context, id string) (Job, error) {
	j.mu.Lock()
	e, ok := j.entries[id]
	var snap Job
	if ok {
		snap = e.job
	}
	j.mu.Unlock()
	if ok {
		return snap, nil
	}

	if j.cfg.Log == nil {
		return Job{}, ErrJobNotFound
	}
	rec, err := j.cfg.Log.Job(ctx, id)
	if errors.Is(err, store.ErrJobNotFound) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("ingestion: load job %s: %w", id, err)
	}
	return jobFromRecord(rec), nil
}

// Cancel stops a job. A pending job is canceled immediately; a running job
// stops before its next batch.
func (j *Jobs) Cancel(id string) (Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	switch e.job.Status {
	case JobPending:
		e.job.Status = JobCanceled
		e.job.FinishedAt = time.Now().UTC()
		e.files = nil
	case JobRunning:
		if e.cancel != nil {
			e.cancel()
		}
	default:
		return e.job, ErrJobFinished
	}
	return e.job, nil
}

// Run processes queued jobs until ctx is done. Jobs still pending at that
// point stay pending.
func (j *Jobs) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-j.queue:
			j.cfg.Metrics.setQueueDepth(len(j.queue))
			j.run(ctx, e)
		}
	}
}

// run executes one job on the worker goroutine.
func (j *Jobs) run(parent context.Context, e *jobEntry) {
	j.mu.Lock()
	if e.job.Status == JobCanceled {
		snap := e.job
		j.mu.Unlock()
		j.finish(parent, e, snap)
		return
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	e.cancel = cancel
	e.job.Status = JobRunning
	e.job.StartedAt = time.Now().UTC()
	files := e.files
	id, ns := e.job.ID, e.job.Namespace
	j.mu.Unlock()

	ctx, log := logging.With(ctx, slog.String("job_id", id), slog.String("namespace", ns))
	log.Info("ingestion: job started", slog.Int("files", len(files)))

	var report Report
	idx, err := j.indexes.Get(ctx, ns)
	switch {
	case err != nil && ctx.Err() != nil:
		report = Report{Status: StatusCanceled, Documents: len(files), Error: ctx.Err().Error()}
	case err != nil:
		report = Report{Status: StatusIndexFailed, Documents: len(files), Error: err.Error()}
	default:
		report = j.pipeline.IngestFiles(ctx, idx, files, func(done, total int) {
			j.mu.Lock()
			e.job.Done, e.job.Total = done, total
			j.mu.Unlock()
		})
	}

	j.mu.Lock()
	e.cancel = nil
	e.files = nil
	e.job.Report = &report
	e.job.Total = report.TotalBatches
	e.job.Done = report.Batches
	e.job.FinishedAt = time.Now().UTC()
	switch {
	case report.Status == StatusSucceeded:
		e.job.Status = JobSucceeded
	case report.Status == StatusCanceled:
		e.job.Status = JobCanceled
	default:
		e.job.Status = JobFailed
		e.job.Error = report.Error
	}
	snap := e.job
	j.mu.Unlock()

	if report.Indexed() {
		j.catalog(ctx, snap, report)
	}
	log.Info("ingestion: job finished",
		slog.String("status", string(snap.Status)),
		slog.String("report_status", string(report.Status)),
		slog.Int("chunks", report.Chunks),
	)
	j.finish(ctx, e, snap)
}

// finish records a terminal job and evicts the oldest finished jobs beyond
// the retention limit.
func (j *Jobs) finish(ctx context.Context, e *jobEntry, snap Job) {
	j.cfg.Metrics.observeJob(snap.Status)

	if j.cfg.Log != nil {
		if err := j.cfg.Log.SaveJob(context.WithoutCancel(ctx), recordFromJob(snap)); err != nil {
			logging.FromContext(ctx).Warn("ingestion: could not record job",
				slog.String("job_id", snap.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = append(j.finished, e.job.ID)
	for len(j.finished) > j.cfg.Retain {
		delete(j.entries, j.finished[0])
		j.finished = j.finished[1:]
	}
}

// catalog writes one document record per indexed source.
func (j *Jobs) catalog(ctx context.Context, job Job, report Report) {
	if j.cfg.Catalog == nil {
		return
	}
	if err := CatalogSources(context.WithoutCancel(ctx), j.cfg.Catalog, job.Namespace, job.ID, report); err != nil {
		logging.FromContext(ctx).Warn("ingestion: could not catalog documents",
			slog.String("error", err.Error()),
		)
	}
}

// CatalogSources records every source summarised in report under
// namespace. jobID may be empty for synchronous runs. All sources are
// attempted; the failures are joined.
func CatalogSources(ctx context.Context, catalog store.Catalog, namespace, jobID string, report Report) error {
	var errs []error
	for _, s := range report.Sources {
		err := catalog.AddDocument(ctx, store.DocumentRecord{
			Namespace: namespace,
			Filename:  s.Source,
			SizeBytes: s.SizeBytes,
			Pages:     s.Pages,
			Chunks:    s.Chunks,
			JobID:     jobID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("ingestion: catalog %q: %w", s.Source, err))
		}
	}
	return errors.Join(errs...)
}

func recordFromJob(job Job) store.JobRecord {
	rec := store.JobRecord{
		ID:         job.ID,
		Namespace:  job.Namespace,
		Status:     string(job.Status),
		Files:      len(job.Files),
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.Report != nil {
		if raw, err := json.Marshal(job.Report); err == nil {
			rec.Report = raw
		}
	}
	return rec
}

func jobFromRecord(rec store.JobRecord) Job {
	job := Job{
		ID:         rec.ID,
		Namespace:  rec.Namespace,
		Status:     JobStatus(rec.Status),
		Error:      rec.Error,
		CreatedAt:  rec.CreatedAt,
		FinishedAt: rec.FinishedAt,
	}
	var report Report
	if len(rec.Report) > 0 && json.Unmarshal(rec.Report, &report) == nil && report.Status != "" {
		job.Report = &report
		job.Done = report.Batches
		job.Total = report.TotalBatches
		for _, s := range report.Sources {
			job.Files = append(job.Files, s.Source)
		}
	}
	return job
}
