package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aramishf/RAG-PDF-Expert/internal/index"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
	"github.com/aramishf/RAG-PDF-Expert/internal/store"
)

// gateEmbedder blocks its first call until release is closed.
type gateEmbedder struct {
	fakeEmbedder
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGateEmbedder() *gateEmbedder {
	return &gateEmbedder{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		<-g.release
	}
	return g.fakeEmbedder.Embed(ctx, texts)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func textFile(name string) File {
	return File{Name: name, Data: []byte("Some text about " + name + ".")}
}

type testRig struct {
	jobs   *Jobs
	reg    *index.Registry
	store  *store.SQLiteStore
	cancel context.CancelFunc
	done   chan struct{}
}

func newRig(t *testing.T, emb rag.Embedder, batch int, start bool) *testRig {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := index.NewRegistry(&index.MemoryBackend{Dir: t.TempDir()}, nil)
	p, err := NewPipeline(&fakeSplitter{perDoc: map[string]int{"a.txt": 3, "b.txt": 2}}, emb, &Config{BatchSize: batch})
	if err != nil {
		t.Fatal(err)
	}
	jobs, err := NewJobs(p, reg, JobsConfig{Log: st, Catalog: st})
	if err != nil {
		t.Fatal(err)
	}

	rig := &testRig{jobs: jobs, reg: reg, store: st, done: make(chan struct{})}
	if start {
		rig.start(t)
	}
	return rig
}

func (r *testRig) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() {
		defer close(r.done)
		_ = r.jobs.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-r.done
	})
}

func (r *testRig) status(t *testing.T, id string) JobStatus {
	t.Helper()
	job, err := r.jobs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return job.Status
}

func TestJobs_SubmitRunsToSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rig := newRig(t, &fakeEmbedder{}, 2, true)

	job, err := rig.jobs.Submit(ctx, "books", []File{textFile("a.txt"), textFile("b.txt")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != JobPending || job.ID == "" {
		t.Fatalf("want pending job with an id, got %+v", job)
	}

	waitFor(t, "job to finish", func() bool { return rig.status(t, job.ID).Terminal() })

	got, _ := rig.jobs.Get(ctx, job.ID)
	if got.Status != JobSucceeded {
		t.Fatalf("want succeeded, got %s (%s)", got.Status, got.Error)
	}
	if got.Report == nil || got.Report.Chunks != 5 || got.Report.Batches != 3 {
		t.Errorf("unexpected report %+v", got.Report)
	}
	if got.StartedAt.IsZero() || got.FinishedAt.IsZero() {
		t.Error("timestamps not set")
	}

	idx, _ := rig.reg.Get(ctx, "books")
	if n, _ := idx.Count(ctx); n != 5 {
		t.Errorf("want 5 entries in books, got %d", n)
	}

	docs, err := rig.store.Documents(ctx, "books")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].Filename != "a.txt" || docs[0].Chunks != 3 || docs[0].JobID != job.ID {
		t.Errorf("catalog not written: %+v", docs)
	}
	if docs[0].SizeBytes != int64(len(textFile("a.txt").Data)) {
		t.Errorf("want size bytes recorded, got %d", docs[0].SizeBytes)
	}

	rec, err := rig.store.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("job log: %v", err)
	}
	if rec.Status != string(JobSucceeded) {
		t.Errorf("job log status: want succeeded, got %s", rec.Status)
	}
}

func TestJobs_NoContentFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rig := newRig(t, &fakeEmbedder{}, 10, true)

	job, err := rig.jobs.Submit(ctx, "ns", []File{{Name: "empty.txt"}})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "job to finish", func() bool { return rig.status(t, job.ID).Terminal() })

	got, _ := rig.jobs.Get(ctx, job.ID)
	if got.Status != JobFailed || got.Report.Status != StatusNoContent {
		t.Fatalf("want failed/no_content_extracted, got %s/%s", got.Status, got.Report.Status)
	}
	if len(got.Report.FailedDocuments) != 1 || got.Report.FailedDocuments[0].Page != nil {
		t.Errorf("want one whole-file failure, got %+v", got.Report.FailedDocuments)
	}
	if docs, _ := rig.store.Documents(ctx, "ns"); len(docs) != 0 {
		t.Errorf("nothing should be cataloged, got %v", docs)
	}
}

func TestJobs_CancelPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	emb := &fakeEmbedder{}
	rig := newRig(t, emb, 10, false)

	job, _ := rig.jobs.Submit(ctx, "ns", []File{textFile("a.txt")})
	canceled, err := rig.jobs.Cancel(job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if canceled.Status != JobCanceled {
		t.Fatalf("want canceled, got %s", canceled.Status)
	}

	rig.start(t)
	waitFor(t, "job log entry", func() bool {
		rec, err := rig.store.Job(ctx, job.ID)
		return err == nil && rec.Status == string(JobCanceled)
	})
	emb.mu.Lock()
	defer emb.mu.Unlock()
	if len(emb.batches) != 0 {
		t.Error("canceled pending job must not run")
	}
	if _, err := rig.jobs.Cancel(job.ID); !errors.Is(err, ErrJobFinished) {
		t.Errorf("want ErrJobFinished on second cancel, got %v", err)
	}
}

func TestJobs_CancelRunningStopsBetweenBatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	emb := newGateEmbedder()
	rig := newRig(t, emb, 1, true)

	job, _ := rig.jobs.Submit(ctx, "ns", []File{textFile("a.txt")})
	<-emb.started
	if got := rig.status(t, job.ID); got != JobRunning {
		t.Fatalf("want running, got %s", got)
	}

	if _, err := rig.jobs.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(emb.release)
	waitFor(t, "job to finish", func() bool { return rig.status(t, job.ID).Terminal() })

	got, _ := rig.jobs.Get(ctx, job.ID)
	if got.Status != JobCanceled {
		t.Fatalf("want canceled, got %s", got.Status)
	}
	if got.Report.Batches != 1 || got.Report.TotalBatches != 3 {
		t.Errorf("in-flight batch should complete and no more: %d of %d", got.Report.Batches, got.Report.TotalBatches)
	}
	idx, _ := rig.reg.Get(ctx, "ns")
	if n, _ := idx.Count(ctx); n != 1 {
		t.Errorf("want 1 entry from the completed batch, got %d", n)
	}
}

func TestJobs_RunsFIFO(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rig := newRig(t, &fakeEmbedder{}, 10, false)

	first, _ := rig.jobs.Submit(ctx, "ns", []File{textFile("a.txt")})
	second, _ := rig.jobs.Submit(ctx, "ns", []File{textFile("b.txt")})
	rig.start(t)

	waitFor(t, "both jobs", func() bool { return rig.status(t, second.ID).Terminal() })
	a, _ := rig.jobs.Get(ctx, first.ID)
	b, _ := rig.jobs.Get(ctx, second.ID)
	if !a.FinishedAt.Before(b.StartedAt) && !a.FinishedAt.Equal(b.StartedAt) {
		t.Errorf("jobs overlapped: first finished %v, second started %v", a.FinishedAt, b.StartedAt)
	}
}

func TestJobs_GetFallsBackToLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rig := newRig(t, &fakeEmbedder{}, 10, false)

	report := `{"status":"succeeded","documents":1,"chunks":4,"batches":1,"total_batches":1,"persisted":true,"sources":[{"source":"old.pdf","pages":1,"chunks":4}]}`
	err := rig.store.SaveJob(ctx, store.JobRecord{
		ID: "from-log", Namespace: "ns", Status: "succeeded", Files: 1,
		Report: []byte(report), CreatedAt: time.Now(), FinishedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	job, err := rig.jobs.Get(ctx, "from-log")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != JobSucceeded || job.Report == nil || job.Report.Chunks != 4 || job.Files[0] != "old.pdf" {
		t.Errorf("unexpected job from log %+v", job)
	}
	if _, err := rig.jobs.Get(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("want ErrJobNotFound, got %v", err)
	}
}

func TestJobs_SubmitValidation(t *testing.T) {
	t.Parallel()
	rig := newRig(t, &fakeEmbedder{}, 10, false)

	if _, err := rig.jobs.Submit(context.Background(), "ns", nil); !errors.Is(err, rag.ErrInvalidArgument) {
		t.Errorf("want ErrInvalidArgument, got %v", err)
	}
}

func TestJobs_QueueFull(t *testing.T) {
	t.Parallel()
	p, _ := NewPipeline(&fakeSplitter{}, &fakeEmbedder{}, nil)
	reg := index.NewRegistry(&index.MemoryBackend{Dir: t.TempDir()}, nil)
	jobs, _ := NewJobs(p, reg, JobsConfig{QueueSize: 1})

	if _, err := jobs.Submit(context.Background(), "ns", []File{textFile("a.txt")}); err != nil {
		t.Fatal(err)
	}
	if _, err := jobs.Submit(context.Background(), "ns", []File{textFile("b.txt")}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("want ErrQueueFull, got %v", err)
	}
}
