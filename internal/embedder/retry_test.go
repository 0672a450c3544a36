package embedder

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// flakyEmbedder fails with errs in order, then succeeds.
type flakyEmbedder struct {
	errs  []error
	calls int
}

func (f *flakyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func TestRetrying_RecoversFromTransient(t *testing.T) {
	t.Parallel()

	next := &flakyEmbedder{errs: []error{
		&statusError{Code: http.StatusServiceUnavailable},
		&statusError{Code: http.StatusTooManyRequests},
	}}
	got, err := WithRetry(next, 3, time.Millisecond).Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 1 || next.calls != 3 {
		t.Errorf("want success on third call, calls=%d", next.calls)
	}
}

func TestRetrying_GivesUp(t *testing.T) {
	t.Parallel()

	cause := &statusError{Code: http.StatusBadGateway}
	next := &flakyEmbedder{errs: []error{cause, cause, cause}}
	_, err := WithRetry(next, 1, time.Millisecond).Embed(context.Background(), []string{"a"})
	if !errors.Is(err, rag.ErrEmbeddingFailure) {
		t.Fatalf("want ErrEmbeddingFailure, got %v", err)
	}
	if next.calls != 2 {
		t.Errorf("want 2 attempts, got %d", next.calls)
	}
}

func TestRetrying_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	next := &flakyEmbedder{errs: []error{&statusError{Code: http.StatusUnauthorized}}}
	_, err := WithRetry(next, 5, time.Millisecond).Embed(context.Background(), []string{"a"})
	if !errors.Is(err, rag.ErrEmbeddingFailure) {
		t.Fatalf("want ErrEmbeddingFailure, got %v", err)
	}
	var se *statusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("cause not preserved: %v", err)
	}
	if next.calls != 1 {
		t.Errorf("permanent error retried %d times", next.calls)
	}
}

func TestTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"500", &statusError{Code: 500}, true},
		{"429", &statusError{Code: 429}, true},
		{"400", &statusError{Code: 400}, false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("decode response: bad json"), false},
	}
	for _, tc := range cases {
		if got := transient(tc.err); got != tc.want {
			t.Errorf("%s: transient = %v, want %v", tc.name, got, tc.want)
		}
	}
}
