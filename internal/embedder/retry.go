package embedder

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// DefaultRetries is the number of extra attempts made on a transient failure.
const DefaultRetries = 3

// Retrying decorates a rag.Embedder with bounded exponential backoff on
// transient failures. Whatever error finally escapes is tagged with
// rag.ErrEmbeddingFailure.
type Retrying struct {
	// next is the wrapped embedder.
	next rag.Embedder
	// retries is the maximum number of extra attempts.
	retries uint64
	// base is the first backoff interval.
	base time.Duration
}

// WithRetry wraps next. retries < 0 is treated as 0; base <= 0 means 250ms.
func WithRetry(next rag.Embedder, retries int, base time.Duration) *Retrying {
	if retries < 0 {
		retries = 0
	}
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	return &Retrying{next: next, retries: uint64(retries), base: base}
}

// Embed calls the wrapped embedder, retrying transient errors.
func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	attempt := 0
	backoff := retry.WithMaxRetries(r.retries, retry.NewExponential(r.base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		vecs, err := r.next.Embed(ctx, texts)
		if err == nil {
			out = vecs
			return nil
		}
		if transient(err) {
			logging.FromContext(ctx).Warn("embedder: transient failure",
				slog.Int("attempt", attempt),
				slog.Int("texts", len(texts)),
				slog.String("error", err.Error()),
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, rag.EmbeddingError(err)
	}
	return out, nil
}
