package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// pingText is the input embedded by EmbedderPinger.
const pingText = "ping"

// EmbedderPinger pings the embedding backend with a single one-word
// request. It satisfies the Pinger interface and is used by GET /api/ready.
type EmbedderPinger struct {
	// embedder is the embedding client to ping.
	embedder rag.Embedder
	// dimensions is the expected vector width; 0 skips the check.
	dimensions int
}

// NewEmbedderPinger constructs an EmbedderPinger. When dimensions is
// positive the returned vector width is checked against it.
func NewEmbedderPinger(e rag.Embedder, dimensions int) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, dimensions: dimensions}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a short string and checks the result shape.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vec, err := rag.EmbedText(ctx, p.embedder, pingText)
	if err != nil {
		return err
	}
	if p.dimensions > 0 && len(vec) != p.dimensions {
		return fmt.Errorf("embedding has %d dimensions, configured %d: %w",
			len(vec), p.dimensions, rag.ErrDimensionMismatch)
	}
	return nil
}

// QdrantPinger checks a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to ping.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// pingable is anything exposing a context-aware Ping, such as
// *store.SQLiteStore.
type pingable interface {
	Ping(ctx context.Context) error
}

// StorePinger pings the SQLite catalog/history store.
type StorePinger struct {
	store pingable
}

// NewStorePinger constructs a StorePinger.
func NewStorePinger(s pingable) *StorePinger {
	return &StorePinger{store: s}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "store" }

// Ping runs the store's own health check.
func (p *StorePinger) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}
