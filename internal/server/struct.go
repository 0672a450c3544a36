package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aramishf/RAG-PDF-Expert/internal/ingestion"
	"github.com/aramishf/RAG-PDF-Expert/internal/qa"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
	"github.com/aramishf/RAG-PDF-Expert/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request, uploads included.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single /api/chat request (default: 2m).
	ChatTimeout time.Duration
	// MaxUploadBytes caps the size of a /api/upload request body (default: 64 MiB).
	MaxUploadBytes int64
	// DefaultNamespace is used when a request names none (default: "default").
	DefaultNamespace string
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on upload and
	// chat (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Asker answers questions. *qa.Service satisfies it.
type Asker interface {
	Ask(ctx context.Context, namespace, question string) (qa.Answer, error)
}

// JobQueue runs ingestion in the background. *ingestion.Jobs satisfies it.
type JobQueue interface {
	Submit(ctx context.Context, namespace string, files []ingestion.File) (ingestion.Job, error)
	Get(ctx context.Context, id string) (ingestion.Job, error)
	Cancel(id string) (ingestion.Job, error)
}

// IndexLister exposes the per-namespace indexes. *index.Registry satisfies it.
type IndexLister interface {
	Lookup(ctx context.Context, namespace string) (rag.VectorIndex, error)
	Namespaces() []string
	Backend() string
}

// Deps are the services the handlers call. QA, Jobs and Indexes are
// required; Catalog and History are optional.
type Deps struct {
	QA      Asker
	Jobs    JobQueue
	Indexes IndexLister
	Catalog store.Catalog
	History store.History
}

// Server is the HTTP server in front of the ingestion and query services.
type Server struct {
	// deps holds the services the handlers delegate to.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by the server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Question is the natural language question.
	Question string `json:"question"`
	// Namespace overrides the header/query namespace when set.
	Namespace string `json:"namespace,omitempty"`
}

// errorResponse is the JSON body of every non-2xx response written by a handler.
type errorResponse struct {
	Error string `json:"error"`
}

// documentsResponse is the JSON response for GET /api/documents.
type documentsResponse struct {
	Namespace string                 `json:"namespace"`
	Documents []store.DocumentRecord `json:"documents"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	Namespace string           `json:"namespace"`
	Exchanges []store.Exchange `json:"exchanges"`
}

// indexResponse is the JSON response for GET /api/index.
type indexResponse struct {
	// Backend is the vector index implementation ("memory" or "qdrant").
	Backend string `json:"backend"`
	// Namespace is the namespace the counts refer to.
	Namespace string `json:"namespace"`
	// Entries is the number of indexed chunks.
	Entries int `json:"entries"`
	// Dimension is the established vector dimension, 0 when empty.
	Dimension int `json:"dimension"`
	// Namespaces lists every namespace opened by this process.
	Namespaces []string `json:"namespaces"`
}
